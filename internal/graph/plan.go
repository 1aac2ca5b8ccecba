package graph

import (
	"context"
	"encoding/json"

	"github.com/notadamking/elemental/internal/errs"
	"github.com/notadamking/elemental/internal/idgen"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// AddTaskToPlan creates a parent-child edge (taskID -> planID) after
// verifying both elements' kinds and the at-most-one-plan invariant (§3
// invariant 8).
func (s *Service) AddTaskToPlan(ctx context.Context, taskID, planID, actor string) error {
	const op = "graph.AddTaskToPlan"

	taskRow, err := s.backend.GetElement(ctx, taskID)
	if err != nil {
		return errs.Wrap(op, err)
	}
	if taskRow == nil || taskRow.Kind != types.KindTask {
		return errs.NotFound(op, "task", taskID)
	}
	planRow, err := s.backend.GetElement(ctx, planID)
	if err != nil {
		return errs.Wrap(op, err)
	}
	if planRow == nil || planRow.Kind != types.KindPlan {
		return errs.NotFound(op, "plan", planID)
	}

	existing, err := s.backend.OutgoingDependencies(ctx, taskID, []types.DependencyType{types.DepParentChild})
	if err != nil {
		return errs.Wrap(op, err)
	}
	for _, d := range existing {
		targetRow, err := s.backend.GetElement(ctx, d.TargetID)
		if err == nil && targetRow != nil && targetRow.Kind == types.KindPlan {
			return errs.Conflict(op, errs.ReasonAlreadyInPlan, "task already belongs to a plan", map[string]any{"task": taskID, "plan": d.TargetID})
		}
	}

	return s.AddDependency(ctx, taskID, planID, types.DepParentChild, nil, actor)
}

// GetTasksInPlan enumerates the plan's incoming parent-child sources,
// applying a Task filter (live-only unless filter.IncludeDeleted).
func (s *Service) GetTasksInPlan(ctx context.Context, planID string, f types.Filter) ([]*types.Task, error) {
	const op = "graph.GetTasksInPlan"
	edges, err := s.backend.IncomingDependencies(ctx, planID, []types.DependencyType{types.DepParentChild})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	var tasks []*types.Task
	for _, e := range edges {
		row, err := s.backend.GetElement(ctx, e.SourceID)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		if row == nil || row.Kind != types.KindTask {
			continue
		}
		if row.DeletedAt != nil && !f.IncludeDeleted {
			continue
		}
		elem, err := storage.Decode(*row)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		task := elem.(*types.Task)
		if !matchesTaskFilter(task, f) {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// PlanProgress is get_plan_progress's result shape.
type PlanProgress struct {
	Total           int
	ByStatus        map[types.TaskStatus]int
	PercentComplete float64
}

// GetPlanProgress counts a plan's tasks by status.
func (s *Service) GetPlanProgress(ctx context.Context, planID string) (PlanProgress, error) {
	tasks, err := s.GetTasksInPlan(ctx, planID, types.Filter{})
	if err != nil {
		return PlanProgress{}, err
	}
	progress := PlanProgress{ByStatus: map[types.TaskStatus]int{}}
	for _, t := range tasks {
		progress.Total++
		progress.ByStatus[t.Status]++
	}
	if progress.Total > 0 {
		progress.PercentComplete = float64(progress.ByStatus[types.TaskClosed]) / float64(progress.Total) * 100
	}
	return progress, nil
}

// TaskInPlanInput is create_task_in_plan's input payload.
type TaskInPlanInput struct {
	Title      string
	Priority   int
	Complexity int
	TaskType   string
	Assignee   *string
	Owner      *string
}

// CreateTaskInPlan rejects plans not in {draft, active}, allocates the next
// hierarchical child identifier atomically, creates the Task, and links it
// to the plan, all within one transaction.
func (s *Service) CreateTaskInPlan(ctx context.Context, planID string, input TaskInPlanInput, actor string) (*types.Task, error) {
	const op = "graph.CreateTaskInPlan"
	var task *types.Task

	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		planRow, err := tx.GetElement(ctx, planID)
		if err != nil {
			return err
		}
		if planRow == nil || planRow.Kind != types.KindPlan {
			return errs.NotFound(op, "plan", planID)
		}
		planElem, err := storage.Decode(*planRow)
		if err != nil {
			return err
		}
		plan := planElem.(*types.Plan)
		if !plan.Status.AcceptsNewTasks() {
			return errs.Constraint(op, errs.ReasonInvalidStatus, "plan does not accept new tasks", map[string]any{"plan": planID, "status": string(plan.Status)})
		}

		n, err := tx.GetNextChildNumber(ctx, planID)
		if err != nil {
			return err
		}
		childID := idgen.ChildID(planID, n)
		now := s.now()
		t := types.NewTask(childID, actor, now, input.Title)
		if input.Priority != 0 {
			t.Priority = input.Priority
		}
		if input.Complexity != 0 {
			t.Complexity = input.Complexity
		}
		if input.TaskType != "" {
			t.TaskType = input.TaskType
		}
		t.Assignee = input.Assignee
		t.Owner = input.Owner
		if err := t.Validate(); err != nil {
			return err
		}
		if _, err := types.RefreshContentHash(t); err != nil {
			return err
		}

		row, err := storage.Encode(t)
		if err != nil {
			return err
		}
		if err := tx.PutElement(ctx, row); err != nil {
			return err
		}
		raw, _ := json.Marshal(t)
		if _, err := tx.AppendEvent(ctx, types.Event{ElementID: childID, Type: types.EventCreated, Actor: actor, NewValue: raw, CreatedAt: now}); err != nil {
			return err
		}

		dep := types.Dependency{SourceID: childID, TargetID: planID, Type: types.DepParentChild, CreatedBy: actor, CreatedAt: now}
		if err := tx.PutDependency(ctx, dep); err != nil {
			return err
		}
		depRaw, _ := json.Marshal(dep)
		if _, err := tx.AppendEvent(ctx, types.Event{ElementID: planID, Type: types.EventDependencyAdded, Actor: actor, NewValue: depRaw, CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.MarkDirty(ctx, childID); err != nil {
			return err
		}
		if err := tx.MarkDirty(ctx, planID); err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

// BulkResult is the shared return shape for the bulk plan operations.
type BulkResult struct {
	UpdatedCount  int
	SkippedCount  int
	UpdatedIDs    []string
	SkippedIDs    []string
	PerTaskErrors map[string]error
}

func newBulkResult() *BulkResult {
	return &BulkResult{PerTaskErrors: map[string]error{}}
}

func (r *BulkResult) update(id string) {
	r.UpdatedCount++
	r.UpdatedIDs = append(r.UpdatedIDs, id)
}

func (r *BulkResult) skip(id string) {
	r.SkippedCount++
	r.SkippedIDs = append(r.SkippedIDs, id)
}

// BulkClosePlanTasks closes every live, non-closed task in the plan.
func (s *Service) BulkClosePlanTasks(ctx context.Context, planID, actor string) (*BulkResult, error) {
	tasks, err := s.GetTasksInPlan(ctx, planID, types.Filter{})
	if err != nil {
		return nil, err
	}
	result := newBulkResult()
	for _, t := range tasks {
		if t.Status == types.TaskClosed {
			result.skip(t.ID)
			continue
		}
		if _, err := s.Update(ctx, t.ID, map[string]any{"status": string(types.TaskClosed)}, actor); err != nil {
			result.PerTaskErrors[t.ID] = err
			continue
		}
		result.update(t.ID)
	}
	return result, nil
}

// BulkDeferPlanTasks defers every task currently in {open, in_progress,
// blocked}.
func (s *Service) BulkDeferPlanTasks(ctx context.Context, planID, actor string) (*BulkResult, error) {
	tasks, err := s.GetTasksInPlan(ctx, planID, types.Filter{})
	if err != nil {
		return nil, err
	}
	result := newBulkResult()
	for _, t := range tasks {
		switch t.Status {
		case types.TaskOpen, types.TaskInProgress, types.TaskBlocked:
		default:
			result.skip(t.ID)
			continue
		}
		if _, err := s.Update(ctx, t.ID, map[string]any{"status": string(types.TaskDeferred)}, actor); err != nil {
			result.PerTaskErrors[t.ID] = err
			continue
		}
		result.update(t.ID)
	}
	return result, nil
}

// BulkReassignPlanTasks reassigns every task not already assigned to
// assignee.
func (s *Service) BulkReassignPlanTasks(ctx context.Context, planID string, assignee, actor string) (*BulkResult, error) {
	tasks, err := s.GetTasksInPlan(ctx, planID, types.Filter{})
	if err != nil {
		return nil, err
	}
	result := newBulkResult()
	for _, t := range tasks {
		if t.Assignee != nil && *t.Assignee == assignee {
			result.skip(t.ID)
			continue
		}
		if _, err := s.Update(ctx, t.ID, map[string]any{"assignee": assignee}, actor); err != nil {
			result.PerTaskErrors[t.ID] = err
			continue
		}
		result.update(t.ID)
	}
	return result, nil
}

// BulkTagPlanTasks adds/removes tags across every task in the plan. At
// least one of addTags/removeTags must be non-empty.
func (s *Service) BulkTagPlanTasks(ctx context.Context, planID string, addTags, removeTags []string, actor string) (*BulkResult, error) {
	const op = "graph.BulkTagPlanTasks"
	if len(addTags) == 0 && len(removeTags) == 0 {
		return nil, errs.Validation(op, errs.ReasonMissingRequiredField, "at least one of addTags/removeTags is required", nil)
	}

	tasks, err := s.GetTasksInPlan(ctx, planID, types.Filter{})
	if err != nil {
		return nil, err
	}
	result := newBulkResult()
	for _, t := range tasks {
		next := applyTagDelta(t.Tags, addTags, removeTags)
		if sameTagSet(t.Tags, next) {
			result.skip(t.ID)
			continue
		}
		if _, err := s.Update(ctx, t.ID, map[string]any{"tags": next}, actor); err != nil {
			result.PerTaskErrors[t.ID] = err
			continue
		}
		result.update(t.ID)
	}
	return result, nil
}

func applyTagDelta(current, add, remove []string) []string {
	set := map[string]bool{}
	for _, t := range current {
		set[t] = true
	}
	for _, t := range remove {
		delete(set, t)
	}
	for _, t := range add {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}
