package graph

import (
	"context"
	"strings"

	"github.com/notadamking/elemental/internal/errs"
	"github.com/notadamking/elemental/internal/idgen"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
	"github.com/notadamking/elemental/internal/workflow"
)

// PourInput is pour(playbook_id, vars, actor)'s input payload.
type PourInput struct {
	PlaybookID string
	Vars       map[string]string
}

// PourResult is pour's return shape: the new Workflow, its poured Tasks,
// the `blocks` edges wired from each surviving step's dependsOn, one
// `parent-child` edge per task to the workflow, the fully resolved
// variable map, and the ids of steps a condition dropped.
type PourResult struct {
	Workflow         *types.Workflow
	Tasks            []*types.Task
	BlocksEdges      []types.Dependency
	ParentChildEdges []types.Dependency
	ResolvedVars     map[string]string
	SkippedStepIDs   []string
}

// Pour resolves playbook inheritance via loader, merges variables, filters
// steps by condition, then creates a Workflow and one Task per surviving
// step, wired per §4.7.
func (s *Service) Pour(ctx context.Context, loader workflow.Loader, input PourInput, actor string) (*PourResult, error) {
	const op = "graph.Pour"

	resolved, err := workflow.ResolveInheritance(loader, input.PlaybookID)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	vars, err := workflow.MergeVariables(resolved, input.Vars)
	if err != nil {
		return nil, errs.Validation(op, errs.ReasonMissingRequiredField, err.Error(), nil)
	}
	surviving, skipped, err := workflow.FilterSteps(resolved.Steps, vars)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	now := s.now()
	wfID := idgen.NewRootID(input.PlaybookID, "", actor, now, 0)
	wf := types.NewWorkflow(wfID, actor, now, input.PlaybookID)
	wf.PlaybookRef = &input.PlaybookID
	wf.Variables = stringMapToAny(vars)
	if err := s.Create(ctx, wf, actor); err != nil {
		return nil, err
	}

	result := &PourResult{Workflow: wf, ResolvedVars: vars, SkippedStepIDs: skipped}
	stepToTaskID := map[string]string{}

	for i, step := range surviving {
		childID := idgen.ChildID(wfID, i+1)
		task := types.NewTask(childID, actor, s.now(), substitute(step.TitleTemplate, vars))
		if step.DescTemplate != "" {
			desc := substitute(step.DescTemplate, vars)
			docID := idgen.ChildID(childID, 1)
			doc := types.NewDocument(docID, actor, s.now(), "text/plain", desc)
			if err := s.Create(ctx, doc, actor); err != nil {
				return nil, err
			}
			task.DescriptionRef = &docID
		}
		if step.AssigneeTemplate != "" {
			assignee := substitute(step.AssigneeTemplate, vars)
			task.Assignee = &assignee
		}
		if step.Priority != 0 {
			task.Priority = step.Priority
		}
		if step.Complexity != 0 {
			task.Complexity = step.Complexity
		}
		if step.TaskType != "" {
			task.TaskType = step.TaskType
		}
		if err := s.Create(ctx, task, actor); err != nil {
			return nil, err
		}
		stepToTaskID[step.ID] = childID
		result.Tasks = append(result.Tasks, task)

		pc := types.Dependency{SourceID: childID, TargetID: wfID, Type: types.DepParentChild, CreatedBy: actor, CreatedAt: s.now()}
		if err := s.AddDependency(ctx, childID, wfID, types.DepParentChild, nil, actor); err != nil {
			return nil, err
		}
		result.ParentChildEdges = append(result.ParentChildEdges, pc)
	}

	for _, step := range surviving {
		dependentID := stepToTaskID[step.ID]
		for _, depID := range step.DependsOn {
			blockerID, ok := stepToTaskID[depID]
			if !ok {
				continue // dependency on a step that was itself skipped by condition
			}
			// blockerID must complete before dependentID proceeds: blocker is
			// the edge source (source blocks target, §3).
			if err := s.AddDependency(ctx, blockerID, dependentID, types.DepBlocks, nil, actor); err != nil {
				return nil, err
			}
			result.BlocksEdges = append(result.BlocksEdges, types.Dependency{SourceID: blockerID, TargetID: dependentID, Type: types.DepBlocks, CreatedBy: actor, CreatedAt: s.now()})
		}
	}

	return result, nil
}

// SyncWorkflowStatus recomputes and, if changed, persists the workflow's
// derived status from its current tasks' statuses. Called after a task
// belonging to a workflow transitions status.
func (s *Service) SyncWorkflowStatus(ctx context.Context, workflowID, actor string) error {
	row, err := s.backend.GetElement(ctx, workflowID)
	if err != nil || row == nil || row.Kind != types.KindWorkflow {
		return err
	}
	wf, err := s.getWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	tasks, err := s.workflowTasks(ctx, workflowID)
	if err != nil {
		return err
	}
	next, changed := workflow.ComputeStatus(wf.Status, tasks)
	if !changed {
		return nil
	}
	_, err = s.Update(ctx, workflowID, map[string]any{"status": string(next)}, actor)
	return err
}

func (s *Service) getWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	elem, err := s.Get(ctx, id, GetOptions{})
	if err != nil {
		return nil, err
	}
	return elem.(*types.Workflow), nil
}

// workflowTasks returns the tasks wired to workflowID by a parent-child
// edge (task is the source, workflow the target; see §4.7 step 6).
// Soft-deleted (tombstoned) tasks are included deliberately: the
// "any tombstone -> failed" transition in ComputeStatus needs to see them.
func (s *Service) workflowTasks(ctx context.Context, workflowID string) ([]*types.Task, error) {
	edges, err := s.GetDependents(ctx, workflowID, []types.DependencyType{types.DepParentChild})
	if err != nil {
		return nil, err
	}
	var tasks []*types.Task
	for _, e := range edges {
		row, err := s.backend.GetElement(ctx, e.SourceID)
		if err != nil {
			return nil, err
		}
		if row == nil || row.Kind != types.KindTask {
			continue
		}
		elem, err := storage.Decode(*row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, elem.(*types.Task))
	}
	return tasks, nil
}

// substitute replaces every {{key}} placeholder in tpl with vars[key].
func substitute(tpl string, vars map[string]string) string {
	out := tpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
