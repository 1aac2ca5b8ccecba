// Package graph implements the element API: the mutation kernel every
// read and write in the engine flows through. It holds no in-process
// lock of its own: each mutation runs in a single backend transaction,
// the serialisation point of spec.md §5. It also wires the blocked-cache service's automatic
// block/unblock transitions back into element state without letting
// those transitions re-enter the cache themselves.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notadamking/elemental/internal/blockedcache"
	"github.com/notadamking/elemental/internal/errs"
	"github.com/notadamking/elemental/internal/metrics"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
	"github.com/notadamking/elemental/internal/workflow"
)

// Service is the element API. All reads and writes the rest of the
// engine performs go through a Service bound to one storage.Backend.
type Service struct {
	backend storage.Backend
	cache   *blockedcache.Service
	now     func() time.Time
	metrics *metrics.Recorder
}

// SetMetrics attaches a Recorder every subsequent Create/Update/Delete call
// (and the blocked-cache's Rebuild) reports to. A nil Recorder (the
// default) disables instrumentation.
func (s *Service) SetMetrics(r *metrics.Recorder) {
	s.metrics = r
	s.cache.SetMetrics(r)
}

// New builds a Service over backend. now defaults to time.Now when nil,
// overridable in tests for deterministic timestamps.
func New(backend storage.Backend, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	s := &Service{backend: backend, now: now}
	s.cache = blockedcache.New(backend, blockedcache.Hooks{
		OnBlock:   s.autoBlock,
		OnUnblock: s.autoUnblock,
	})
	return s
}

// Cache exposes the blocked-cache collaborator for callers (e.g. a sync
// importer) that need to trigger a rebuild directly.
func (s *Service) Cache() *blockedcache.Service { return s.cache }

// autoBlock is the blockedcache.Hooks.OnBlock callback: it flips a Task to
// `blocked` and appends an auto_blocked event under the reserved
// system actor, bypassing the cache-signalling step on the update path
// (spec.md §9) since the cache is the one driving this transition.
func (s *Service) autoBlock(ctx context.Context, elementID string, prevStatus types.TaskStatus) error {
	return s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		return s.setTaskStatusSilently(ctx, tx, elementID, types.TaskBlocked, types.EventAutoBlocked)
	})
}

// autoUnblock is the OnUnblock callback, restoring the status the task was
// in immediately before it was auto-blocked.
func (s *Service) autoUnblock(ctx context.Context, elementID string, restoreStatus types.TaskStatus) error {
	return s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		return s.setTaskStatusSilently(ctx, tx, elementID, restoreStatus, types.EventAutoUnblocked)
	})
}

func (s *Service) setTaskStatusSilently(ctx context.Context, tx storage.Backend, id string, status types.TaskStatus, evType types.EventType) error {
	row, err := tx.GetElement(ctx, id)
	if err != nil || row == nil {
		return err
	}
	elem, err := storage.Decode(*row)
	if err != nil {
		return err
	}
	task, ok := elem.(*types.Task)
	if !ok {
		return nil
	}
	oldRaw, _ := json.Marshal(task)
	task.Status = status
	task.UpdatedAt = s.now()
	if _, err := types.RefreshContentHash(task); err != nil {
		return err
	}
	newRow, err := storage.Encode(task)
	if err != nil {
		return err
	}
	if err := tx.PutElement(ctx, newRow); err != nil {
		return err
	}
	newRaw, _ := json.Marshal(task)
	if _, err := tx.AppendEvent(ctx, types.Event{
		ElementID: id, Type: evType, Actor: types.SystemBlockedCacheActor,
		OldValue: oldRaw, NewValue: newRaw, CreatedAt: s.now(),
	}); err != nil {
		return err
	}
	return tx.MarkDirty(ctx, id)
}

// GetOptions parameterises get(id, opts).
type GetOptions struct {
	Hydrate bool
}

// Get returns one element, or (nil, nil) if absent. With Hydrate set on a
// Task, descriptionRef/designRef are resolved to their Document bodies in
// one batched lookup rather than two sequential round trips.
func (s *Service) Get(ctx context.Context, id string, opts GetOptions) (types.Element, error) {
	row, err := s.backend.GetElement(ctx, id)
	if err != nil {
		return nil, errs.Wrap("graph.Get", err)
	}
	if row == nil {
		return nil, nil
	}
	elem, err := storage.Decode(*row)
	if err != nil {
		return nil, errs.Wrap("graph.Get", err)
	}
	if opts.Hydrate {
		if task, ok := elem.(*types.Task); ok {
			if err := s.hydrateTask(ctx, task); err != nil {
				return nil, err
			}
		}
	}
	return elem, nil
}

// GetEvents implements get_events(id, filter) (§4.5): the element API's
// read path onto the backend's append-only event log, so callers reach it
// through the same Service every other read and write goes through rather
// than needing a storage.Backend of their own.
func (s *Service) GetEvents(ctx context.Context, id string, f storage.EventFilter) ([]types.Event, error) {
	events, err := s.backend.Events(ctx, id, f)
	if err != nil {
		return nil, errs.Wrap("graph.GetEvents", err)
	}
	return events, nil
}

// hydrateTask resolves a Task's Document references concurrently, matching
// §4.3's "one batched lookup" requirement.
func (s *Service) hydrateTask(ctx context.Context, task *types.Task) error {
	refs := map[string]*string{}
	if task.DescriptionRef != nil {
		refs["description"] = task.DescriptionRef
	}
	if task.DesignRef != nil {
		refs["design"] = task.DesignRef
	}
	if len(refs) == 0 {
		return nil
	}

	docs, err := fetchMany(ctx, s.backend, refs)
	if err != nil {
		return errs.Wrap("graph.Get", err)
	}
	if doc, ok := docs["description"]; ok {
		task.Metadata = withHydrated(task.Metadata, "descriptionBody", doc)
	}
	if doc, ok := docs["design"]; ok {
		task.Metadata = withHydrated(task.Metadata, "designBody", doc)
	}
	return nil
}

func withHydrated(m map[string]any, key string, doc *types.Document) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[key] = doc.Content
	return m
}

// List applies filter f and returns matching live elements.
func (s *Service) List(ctx context.Context, f types.Filter) ([]types.Element, error) {
	page, err := s.ListPaginated(ctx, f)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ListPaginated is list_paginated(filter), returning the full page shape.
// Task-specific predicates (status, priority, assignee, ...) are applied
// after the backend page is fetched, since the storage layer's ElementQuery
// only models the kind-agnostic filter surface; Total/HasMore therefore
// reflect the backend-level match count, not the post-filter count.
func (s *Service) ListPaginated(ctx context.Context, f types.Filter) (types.Page, error) {
	limit := f.ClampLimit()
	q := toElementQuery(f, limit)
	rows, total, err := s.backend.ListElements(ctx, q)
	if err != nil {
		return types.Page{}, errs.Wrap("graph.ListPaginated", err)
	}
	items, err := decodeAndFilterTasks(rows, f)
	if err != nil {
		return types.Page{}, errs.Wrap("graph.ListPaginated", err)
	}
	return types.Page{
		Items:   items,
		Total:   total,
		Offset:  f.Offset,
		Limit:   limit,
		HasMore: f.Offset+len(rows) < total,
	}, nil
}

func toElementQuery(f types.Filter, limit int) storage.ElementQuery {
	return storage.ElementQuery{
		Kind:                 f.Kind,
		Creator:              f.Creator,
		CreatedAfter:         f.CreatedAfter,
		CreatedBefore:        f.CreatedBefore,
		UpdatedAfter:         f.UpdatedAfter,
		UpdatedBefore:        f.UpdatedBefore,
		IncludeDeleted:       f.IncludeDeleted,
		TagsAll:              f.TagsAll,
		TagsAny:              f.TagsAny,
		OrderByCreatedAtDesc: true,
		Limit:                limit,
		Offset:               f.Offset,
	}
}

// decodeAndFilterTasks decodes every row and applies the Task-specific
// filter fields the storage layer doesn't know about.
func decodeAndFilterTasks(rows []storage.ElementRow, f types.Filter) ([]types.Element, error) {
	items := make([]types.Element, 0, len(rows))
	for _, row := range rows {
		elem, err := storage.Decode(row)
		if err != nil {
			return nil, err
		}
		if task, ok := elem.(*types.Task); ok && !matchesTaskFilter(task, f) {
			continue
		}
		items = append(items, elem)
	}
	return items, nil
}

func matchesTaskFilter(t *types.Task, f types.Filter) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Complexity != nil && t.Complexity != *f.Complexity {
		return false
	}
	if f.Assignee != nil && (t.Assignee == nil || *t.Assignee != *f.Assignee) {
		return false
	}
	if f.Owner != nil && (t.Owner == nil || *t.Owner != *f.Owner) {
		return false
	}
	if f.TaskType != nil && t.TaskType != *f.TaskType {
		return false
	}
	if f.HasDeadline != nil && (t.Deadline != nil) != *f.HasDeadline {
		return false
	}
	if f.DeadlineBefore != nil && (t.Deadline == nil || !t.Deadline.Before(*f.DeadlineBefore)) {
		return false
	}
	if f.DeadlineAfter != nil && (t.Deadline == nil || !t.Deadline.After(*f.DeadlineAfter)) {
		return false
	}
	return true
}

// Search takes a query string only; it has no filter argument. It returns
// live elements whose serialized data (every field, key names included) or
// tags contain query as a substring, capped at types.MaxSearchResults and
// ordered by updatedAt descending (the backend applies the match, the order
// and the cap). The memory backend matches case-insensitively; the SQL
// backend's LIKE follows the column collation.
func (s *Service) Search(ctx context.Context, query string) ([]types.Element, error) {
	rows, err := s.backend.SearchElements(ctx, query, types.MaxSearchResults)
	if err != nil {
		return nil, errs.Wrap("graph.Search", err)
	}
	items := make([]types.Element, 0, len(rows))
	for _, row := range rows {
		elem, err := storage.Decode(row)
		if err != nil {
			return nil, err
		}
		items = append(items, elem)
	}
	return items, nil
}

// Create persists a factory-produced element inside one transaction:
// uniqueness checks, the row write, its tags, and a `created` event.
func (s *Service) Create(ctx context.Context, e types.Element, actor string) error {
	if err := e.Validate(); err != nil {
		return err
	}

	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		if err := s.checkUniqueness(ctx, tx, e); err != nil {
			return err
		}
		if msg, ok := e.(*types.Message); ok {
			if err := s.checkSenderIsMember(ctx, tx, msg); err != nil {
				return err
			}
		}
		if _, err := types.RefreshContentHash(e); err != nil {
			return err
		}
		row, err := storage.Encode(e)
		if err != nil {
			return err
		}
		if err := tx.PutElement(ctx, row); err != nil {
			return err
		}
		raw, _ := json.Marshal(e)
		if _, err := tx.AppendEvent(ctx, types.Event{
			ElementID: e.ElementBase().ID, Type: types.EventCreated, Actor: actor,
			NewValue: raw, CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		return tx.MarkDirty(ctx, e.ElementBase().ID)
	})
	if err == nil {
		s.metrics.RecordMutation(ctx, string(e.ElementBase().Kind), "create")
	}
	return err
}

func (s *Service) checkUniqueness(ctx context.Context, tx storage.Backend, e types.Element) error {
	const op = "graph.Create"
	switch v := e.(type) {
	case *types.Entity:
		kind := types.KindEntity
		rows, _, err := tx.ListElements(ctx, storage.ElementQuery{Kind: &kind, JSONEquals: map[string]any{"name": v.Name}})
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return errs.Conflict(op, errs.ReasonDuplicateName, "entity name already in use", map[string]any{"name": v.Name})
		}
	case *types.Channel:
		if v.Type == types.ChannelGroup {
			kind := types.KindChannel
			rows, _, err := tx.ListElements(ctx, storage.ElementQuery{Kind: &kind, JSONEquals: map[string]any{"name": v.Name}})
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				return errs.Conflict(op, errs.ReasonDuplicateName, "channel name already in use", map[string]any{"name": v.Name})
			}
		}
	}
	return nil
}

func (s *Service) checkSenderIsMember(ctx context.Context, tx storage.Backend, msg *types.Message) error {
	const op = "graph.Create"
	row, err := tx.GetElement(ctx, msg.ChannelID)
	if err != nil {
		return err
	}
	if row == nil {
		return errs.NotFound(op, "channel", msg.ChannelID)
	}
	elem, err := storage.Decode(*row)
	if err != nil {
		return err
	}
	ch, ok := elem.(*types.Channel)
	if !ok {
		return errs.NotFound(op, "channel", msg.ChannelID)
	}
	if !ch.HasMember(msg.Sender) {
		return errs.Membership(op, errs.ReasonNotAMember, "sender is not a member of the channel", map[string]any{"channelId": msg.ChannelID, "sender": msg.Sender})
	}
	return nil
}

// Update applies partial over id's current state and returns the updated
// element. Status deltas are reported to the blocked cache after the
// transaction commits (§4.3).
func (s *Service) Update(ctx context.Context, id string, partial map[string]any, actor string) (types.Element, error) {
	const op = "graph.Update"
	var result types.Element
	var wasTerminal, isTerminal bool
	var statusCrossed bool
	var taskStatusChanged bool

	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		row, err := tx.GetElement(ctx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return errs.NotFound(op, "element", id)
		}
		if row.Kind == types.KindMessage {
			return fmt.Errorf("%s: %w: messages are immutable", op, errs.ErrImmutable)
		}

		before, err := storage.Decode(*row)
		if err != nil {
			return err
		}
		elem, err := storage.Decode(*row)
		if err != nil {
			return err
		}
		oldRaw, _ := json.Marshal(before)

		if err := applyPatch(elem, partial); err != nil {
			return err
		}
		elem.ElementBase().UpdatedAt = s.now()

		evType := types.EventUpdated
		switch v := elem.(type) {
		case *types.Task:
			bt := before.(*types.Task)
			if v.Status == types.TaskClosed && bt.Status != types.TaskClosed {
				evType = types.EventClosed
				closedAt := s.now()
				v.ClosedAt = &closedAt
			} else if bt.Status == types.TaskClosed && v.Status != types.TaskClosed {
				evType = types.EventReopened
				v.ClosedAt = nil
			}
			taskStatusChanged = v.Status != bt.Status
		case *types.Plan:
			bp := before.(*types.Plan)
			if v.Status.IsClosed() && !bp.Status.IsClosed() {
				evType = types.EventClosed
			} else if bp.Status.IsClosed() && !v.Status.IsClosed() {
				evType = types.EventReopened
			}
		case *types.Document:
			bd := before.(*types.Document)
			v.Version = bd.Version + 1
			v.PreviousVersionID = &id
			if err := tx.PutDocumentVersion(ctx, types.DocumentVersion{
				DocumentID: id, Version: bd.Version, Payload: *bd, CreatedAt: s.now(),
			}); err != nil {
				return err
			}
		}

		wasTerminal = types.IsTerminalElement(before)
		isTerminal = types.IsTerminalElement(elem)
		statusCrossed = wasTerminal != isTerminal

		if _, err := types.RefreshContentHash(elem); err != nil {
			return err
		}
		newRow, err := storage.Encode(elem)
		if err != nil {
			return err
		}
		if err := tx.PutElement(ctx, newRow); err != nil {
			return err
		}
		newRaw, _ := json.Marshal(elem)
		if _, err := tx.AppendEvent(ctx, types.Event{
			ElementID: id, Type: evType, Actor: actor, OldValue: oldRaw, NewValue: newRaw, CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		if err := tx.MarkDirty(ctx, id); err != nil {
			return err
		}
		result = elem
		return nil
	})
	if err != nil {
		return nil, err
	}

	if statusCrossed {
		if err := s.cache.OnStatusChanged(ctx, id, wasTerminal, isTerminal); err != nil {
			return result, err
		}
	}
	if taskStatusChanged {
		if wfID, ok := s.parentWorkflowID(ctx, id); ok {
			if err := s.SyncWorkflowStatus(ctx, wfID, actor); err != nil {
				return result, err
			}
		}
	}
	s.metrics.RecordMutation(ctx, string(result.ElementBase().Kind), "update")
	return result, nil
}

// parentWorkflowID reports the workflow a task is wired to via an
// outgoing parent-child edge, if any.
func (s *Service) parentWorkflowID(ctx context.Context, taskID string) (string, bool) {
	edges, err := s.GetDependencies(ctx, taskID, []types.DependencyType{types.DepParentChild})
	if err != nil {
		return "", false
	}
	for _, e := range edges {
		row, err := s.backend.GetElement(ctx, e.TargetID)
		if err == nil && row != nil && row.Kind == types.KindWorkflow {
			return e.TargetID, true
		}
	}
	return "", false
}

// applyPatch overlays partial on e's JSON representation, dropping the
// immutable keys (§3 invariant 1) before re-decoding into e.
func applyPatch(e types.Element, partial map[string]any) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return err
	}
	for k, v := range partial {
		switch k {
		case "id", "type", "createdAt", "createdBy":
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		base[k] = encoded
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, e)
}

// DeleteOptions parameterises delete(id, opts).
type DeleteOptions struct {
	Actor  string
	Reason string
}

// Delete soft-deletes id: tombstones status where applicable, cascades
// dependency removal, and signals the blocked cache to re-evaluate
// dependents.
func (s *Service) Delete(ctx context.Context, id string, opts DeleteOptions) error {
	const op = "graph.Delete"
	var wasTerminal bool
	var cascadedBlocks []types.Dependency
	var parentWorkflowID string
	var hasParentWorkflow bool

	var kind types.Kind
	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		row, err := tx.GetElement(ctx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return errs.NotFound(op, "element", id)
		}
		if row.Kind == types.KindMessage {
			return fmt.Errorf("%s: %w: messages are immutable", op, errs.ErrImmutable)
		}
		kind = row.Kind

		elem, err := storage.Decode(*row)
		if err != nil {
			return err
		}
		wasTerminal = types.IsTerminalElement(elem)
		oldRaw, _ := json.Marshal(elem)

		// Capture id's outgoing blocks/gate edges before the cascade delete
		// below removes them: the post-commit cache signal needs to know
		// which dependents to recompute once the edges are gone.
		cascadedBlocks, err = tx.OutgoingDependencies(ctx, id, []types.DependencyType{types.DepBlocks, types.DepGate})
		if err != nil {
			return err
		}

		// Likewise capture the task's parent workflow, if any, before its
		// parent-child edge is cascade-deleted: Delete's tombstone must
		// still drive the workflow's "any tombstone -> failed" transition.
		if kind == types.KindTask {
			pcEdges, err := tx.OutgoingDependencies(ctx, id, []types.DependencyType{types.DepParentChild})
			if err != nil {
				return err
			}
			for _, e := range pcEdges {
				wfRow, err := tx.GetElement(ctx, e.TargetID)
				if err != nil {
					return err
				}
				if wfRow != nil && wfRow.Kind == types.KindWorkflow {
					parentWorkflowID = e.TargetID
					hasParentWorkflow = true
					break
				}
			}
		}

		switch v := elem.(type) {
		case *types.Task:
			v.Status = types.TaskTombstone
		case *types.Plan:
			v.Status = types.PlanCancelled
		case *types.Workflow:
			v.Status = types.WorkflowFailed
		}
		now := s.now()
		elem.ElementBase().DeletedAt = &now
		elem.ElementBase().UpdatedAt = now
		if _, err := types.RefreshContentHash(elem); err != nil {
			return err
		}
		newRow, err := storage.Encode(elem)
		if err != nil {
			return err
		}
		if err := tx.PutElement(ctx, newRow); err != nil {
			return err
		}

		if err := tx.DeleteDependenciesTouching(ctx, id); err != nil {
			return err
		}

		var detail map[string]any
		if opts.Reason != "" {
			detail = map[string]any{"reason": opts.Reason}
		}
		newRaw, _ := json.Marshal(elem)
		evt := types.Event{ElementID: id, Type: types.EventDeleted, Actor: opts.Actor, OldValue: oldRaw, NewValue: newRaw, CreatedAt: now}
		if detail != nil {
			detailRaw, _ := json.Marshal(detail)
			evt.NewValue = detailRaw
		}
		if _, err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		return tx.MarkDirty(ctx, id)
	})
	if err != nil {
		return err
	}
	s.metrics.RecordMutation(ctx, string(kind), "delete")

	if !wasTerminal {
		// id's own outgoing blocks/gate edges are already gone (cascaded
		// above), so recompute each captured target directly instead of
		// routing through cache.OnStatusChanged, which would rediscover
		// dependents via those now-deleted edges and find none.
		for _, dep := range cascadedBlocks {
			if err := s.cache.OnDependencyRemoved(ctx, id, dep.TargetID, dep.Type); err != nil {
				return err
			}
		}
	}
	if hasParentWorkflow {
		// The cascade above removed the task's parent-child edge, so
		// workflowTasks no longer sees the tombstone; apply it directly.
		wf, err := s.getWorkflow(ctx, parentWorkflowID)
		if err != nil {
			return err
		}
		if next, changed := workflow.ComputeStatus(wf.Status, []*types.Task{{Status: types.TaskTombstone}}); changed {
			_, err = s.Update(ctx, parentWorkflowID, map[string]any{"status": string(next)}, opts.Actor)
			return err
		}
	}
	return nil
}

// fetchMany batches document lookups for hydrateTask using an errgroup so
// the N reference lookups run concurrently instead of sequentially.
func fetchMany(ctx context.Context, backend storage.Backend, refs map[string]*string) (map[string]*types.Document, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make(map[string]*types.Document, len(refs))
	var mu sync.Mutex

	for key, ref := range refs {
		key, ref := key, ref
		g.Go(func() error {
			row, err := backend.GetElement(ctx, *ref)
			if err != nil || row == nil {
				return err
			}
			elem, err := storage.Decode(*row)
			if err != nil {
				return err
			}
			doc, ok := elem.(*types.Document)
			if !ok {
				return nil
			}
			mu.Lock()
			results[key] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
