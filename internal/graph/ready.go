package graph

import (
	"context"
	"sort"

	"github.com/notadamking/elemental/internal/errs"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// Ready returns live tasks in {open, in_progress} that are not present in
// the blocked cache and have no scheduledFor strictly in the future,
// sorted by priority ascending (1 first), limit applied after sorting.
func (s *Service) Ready(ctx context.Context, f types.Filter) ([]*types.Task, error) {
	const op = "graph.Ready"
	kind := types.KindTask
	rows, _, err := s.backend.ListElements(ctx, storage.ElementQuery{Kind: &kind, TagsAll: f.TagsAll, TagsAny: f.TagsAny})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	now := s.now()
	var ready []*types.Task
	for _, row := range rows {
		elem, err := storage.Decode(row)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		task := elem.(*types.Task)
		if task.Status != types.TaskOpen && task.Status != types.TaskInProgress {
			continue
		}
		if task.ScheduledFor != nil && task.ScheduledFor.After(now) {
			continue
		}
		blocked, err := s.backend.BlockedRows(ctx, task.ID)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		if len(blocked) > 0 {
			continue
		}
		if !matchesTaskFilter(task, f) {
			continue
		}
		ready = append(ready, task)
	}

	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority < ready[j].Priority })

	if f.Limit > 0 && len(ready) > f.Limit {
		ready = ready[:f.Limit]
	}
	return ready, nil
}

// BlockedTaskBlocker names one reason a blocked task is currently blocked.
type BlockedTaskBlocker struct {
	BlockerID string
	Reason    string
}

// BlockedTask is one row of blocked(filter)'s result: a live task present
// in the blocked cache, augmented with every blockedBy/blockReason pair.
type BlockedTask struct {
	*types.Task
	Blockers []BlockedTaskBlocker
}

// Blocked returns live tasks present in the blocked cache.
func (s *Service) Blocked(ctx context.Context, f types.Filter) ([]BlockedTask, error) {
	const op = "graph.Blocked"
	kind := types.KindTask
	rows, _, err := s.backend.ListElements(ctx, storage.ElementQuery{Kind: &kind, TagsAll: f.TagsAll, TagsAny: f.TagsAny})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	var out []BlockedTask
	for _, row := range rows {
		elem, err := storage.Decode(row)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		task := elem.(*types.Task)
		if !matchesTaskFilter(task, f) {
			continue
		}
		blocked, err := s.backend.BlockedRows(ctx, task.ID)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		if len(blocked) == 0 {
			continue
		}
		blockers := make([]BlockedTaskBlocker, 0, len(blocked))
		for _, b := range blocked {
			blockers = append(blockers, BlockedTaskBlocker{BlockerID: b.BlockerID, Reason: b.Reason})
		}
		out = append(out, BlockedTask{Task: task, Blockers: blockers})
	}
	return out, nil
}
