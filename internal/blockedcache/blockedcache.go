// Package blockedcache maintains the derived (element_id, blocker_id,
// reason) index described in spec.md §4.4: which elements are currently
// blocked, kept in sync incrementally as dependency edges and element
// statuses change, with a from-scratch rebuild that must match the
// incrementally maintained state exactly.
package blockedcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/notadamking/elemental/internal/metrics"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

const listBatchSize = 500

// Hooks are the two callbacks the service invokes on automatic Task status
// transitions. The Element API wires these to an internal update path that
// appends an auto_blocked/auto_unblocked event with actor
// types.SystemBlockedCacheActor and bypasses the cache-signalling step
// (spec.md §9 "auto-transitions without re-entry").
type Hooks struct {
	OnBlock   func(ctx context.Context, elementID string, prevStatus types.TaskStatus) error
	OnUnblock func(ctx context.Context, elementID string, restoreStatus types.TaskStatus) error
}

// Service is the blocked-cache collaborator.
type Service struct {
	backend storage.Backend
	hooks   Hooks
	metrics *metrics.Recorder
}

// New constructs a Service over backend. hooks may be the zero value if the
// caller doesn't need automatic Task status transitions (e.g. during bulk
// rebuild or in tests that only assert on cache rows).
func New(backend storage.Backend, hooks Hooks) *Service {
	return &Service{backend: backend, hooks: hooks}
}

// SetMetrics attaches a Recorder Rebuild reports its duration and elements
// checked to. A nil Recorder (the default) disables instrumentation.
func (s *Service) SetMetrics(r *metrics.Recorder) { s.metrics = r }

// GateResult reports whether a gate edge is satisfied after a gate
// operation.
type GateResult struct {
	Satisfied bool
}

// RebuildStats is rebuild()'s return shape per spec.md §4.4.
type RebuildStats struct {
	ElementsChecked int
	ElementsBlocked int
	Duration        time.Duration
}

// OnDependencyAdded reacts to a new dependency edge. Only `blocks` and
// `gate` edges affect the cache; other types are a no-op.
func (s *Service) OnDependencyAdded(ctx context.Context, dep types.Dependency) error {
	switch dep.Type {
	case types.DepBlocks, types.DepGate:
		return s.recomputeAndCascade(ctx, dep.TargetID, map[string]bool{}, false)
	default:
		return nil
	}
}

// OnDependencyRemoved reacts to a removed edge by recomputing the blocked
// set for tgt (and, since rebuild must be bit-exact with the incremental
// state, cascading onward through whatever tgt itself blocks).
func (s *Service) OnDependencyRemoved(ctx context.Context, src, tgt string, typ types.DependencyType) error {
	switch typ {
	case types.DepBlocks, types.DepGate:
		return s.recomputeAndCascade(ctx, tgt, map[string]bool{}, false)
	default:
		return nil
	}
}

// OnStatusChanged reacts to an element's status crossing the terminal
// boundary (closed/tombstone <-> live), the only transitions that change
// whether the element blocks its dependents. Other transitions (e.g.
// open -> in_progress) are a no-op for blocking purposes.
func (s *Service) OnStatusChanged(ctx context.Context, elementID string, wasTerminal, isTerminal bool) error {
	if wasTerminal == isTerminal {
		return nil
	}
	deps, err := s.backend.OutgoingDependencies(ctx, elementID, []types.DependencyType{types.DepBlocks})
	if err != nil {
		return fmt.Errorf("blockedcache: outgoing dependencies of %s: %w", elementID, err)
	}
	visited := map[string]bool{}
	for _, d := range deps {
		if err := s.recomputeAndCascade(ctx, d.TargetID, visited, false); err != nil {
			return err
		}
	}
	return nil
}

// SatisfyGate marks a gate edge as satisfied outright, idempotently.
func (s *Service) SatisfyGate(ctx context.Context, src, tgt, actor string) (GateResult, error) {
	dep, err := s.backend.GetDependency(ctx, src, tgt, types.DepGate)
	if err != nil {
		return GateResult{}, err
	}
	if dep == nil {
		return GateResult{}, fmt.Errorf("blockedcache: no gate edge %s->%s", src, tgt)
	}
	gm, err := dep.GateMeta()
	if err != nil {
		return GateResult{}, err
	}
	gm.Satisfied = true
	newDep, err := dep.WithGateMeta(gm)
	if err != nil {
		return GateResult{}, err
	}
	if err := s.backend.PutDependency(ctx, newDep); err != nil {
		return GateResult{}, err
	}
	if err := s.recomputeAndCascade(ctx, tgt, map[string]bool{}, false); err != nil {
		return GateResult{}, err
	}
	return GateResult{Satisfied: true}, nil
}

// RecordApproval adds approver to a gate edge's approved set and
// re-evaluates quorum satisfaction.
func (s *Service) RecordApproval(ctx context.Context, src, tgt, approver string) (GateResult, error) {
	return s.mutateApproval(ctx, src, tgt, func(approved []string) []string {
		for _, a := range approved {
			if a == approver {
				return approved
			}
		}
		return append(approved, approver)
	})
}

// RemoveApproval removes approver from a gate edge's approved set and
// re-evaluates quorum satisfaction.
func (s *Service) RemoveApproval(ctx context.Context, src, tgt, approver string) (GateResult, error) {
	return s.mutateApproval(ctx, src, tgt, func(approved []string) []string {
		out := approved[:0:0]
		for _, a := range approved {
			if a != approver {
				out = append(out, a)
			}
		}
		return out
	})
}

func (s *Service) mutateApproval(ctx context.Context, src, tgt string, edit func([]string) []string) (GateResult, error) {
	dep, err := s.backend.GetDependency(ctx, src, tgt, types.DepGate)
	if err != nil {
		return GateResult{}, err
	}
	if dep == nil {
		return GateResult{}, fmt.Errorf("blockedcache: no gate edge %s->%s", src, tgt)
	}
	gm, err := dep.GateMeta()
	if err != nil {
		return GateResult{}, err
	}
	gm.Approved = edit(gm.Approved)
	gm.Satisfied = gm.IsSatisfied()
	newDep, err := dep.WithGateMeta(gm)
	if err != nil {
		return GateResult{}, err
	}
	if err := s.backend.PutDependency(ctx, newDep); err != nil {
		return GateResult{}, err
	}
	if err := s.recomputeAndCascade(ctx, tgt, map[string]bool{}, false); err != nil {
		return GateResult{}, err
	}
	return GateResult{Satisfied: gm.Satisfied}, nil
}

// Rebuild deletes all blocked rows and recomputes them from scratch by
// iterating every live element to a fixpoint, without invoking the
// auto-block/auto-unblock hooks (this is a cache recompute, not a status
// transition). Its output must match the incrementally maintained state
// exactly (spec.md §4.4, §8 property 4), so the pre-block status recorded
// for an element before the rebuild is carried over to its new rows.
func (s *Service) Rebuild(ctx context.Context) (RebuildStats, error) {
	start := time.Now()
	prior, err := s.backend.AllBlockedRows(ctx)
	if err != nil {
		return RebuildStats{}, err
	}
	priorStatus := map[string]string{}
	for _, row := range prior {
		priorStatus[row.ElementID] = row.PreBlockStatus
	}
	if err := s.backend.ClearBlockedCache(ctx); err != nil {
		return RebuildStats{}, fmt.Errorf("blockedcache: clear cache: %w", err)
	}

	ids, err := s.liveElementIDs(ctx)
	if err != nil {
		return RebuildStats{}, err
	}

	maxPasses := len(ids) + 1
	for pass := 0; pass < maxPasses; pass++ {
		changedAny := false
		for _, id := range ids {
			changed, err := s.recomputeOne(ctx, id, true)
			if err != nil {
				return RebuildStats{}, err
			}
			if changed {
				changedAny = true
			}
		}
		if !changedAny {
			break
		}
	}

	all, err := s.backend.AllBlockedRows(ctx)
	if err != nil {
		return RebuildStats{}, err
	}
	blockedIDs := map[string]bool{}
	for _, row := range all {
		blockedIDs[row.ElementID] = true
		if st := priorStatus[row.ElementID]; st != "" && row.PreBlockStatus == "" {
			row.PreBlockStatus = st
			if err := s.backend.PutBlockedRow(ctx, row); err != nil {
				return RebuildStats{}, err
			}
		}
	}

	stats := RebuildStats{
		ElementsChecked: len(ids),
		ElementsBlocked: len(blockedIDs),
		Duration:        time.Since(start),
	}
	s.metrics.RecordRebuild(ctx, stats.ElementsChecked, stats.Duration)
	return stats, nil
}

func (s *Service) liveElementIDs(ctx context.Context) ([]string, error) {
	var ids []string
	offset := 0
	for {
		rows, total, err := s.backend.ListElements(ctx, storage.ElementQuery{Limit: listBatchSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("blockedcache: list elements: %w", err)
		}
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		offset += len(rows)
		if len(rows) == 0 || offset >= total {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// recomputeAndCascade recomputes id's blocked set and, if it changed,
// propagates to every element id directly blocks (elements with an
// outgoing `blocks` edge where id is the source), since their transitive
// blocker set may now be stale.
func (s *Service) recomputeAndCascade(ctx context.Context, id string, visited map[string]bool, silent bool) error {
	if visited[id] {
		return nil
	}
	visited[id] = true

	changed, err := s.recomputeOne(ctx, id, silent)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	deps, err := s.backend.OutgoingDependencies(ctx, id, []types.DependencyType{types.DepBlocks})
	if err != nil {
		return fmt.Errorf("blockedcache: outgoing dependencies of %s: %w", id, err)
	}
	for _, d := range deps {
		if err := s.recomputeAndCascade(ctx, d.TargetID, visited, silent); err != nil {
			return err
		}
	}
	return nil
}

// recomputeOne recomputes id's desired blocked-row set from its incoming
// blocks/gate edges and reconciles it against the persisted rows, firing
// the auto-block/auto-unblock hooks on the live->blocked and
// blocked->live edges unless silent (used by Rebuild).
func (s *Service) recomputeOne(ctx context.Context, id string, silent bool) (bool, error) {
	desired, err := s.computeDesired(ctx, id)
	if err != nil {
		return false, err
	}
	existing, err := s.backend.BlockedRows(ctx, id)
	if err != nil {
		return false, err
	}

	existingMap := make(map[string]storage.BlockedRow, len(existing))
	for _, row := range existing {
		existingMap[row.BlockerID] = row
	}

	wasBlocked := len(existing) > 0
	willBeBlocked := len(desired) > 0
	changed := wasBlocked != willBeBlocked

	for blockerID := range existingMap {
		if _, ok := desired[blockerID]; !ok {
			if err := s.backend.DeleteBlockedRowsByBlocker(ctx, id, blockerID); err != nil {
				return false, err
			}
			changed = true
		}
	}

	preBlockStatus := ""
	if !wasBlocked && willBeBlocked && !silent {
		status, err := s.taskStatus(ctx, id)
		if err != nil {
			return false, err
		}
		if status != nil {
			preBlockStatus = string(*status)
		}
	} else if wasBlocked {
		for _, row := range existing {
			if row.PreBlockStatus != "" {
				preBlockStatus = row.PreBlockStatus
				break
			}
		}
	}

	for blockerID, reason := range desired {
		if prior, ok := existingMap[blockerID]; ok && prior.Reason == reason && prior.PreBlockStatus == preBlockStatus {
			continue
		}
		changed = true
		if err := s.backend.PutBlockedRow(ctx, storage.BlockedRow{
			ElementID: id, BlockerID: blockerID, Reason: reason, PreBlockStatus: preBlockStatus,
		}); err != nil {
			return false, err
		}
	}

	if !silent {
		if !wasBlocked && willBeBlocked {
			if err := s.maybeAutoBlock(ctx, id, preBlockStatus); err != nil {
				return false, err
			}
		}
		if wasBlocked && !willBeBlocked {
			if err := s.maybeAutoUnblock(ctx, id, preBlockStatus); err != nil {
				return false, err
			}
		}
	}

	return changed, nil
}

func (s *Service) maybeAutoBlock(ctx context.Context, id, prevStatus string) error {
	if s.hooks.OnBlock == nil {
		return nil
	}
	status, err := s.taskStatus(ctx, id)
	if err != nil || status == nil {
		return err
	}
	if *status == types.TaskBlocked || status.IsTerminal() {
		return nil
	}
	return s.hooks.OnBlock(ctx, id, *status)
}

func (s *Service) maybeAutoUnblock(ctx context.Context, id, restoreStatus string) error {
	if s.hooks.OnUnblock == nil {
		return nil
	}
	status, err := s.taskStatus(ctx, id)
	if err != nil || status == nil {
		return err
	}
	if *status != types.TaskBlocked {
		return nil
	}
	restore := types.TaskOpen
	if restoreStatus != "" {
		restore = types.TaskStatus(restoreStatus)
	}
	return s.hooks.OnUnblock(ctx, id, restore)
}

func (s *Service) taskStatus(ctx context.Context, id string) (*types.TaskStatus, error) {
	row, err := s.backend.GetElement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("blockedcache: get element %s: %w", id, err)
	}
	if row == nil || row.Kind != types.KindTask {
		return nil, nil
	}
	elem, err := storage.Decode(*row)
	if err != nil {
		return nil, err
	}
	task, ok := elem.(*types.Task)
	if !ok {
		return nil, nil
	}
	return &task.Status, nil
}

// computeDesired returns the full blocker-id -> reason map id should have,
// given its current incoming blocks/gate edges.
func (s *Service) computeDesired(ctx context.Context, id string) (map[string]string, error) {
	desired := map[string]string{}

	incoming, err := s.backend.IncomingDependencies(ctx, id, []types.DependencyType{types.DepBlocks, types.DepGate})
	if err != nil {
		return nil, fmt.Errorf("blockedcache: incoming dependencies of %s: %w", id, err)
	}

	for _, dep := range incoming {
		switch dep.Type {
		case types.DepBlocks:
			if err := s.addBlocksContribution(ctx, dep, desired); err != nil {
				return nil, err
			}
		case types.DepGate:
			if err := s.addGateContribution(dep, desired); err != nil {
				return nil, err
			}
		}
	}
	return desired, nil
}

func (s *Service) addBlocksContribution(ctx context.Context, dep types.Dependency, desired map[string]string) error {
	srcRow, err := s.backend.GetElement(ctx, dep.SourceID)
	if err != nil {
		return fmt.Errorf("blockedcache: get element %s: %w", dep.SourceID, err)
	}
	if srcRow == nil {
		return nil
	}
	srcElem, err := storage.Decode(*srcRow)
	if err != nil {
		return err
	}
	if types.IsTerminalElement(srcElem) {
		return nil
	}

	desired[dep.SourceID] = "blocked by " + dep.SourceID

	srcBlockers, err := s.backend.BlockedRows(ctx, dep.SourceID)
	if err != nil {
		return err
	}
	for _, sb := range srcBlockers {
		if _, ok := desired[sb.BlockerID]; !ok {
			desired[sb.BlockerID] = "blocked by " + sb.BlockerID
		}
	}
	return nil
}

func (s *Service) addGateContribution(dep types.Dependency, desired map[string]string) error {
	gm, err := dep.GateMeta()
	if err != nil {
		return fmt.Errorf("blockedcache: gate metadata %s->%s: %w", dep.SourceID, dep.TargetID, err)
	}
	if gm.Satisfied || gm.IsSatisfied() {
		return nil
	}

	approvedSet := make(map[string]bool, len(gm.Approved))
	for _, a := range gm.Approved {
		approvedSet[a] = true
	}

	switch gm.Mode {
	case types.GateAnyOf:
		if len(gm.Approved) > 0 {
			return nil
		}
		for _, approver := range gm.Approvers {
			desired[approver] = "awaiting approval from " + approver
		}
	default: // all_of
		for _, approver := range gm.Approvers {
			if !approvedSet[approver] {
				desired[approver] = "awaiting approval from " + approver
			}
		}
	}
	return nil
}
