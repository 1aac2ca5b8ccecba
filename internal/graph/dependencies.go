package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notadamking/elemental/internal/errs"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// AddDependency is add_dependency(src, tgt, type, metadata, actor).
func (s *Service) AddDependency(ctx context.Context, src, tgt string, typ types.DependencyType, metadata map[string]any, actor string) error {
	const op = "graph.AddDependency"

	if typ == types.DepBlocks {
		cyclic, err := s.wouldCreateCycle(ctx, src, tgt)
		if err != nil {
			return err
		}
		if cyclic {
			return fmt.Errorf("%s: %w", op, errs.ErrCycle)
		}
	}

	dep := types.Dependency{SourceID: src, TargetID: tgt, Type: typ, Metadata: metadata, CreatedBy: actor, CreatedAt: s.now()}

	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		srcRow, err := tx.GetElement(ctx, src)
		if err != nil {
			return err
		}
		if srcRow == nil {
			return errs.NotFound(op, "element", src)
		}
		existing, err := tx.GetDependency(ctx, src, tgt, typ)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.Conflict(op, errs.ReasonDuplicateDependency, "dependency already exists", map[string]any{"source": src, "target": tgt, "type": string(typ)})
		}
		if err := tx.PutDependency(ctx, dep); err != nil {
			return err
		}
		raw, _ := json.Marshal(dep)
		if _, err := tx.AppendEvent(ctx, types.Event{
			ElementID: tgt, Type: types.EventDependencyAdded, Actor: actor, NewValue: raw, CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		return tx.MarkDirty(ctx, tgt)
	})
	if err != nil {
		return err
	}

	return s.cache.OnDependencyAdded(ctx, dep)
}

// RemoveDependency is remove_dependency(src, tgt, type, actor).
func (s *Service) RemoveDependency(ctx context.Context, src, tgt string, typ types.DependencyType, actor string) error {
	const op = "graph.RemoveDependency"

	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		existing, err := tx.GetDependency(ctx, src, tgt, typ)
		if err != nil {
			return err
		}
		if existing == nil {
			return errs.NotFound(op, "dependency", fmt.Sprintf("%s->%s[%s]", src, tgt, typ))
		}
		if err := tx.DeleteDependency(ctx, src, tgt, typ); err != nil {
			return err
		}
		raw, _ := json.Marshal(existing)
		if _, err := tx.AppendEvent(ctx, types.Event{
			ElementID: tgt, Type: types.EventDependencyRemoved, Actor: actor, OldValue: raw, CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		return tx.MarkDirty(ctx, tgt)
	})
	if err != nil {
		return err
	}

	return s.cache.OnDependencyRemoved(ctx, src, tgt, typ)
}

// GetDependencies returns id's outgoing edges, optionally restricted to types.
func (s *Service) GetDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error) {
	deps, err := s.backend.OutgoingDependencies(ctx, id, types_)
	return deps, errs.Wrap("graph.GetDependencies", err)
}

// GetDependents returns id's incoming edges, optionally restricted to types.
func (s *Service) GetDependents(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error) {
	deps, err := s.backend.IncomingDependencies(ctx, id, types_)
	return deps, errs.Wrap("graph.GetDependents", err)
}

// wouldCreateCycle reports whether adding a `blocks` edge src->tgt would
// close a cycle, by searching forward from tgt along existing `blocks`
// edges for a path back to src.
func (s *Service) wouldCreateCycle(ctx context.Context, src, tgt string) (bool, error) {
	if src == tgt {
		return true, nil
	}
	visited := map[string]bool{}
	var dfs func(node string) (bool, error)
	dfs = func(node string) (bool, error) {
		if node == src {
			return true, nil
		}
		if visited[node] {
			return false, nil
		}
		visited[node] = true
		out, err := s.backend.OutgoingDependencies(ctx, node, []types.DependencyType{types.DepBlocks})
		if err != nil {
			return false, err
		}
		for _, d := range out {
			found, err := dfs(d.TargetID)
			if err != nil {
				return false, err
			}
			if found {
				return true, nil
			}
		}
		return false, nil
	}
	return dfs(tgt)
}

// DependencyTree is the result shape for get_dependency_tree.
type DependencyTree struct {
	RootID             string
	MaxDependencyDepth int
	MaxDependentDepth  int
	UniqueNodeCount    int
}

// maxTreeDepth is the depth cap §4.3 specifies for get_dependency_tree's
// bounded DFS.
const maxTreeDepth = 10

// GetDependencyTree performs a bounded DFS expanding outgoing dependencies
// from root to depth ≤ 10, plus root's direct incoming dependencies (depth
// 0 only, not expanded further).
func (s *Service) GetDependencyTree(ctx context.Context, id string) (DependencyTree, error) {
	visited := map[string]bool{id: true}
	maxDepDepth, err := s.dfsOutgoing(ctx, id, 0, visited)
	if err != nil {
		return DependencyTree{}, err
	}

	dependents, err := s.backend.IncomingDependencies(ctx, id, nil)
	if err != nil {
		return DependencyTree{}, err
	}
	maxDependentDepth := 0
	if len(dependents) > 0 {
		maxDependentDepth = 1
	}
	for _, d := range dependents {
		visited[d.SourceID] = true
	}

	return DependencyTree{
		RootID:             id,
		MaxDependencyDepth: maxDepDepth,
		MaxDependentDepth:  maxDependentDepth,
		UniqueNodeCount:    len(visited),
	}, nil
}

func (s *Service) dfsOutgoing(ctx context.Context, id string, depth int, visited map[string]bool) (int, error) {
	if depth >= maxTreeDepth {
		return depth, nil
	}
	deps, err := s.backend.OutgoingDependencies(ctx, id, nil)
	if err != nil {
		return depth, err
	}
	best := depth
	for _, d := range deps {
		if visited[d.TargetID] {
			continue
		}
		visited[d.TargetID] = true
		childDepth, err := s.dfsOutgoing(ctx, d.TargetID, depth+1, visited)
		if err != nil {
			return best, err
		}
		if childDepth > best {
			best = childDepth
		}
	}
	return best, nil
}
