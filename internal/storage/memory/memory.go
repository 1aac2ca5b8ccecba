// Package memory implements storage.Backend entirely in process memory,
// guarded by a single mutex standing in for the backend-is-the-serialization-
// point contract of spec.md §5. It is used by fast unit tests of the graph,
// blocked-cache, and sync packages that don't need a real SQL engine.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

type depKey struct {
	Source string
	Target string
	Type   types.DependencyType
}

type blockedKey struct {
	ElementID string
	BlockerID string
}

// Backend is an in-memory storage.Backend implementation.
type Backend struct {
	mu sync.Mutex

	elements map[string]storage.ElementRow
	deps     map[depKey]types.Dependency
	events   []types.Event
	nextEvt  int64
	blocked  map[blockedKey]storage.BlockedRow
	docVers  map[string][]types.DocumentVersion // keyed by document id
	dirty    map[string]bool
	childSeq map[string]int

	open bool
}

// New constructs an empty in-memory Backend.
func New() *Backend {
	return &Backend{
		elements: map[string]storage.ElementRow{},
		deps:     map[depKey]types.Dependency{},
		blocked:  map[blockedKey]storage.BlockedRow{},
		docVers:  map[string][]types.DocumentVersion{},
		dirty:    map[string]bool{},
		childSeq: map[string]int{},
		open:     true,
	}
}

func (b *Backend) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, fmt.Errorf("memory backend: raw Query is not supported, use the typed methods")
}

func (b *Backend) QueryOne(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (b *Backend) Run(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, fmt.Errorf("memory backend: raw Run is not supported, use the typed methods")
}

// Transaction runs fn while holding the backend's lock so its writes appear
// atomic to other callers; on error, changes already buffered in maps are
// not rolled back (the memory backend is for tests exercising the happy
// path and validation failures that occur before any write, not mid-
// transaction crash recovery).
func (b *Backend) Transaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(ctx, &txView{b})
}

// txView is a thin wrapper so code inside Transaction(fn) can call the same
// typed methods without re-acquiring the (already-held) lock.
type txView struct{ b *Backend }

func (t *txView) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.b.Query(ctx, query, args...)
}
func (t *txView) QueryOne(ctx context.Context, query string, args ...any) *sql.Row {
	return t.b.QueryOne(ctx, query, args...)
}
func (t *txView) Run(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.b.Run(ctx, query, args...)
}
func (t *txView) Transaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	return fn(ctx, t)
}
func (t *txView) PutElement(ctx context.Context, row storage.ElementRow) error {
	return t.b.putElementLocked(row)
}
func (t *txView) GetElement(ctx context.Context, id string) (*storage.ElementRow, error) {
	return t.b.getElementLocked(id)
}
func (t *txView) ListElements(ctx context.Context, q storage.ElementQuery) ([]storage.ElementRow, int, error) {
	return t.b.listElementsLocked(q)
}
func (t *txView) SearchElements(ctx context.Context, query string, limit int) ([]storage.ElementRow, error) {
	return t.b.searchElementsLocked(query, limit)
}
func (t *txView) PutDependency(ctx context.Context, dep types.Dependency) error {
	return t.b.putDependencyLocked(dep)
}
func (t *txView) DeleteDependency(ctx context.Context, src, tgt string, typ types.DependencyType) error {
	return t.b.deleteDependencyLocked(src, tgt, typ)
}
func (t *txView) GetDependency(ctx context.Context, src, tgt string, typ types.DependencyType) (*types.Dependency, error) {
	return t.b.getDependencyLocked(src, tgt, typ)
}
func (t *txView) OutgoingDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error) {
	return t.b.outgoingLocked(id, types_)
}
func (t *txView) IncomingDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error) {
	return t.b.incomingLocked(id, types_)
}
func (t *txView) DeleteDependenciesTouching(ctx context.Context, id string) error {
	return t.b.deleteDependenciesTouchingLocked(id)
}
func (t *txView) AppendEvent(ctx context.Context, e types.Event) (int64, error) {
	return t.b.appendEventLocked(e)
}
func (t *txView) Events(ctx context.Context, elementID string, f storage.EventFilter) ([]types.Event, error) {
	return t.b.eventsLocked(elementID, f)
}
func (t *txView) PutBlockedRow(ctx context.Context, row storage.BlockedRow) error {
	return t.b.putBlockedRowLocked(row)
}
func (t *txView) DeleteBlockedRows(ctx context.Context, elementID string) error {
	return t.b.deleteBlockedRowsLocked(elementID)
}
func (t *txView) DeleteBlockedRowsByBlocker(ctx context.Context, elementID, blockerID string) error {
	return t.b.deleteBlockedRowsByBlockerLocked(elementID, blockerID)
}
func (t *txView) BlockedRows(ctx context.Context, elementID string) ([]storage.BlockedRow, error) {
	return t.b.blockedRowsLocked(elementID)
}
func (t *txView) AllBlockedRows(ctx context.Context) ([]storage.BlockedRow, error) {
	return t.b.allBlockedRowsLocked()
}
func (t *txView) ClearBlockedCache(ctx context.Context) error {
	return t.b.clearBlockedCacheLocked()
}
func (t *txView) PutDocumentVersion(ctx context.Context, v types.DocumentVersion) error {
	return t.b.putDocumentVersionLocked(v)
}
func (t *txView) DocumentVersion(ctx context.Context, docID string, version int) (*types.DocumentVersion, error) {
	return t.b.documentVersionLocked(docID, version)
}
func (t *txView) DocumentHistory(ctx context.Context, docID string) ([]types.DocumentVersion, error) {
	return t.b.documentHistoryLocked(docID)
}
func (t *txView) GetNextChildNumber(ctx context.Context, parentID string) (int, error) {
	return t.b.getNextChildNumberLocked(parentID)
}
func (t *txView) MarkDirty(ctx context.Context, id string) error { return t.b.markDirtyLocked(id) }
func (t *txView) GetDirtyElements(ctx context.Context) ([]string, error) {
	return t.b.getDirtyElementsLocked()
}
func (t *txView) ClearDirty(ctx context.Context, ids ...string) error {
	return t.b.clearDirtyLocked(ids...)
}
func (t *txView) GetStats(ctx context.Context) (storage.Stats, error) { return t.b.getStatsLocked() }
func (t *txView) IsOpen() bool                                       { return t.b.IsOpen() }
func (t *txView) Close() error                                       { return t.b.Close() }

// Public typed methods acquire the lock themselves; the locked variants
// above are reused both directly and from inside an active Transaction.

func (b *Backend) PutElement(ctx context.Context, row storage.ElementRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putElementLocked(row)
}
func (b *Backend) putElementLocked(row storage.ElementRow) error {
	b.elements[row.ID] = row
	return nil
}

func (b *Backend) GetElement(ctx context.Context, id string) (*storage.ElementRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getElementLocked(id)
}
func (b *Backend) getElementLocked(id string) (*storage.ElementRow, error) {
	row, ok := b.elements[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (b *Backend) ListElements(ctx context.Context, q storage.ElementQuery) ([]storage.ElementRow, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listElementsLocked(q)
}

func (b *Backend) listElementsLocked(q storage.ElementQuery) ([]storage.ElementRow, int, error) {
	var matches []storage.ElementRow
	for _, row := range b.elements {
		if !matchesQuery(row, q) {
			continue
		}
		matches = append(matches, row)
	}

	if q.OrderByUpdatedAtDesc {
		sort.Slice(matches, func(i, j int) bool { return matches[i].UpdatedAt.After(matches[j].UpdatedAt) })
	} else {
		sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	}

	total := len(matches)
	offset := q.Offset
	if offset > len(matches) {
		offset = len(matches)
	}
	matches = matches[offset:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, total, nil
}

func matchesQuery(row storage.ElementRow, q storage.ElementQuery) bool {
	if !q.IncludeDeleted && row.DeletedAt != nil {
		return false
	}
	if q.Kind != nil && row.Kind != *q.Kind {
		return false
	}
	if q.Creator != nil && row.CreatedBy != *q.Creator {
		return false
	}
	if q.CreatedAfter != nil && row.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && row.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	if q.UpdatedAfter != nil && row.UpdatedAt.Before(*q.UpdatedAfter) {
		return false
	}
	if q.UpdatedBefore != nil && row.UpdatedAt.After(*q.UpdatedBefore) {
		return false
	}
	if len(q.TagsAll) > 0 {
		set := toSet(row.Tags)
		for _, t := range q.TagsAll {
			if !set[t] {
				return false
			}
		}
	}
	if len(q.TagsAny) > 0 {
		set := toSet(row.Tags)
		any := false
		for _, t := range q.TagsAny {
			if set[t] {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if len(q.JSONEquals) > 0 {
		var data map[string]any
		_ = json.Unmarshal(row.Data, &data)
		for path, want := range q.JSONEquals {
			if !jsonPathEquals(data, path, want) {
				return false
			}
		}
	}
	return true
}

func jsonPathEquals(data map[string]any, path string, want any) bool {
	segs := strings.Split(path, ".")
	var cur any = data
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur, ok = m[s]
		if !ok {
			return false
		}
	}
	return fmt.Sprintf("%v", cur) == fmt.Sprintf("%v", want)
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

func (b *Backend) SearchElements(ctx context.Context, query string, limit int) ([]storage.ElementRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.searchElementsLocked(query, limit)
}

func (b *Backend) searchElementsLocked(query string, limit int) ([]storage.ElementRow, error) {
	q := strings.ToLower(query)
	var matches []storage.ElementRow
	for _, row := range b.elements {
		if row.DeletedAt != nil {
			continue
		}
		haystack := strings.ToLower(string(row.Data))
		for _, tag := range row.Tags {
			haystack += " " + strings.ToLower(tag)
		}
		if strings.Contains(haystack, q) {
			matches = append(matches, row)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].UpdatedAt.After(matches[j].UpdatedAt) })
	if limit <= 0 || limit > types.MaxSearchResults {
		limit = types.MaxSearchResults
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (b *Backend) PutDependency(ctx context.Context, dep types.Dependency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putDependencyLocked(dep)
}
func (b *Backend) putDependencyLocked(dep types.Dependency) error {
	b.deps[depKey{dep.SourceID, dep.TargetID, dep.Type}] = dep
	return nil
}

func (b *Backend) DeleteDependency(ctx context.Context, src, tgt string, typ types.DependencyType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteDependencyLocked(src, tgt, typ)
}
func (b *Backend) deleteDependencyLocked(src, tgt string, typ types.DependencyType) error {
	delete(b.deps, depKey{src, tgt, typ})
	return nil
}

func (b *Backend) GetDependency(ctx context.Context, src, tgt string, typ types.DependencyType) (*types.Dependency, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getDependencyLocked(src, tgt, typ)
}
func (b *Backend) getDependencyLocked(src, tgt string, typ types.DependencyType) (*types.Dependency, error) {
	d, ok := b.deps[depKey{src, tgt, typ}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (b *Backend) OutgoingDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outgoingLocked(id, types_)
}
func (b *Backend) outgoingLocked(id string, want []types.DependencyType) ([]types.Dependency, error) {
	var out []types.Dependency
	for k, d := range b.deps {
		if k.Source != id {
			continue
		}
		if len(want) > 0 && !containsType(want, k.Type) {
			continue
		}
		out = append(out, d)
	}
	sortDeps(out)
	return out, nil
}

func (b *Backend) IncomingDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.incomingLocked(id, types_)
}
func (b *Backend) incomingLocked(id string, want []types.DependencyType) ([]types.Dependency, error) {
	var in []types.Dependency
	for k, d := range b.deps {
		if k.Target != id {
			continue
		}
		if len(want) > 0 && !containsType(want, k.Type) {
			continue
		}
		in = append(in, d)
	}
	sortDeps(in)
	return in, nil
}

func sortDeps(ds []types.Dependency) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].SourceID != ds[j].SourceID {
			return ds[i].SourceID < ds[j].SourceID
		}
		if ds[i].TargetID != ds[j].TargetID {
			return ds[i].TargetID < ds[j].TargetID
		}
		return ds[i].Type < ds[j].Type
	})
}

func containsType(list []types.DependencyType, t types.DependencyType) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func (b *Backend) DeleteDependenciesTouching(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteDependenciesTouchingLocked(id)
}
func (b *Backend) deleteDependenciesTouchingLocked(id string) error {
	for k := range b.deps {
		if k.Source == id || k.Target == id {
			delete(b.deps, k)
		}
	}
	return nil
}

func (b *Backend) AppendEvent(ctx context.Context, e types.Event) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendEventLocked(e)
}
func (b *Backend) appendEventLocked(e types.Event) (int64, error) {
	b.nextEvt++
	e.ID = b.nextEvt
	b.events = append(b.events, e)
	return e.ID, nil
}

func (b *Backend) Events(ctx context.Context, elementID string, f storage.EventFilter) ([]types.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eventsLocked(elementID, f)
}
func (b *Backend) eventsLocked(elementID string, f storage.EventFilter) ([]types.Event, error) {
	var out []types.Event
	for _, e := range b.events {
		if e.ElementID != elementID {
			continue
		}
		if len(f.Types) > 0 {
			found := false
			for _, t := range f.Types {
				if e.Type == t {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if f.Actor != nil && e.Actor != *f.Actor {
			continue
		}
		if f.After != nil && e.CreatedAt.Before(*f.After) {
			continue
		}
		if f.Before != nil && e.CreatedAt.After(*f.Before) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (b *Backend) PutBlockedRow(ctx context.Context, row storage.BlockedRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putBlockedRowLocked(row)
}
func (b *Backend) putBlockedRowLocked(row storage.BlockedRow) error {
	b.blocked[blockedKey{row.ElementID, row.BlockerID}] = row
	return nil
}

func (b *Backend) DeleteBlockedRows(ctx context.Context, elementID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteBlockedRowsLocked(elementID)
}
func (b *Backend) deleteBlockedRowsLocked(elementID string) error {
	for k := range b.blocked {
		if k.ElementID == elementID {
			delete(b.blocked, k)
		}
	}
	return nil
}

func (b *Backend) DeleteBlockedRowsByBlocker(ctx context.Context, elementID, blockerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteBlockedRowsByBlockerLocked(elementID, blockerID)
}
func (b *Backend) deleteBlockedRowsByBlockerLocked(elementID, blockerID string) error {
	delete(b.blocked, blockedKey{elementID, blockerID})
	return nil
}

func (b *Backend) BlockedRows(ctx context.Context, elementID string) ([]storage.BlockedRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockedRowsLocked(elementID)
}
func (b *Backend) blockedRowsLocked(elementID string) ([]storage.BlockedRow, error) {
	var out []storage.BlockedRow
	for k, row := range b.blocked {
		if k.ElementID == elementID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockerID < out[j].BlockerID })
	return out, nil
}

func (b *Backend) AllBlockedRows(ctx context.Context) ([]storage.BlockedRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allBlockedRowsLocked()
}
func (b *Backend) allBlockedRowsLocked() ([]storage.BlockedRow, error) {
	out := make([]storage.BlockedRow, 0, len(b.blocked))
	for _, row := range b.blocked {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ElementID != out[j].ElementID {
			return out[i].ElementID < out[j].ElementID
		}
		return out[i].BlockerID < out[j].BlockerID
	})
	return out, nil
}

func (b *Backend) ClearBlockedCache(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clearBlockedCacheLocked()
}
func (b *Backend) clearBlockedCacheLocked() error {
	b.blocked = map[blockedKey]storage.BlockedRow{}
	return nil
}

func (b *Backend) PutDocumentVersion(ctx context.Context, v types.DocumentVersion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putDocumentVersionLocked(v)
}
func (b *Backend) putDocumentVersionLocked(v types.DocumentVersion) error {
	b.docVers[v.DocumentID] = append(b.docVers[v.DocumentID], v)
	return nil
}

func (b *Backend) DocumentVersion(ctx context.Context, docID string, version int) (*types.DocumentVersion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.documentVersionLocked(docID, version)
}
func (b *Backend) documentVersionLocked(docID string, version int) (*types.DocumentVersion, error) {
	for _, v := range b.docVers[docID] {
		if v.Version == version {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (b *Backend) DocumentHistory(ctx context.Context, docID string) ([]types.DocumentVersion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.documentHistoryLocked(docID)
}
func (b *Backend) documentHistoryLocked(docID string) ([]types.DocumentVersion, error) {
	out := append([]types.DocumentVersion(nil), b.docVers[docID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (b *Backend) GetNextChildNumber(ctx context.Context, parentID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getNextChildNumberLocked(parentID)
}
func (b *Backend) getNextChildNumberLocked(parentID string) (int, error) {
	b.childSeq[parentID]++
	return b.childSeq[parentID], nil
}

func (b *Backend) MarkDirty(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markDirtyLocked(id)
}
func (b *Backend) markDirtyLocked(id string) error {
	b.dirty[id] = true
	return nil
}

func (b *Backend) GetDirtyElements(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getDirtyElementsLocked()
}
func (b *Backend) getDirtyElementsLocked() ([]string, error) {
	out := make([]string, 0, len(b.dirty))
	for id := range b.dirty {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) ClearDirty(ctx context.Context, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clearDirtyLocked(ids...)
}
func (b *Backend) clearDirtyLocked(ids ...string) error {
	for _, id := range ids {
		delete(b.dirty, id)
	}
	return nil
}

func (b *Backend) GetStats(ctx context.Context) (storage.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getStatsLocked()
}
func (b *Backend) getStatsLocked() (storage.Stats, error) {
	size := int64(0)
	for _, row := range b.elements {
		size += int64(len(row.Data))
	}
	return storage.Stats{FileSize: size}, nil
}

func (b *Backend) IsOpen() bool { return b.open }

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

var _ storage.Backend = (*Backend)(nil)
var _ storage.Backend = (*txView)(nil)
