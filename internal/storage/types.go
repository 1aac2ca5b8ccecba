// Package storage defines the Backend collaborator the Element API is built
// on (spec.md §6): parameterised queries, transactions, a dirty-id feed, and
// JSON column extraction over the elements/tags/dependencies/events/
// document_versions/blocked_cache schema, plus a set of typed convenience
// methods the graph layer uses for everyday CRUD so every caller isn't
// forced to hand-write SQL for the common path.
package storage

import (
	"encoding/json"
	"time"

	"github.com/notadamking/elemental/internal/types"
)

// ElementRow is the raw persisted representation of one `elements` table
// row: Data holds every field except id/type/timestamps/createdBy/
// deletedAt/tags/contentHash, matching spec.md §6's "`data` holds all type-specific
// fields except the tag set".
type ElementRow struct {
	ID          string
	Kind        types.Kind
	Data        json.RawMessage
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   string
	DeletedAt   *time.Time
	Tags        []string
}

// BlockedRow is one row of the derived blocked_cache index.
type BlockedRow struct {
	ElementID string
	BlockerID string
	Reason    string
	// PreBlockStatus records the status the element was in just before it
	// went from unblocked to blocked, so on_unblock can restore it. All rows
	// of one element carry the same value: a blocker added while the element
	// is already blocked copies it from the existing rows. Empty for elements
	// that are not Tasks, and for elements Rebuild finds blocked that had no
	// rows before it ran.
	PreBlockStatus string
}

// ElementQuery is the storage-level filter used by ListElements; it mirrors
// types.Filter but flattens tag and JSON-field predicates into a form the
// backend can translate into SQL (or scan directly, for the memory
// backend).
type ElementQuery struct {
	Kind           *types.Kind
	Creator        *string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	UpdatedAfter   *time.Time
	UpdatedBefore  *time.Time
	IncludeDeleted bool
	TagsAll        []string
	TagsAny        []string

	// JSONEquals filters on a nested JSON field inside `data`, e.g.
	// {"status": "open"} or {"permissions.visibility": "private"}, using
	// dot-separated paths translated to JSON_EXTRACT(data, '$.a.b') at the
	// SQL layer.
	JSONEquals map[string]any

	OrderByCreatedAtDesc bool
	OrderByUpdatedAtDesc bool
	Limit                int
	Offset               int
}

// EventFilter narrows get_events(id, filter).
type EventFilter struct {
	Types  []types.EventType
	Actor  *string
	After  *time.Time
	Before *time.Time
	Limit  int
}

// Stats is the result of getStats().
type Stats struct {
	FileSize int64
}
