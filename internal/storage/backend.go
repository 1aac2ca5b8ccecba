package storage

import (
	"context"
	"database/sql"

	"github.com/notadamking/elemental/internal/types"
)

// Backend is the storage collaborator every mutation path and read path
// goes through. It is implemented by the SQL-backed `sqlbackend` package
// (the production backend, over an embedded Dolt database or a
// MySQL-wire-protocol server) and by `memory` (an in-process map-backed
// implementation used by fast unit tests).
type Backend interface {
	// Query/QueryOne/Run expose raw parameterised SQL for callers that need
	// to filter on a nested JSON field inside `data` (spec.md §6) or build
	// reporting queries the typed methods below don't cover. The memory
	// backend returns an error from Query and Run and a nil *sql.Row from
	// QueryOne; it is exercised only through the typed methods.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryOne(ctx context.Context, query string, args ...any) *sql.Row
	Run(ctx context.Context, query string, args ...any) (sql.Result, error)

	// Transaction runs fn with a Backend scoped to a single transaction; all
	// of fn's writes commit together or none do.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error

	PutElement(ctx context.Context, row ElementRow) error
	GetElement(ctx context.Context, id string) (*ElementRow, error)
	ListElements(ctx context.Context, q ElementQuery) ([]ElementRow, int, error)
	SearchElements(ctx context.Context, query string, limit int) ([]ElementRow, error)

	PutDependency(ctx context.Context, dep types.Dependency) error
	DeleteDependency(ctx context.Context, sourceID, targetID string, typ types.DependencyType) error
	GetDependency(ctx context.Context, sourceID, targetID string, typ types.DependencyType) (*types.Dependency, error)
	OutgoingDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error)
	IncomingDependencies(ctx context.Context, id string, types_ []types.DependencyType) ([]types.Dependency, error)
	DeleteDependenciesTouching(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, e types.Event) (int64, error)
	Events(ctx context.Context, elementID string, f EventFilter) ([]types.Event, error)

	PutBlockedRow(ctx context.Context, row BlockedRow) error
	DeleteBlockedRows(ctx context.Context, elementID string) error
	DeleteBlockedRowsByBlocker(ctx context.Context, elementID, blockerID string) error
	BlockedRows(ctx context.Context, elementID string) ([]BlockedRow, error)
	AllBlockedRows(ctx context.Context) ([]BlockedRow, error)
	ClearBlockedCache(ctx context.Context) error

	PutDocumentVersion(ctx context.Context, v types.DocumentVersion) error
	DocumentVersion(ctx context.Context, docID string, version int) (*types.DocumentVersion, error)
	DocumentHistory(ctx context.Context, docID string) ([]types.DocumentVersion, error)

	GetNextChildNumber(ctx context.Context, parentID string) (int, error)

	MarkDirty(ctx context.Context, id string) error
	GetDirtyElements(ctx context.Context) ([]string, error)
	ClearDirty(ctx context.Context, ids ...string) error

	GetStats(ctx context.Context) (Stats, error)
	IsOpen() bool
	Close() error
}
