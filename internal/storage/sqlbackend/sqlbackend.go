// Package sqlbackend implements storage.Backend over a Dolt database,
// either embedded in-process (requires CGO) or reached over the MySQL
// wire protocol against a running dolt sql-server (pure Go). It realizes
// the logical schema and JSON-field filtering described in spec.md §6.
package sqlbackend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/notadamking/elemental/internal/debug"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every typed
// method below run unmodified whether or not it is inside a Transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backend is a Dolt-backed storage.Backend. The zero value is not usable;
// construct one with New.
type Backend struct {
	db                *sql.DB
	q                 querier
	embeddedConnector io.Closer
	serverMode        bool
	readOnly          bool
	owns              bool
}

// New opens a Backend per cfg, dispatching to embedded or server mode.
func New(ctx context.Context, cfg *Config) (*Backend, error) {
	if cfg.Path == "" && !cfg.ServerMode {
		return nil, fmt.Errorf("sqlbackend: database path is required")
	}
	cfg.applyDefaults()

	var (
		b   *Backend
		err error
	)
	if cfg.ServerMode {
		b, err = openServer(ctx, cfg)
	} else {
		b, err = openEmbedded(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	b.q = b.db
	b.owns = true
	debug.Logf("sqlbackend: opened (server_mode=%v database=%s)", cfg.ServerMode, cfg.Database)
	return b, nil
}

func (b *Backend) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := b.withRetry(ctx, func() error {
		var qerr error
		rows, qerr = b.q.QueryContext(ctx, query, args...)
		return qerr
	})
	return rows, err
}

func (b *Backend) QueryOne(ctx context.Context, query string, args ...any) *sql.Row {
	return b.q.QueryRowContext(ctx, query, args...)
}

func (b *Backend) Run(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := b.withRetry(ctx, func() error {
		var rerr error
		res, rerr = b.q.ExecContext(ctx, query, args...)
		return rerr
	})
	return res, err
}

// Transaction runs fn against a Backend scoped to a single SQL transaction;
// fn's writes commit together or (on error, or on fn's own error return)
// roll back together.
func (b *Backend) Transaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlbackend: begin transaction: %w", err)
	}
	txBackend := &Backend{db: b.db, q: tx, serverMode: b.serverMode, readOnly: b.readOnly}
	if err := fn(ctx, txBackend); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlbackend: commit transaction: %w", err)
	}
	return nil
}

func (b *Backend) PutElement(ctx context.Context, row storage.ElementRow) error {
	var deletedAt any
	if row.DeletedAt != nil {
		deletedAt = *row.DeletedAt
	}
	_, err := b.q.ExecContext(ctx, `
		INSERT INTO elements (id, kind, data, content_hash, created_at, updated_at, created_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			kind = VALUES(kind), data = VALUES(data), content_hash = VALUES(content_hash),
			updated_at = VALUES(updated_at), deleted_at = VALUES(deleted_at)
	`, row.ID, string(row.Kind), []byte(row.Data), row.ContentHash, row.CreatedAt, row.UpdatedAt, row.CreatedBy, deletedAt)
	if err != nil {
		return fmt.Errorf("sqlbackend: put element %s: %w", row.ID, err)
	}

	if _, err := b.q.ExecContext(ctx, `DELETE FROM element_tags WHERE element_id = ?`, row.ID); err != nil {
		return fmt.Errorf("sqlbackend: clear tags for %s: %w", row.ID, err)
	}
	for _, tag := range row.Tags {
		if _, err := b.q.ExecContext(ctx, `INSERT INTO element_tags (element_id, tag) VALUES (?, ?)`, row.ID, tag); err != nil {
			return fmt.Errorf("sqlbackend: insert tag for %s: %w", row.ID, err)
		}
	}
	return nil
}

func (b *Backend) GetElement(ctx context.Context, id string) (*storage.ElementRow, error) {
	row := b.q.QueryRowContext(ctx, `
		SELECT id, kind, data, content_hash, created_at, updated_at, created_by, deleted_at
		FROM elements WHERE id = ?
	`, id)

	var er storage.ElementRow
	var kind string
	var data []byte
	var deletedAt sql.NullTime
	if err := row.Scan(&er.ID, &kind, &data, &er.ContentHash, &er.CreatedAt, &er.UpdatedAt, &er.CreatedBy, &deletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlbackend: get element %s: %w", id, err)
	}
	er.Kind = types.Kind(kind)
	er.Data = json.RawMessage(data)
	if deletedAt.Valid {
		t := deletedAt.Time
		er.DeletedAt = &t
	}

	tags, err := b.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	er.Tags = tags
	return &er, nil
}

func (b *Backend) tagsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := b.q.QueryContext(ctx, `SELECT tag FROM element_tags WHERE element_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: tags for %s: %w", id, err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// listFilter builds the shared WHERE clause (and its args) for ListElements
// and the search/count variants that filter the same way.
func listFilter(q storage.ElementQuery) (string, []any) {
	var clauses []string
	var args []any

	if !q.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	if q.Kind != nil {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(*q.Kind))
	}
	if q.Creator != nil {
		clauses = append(clauses, "created_by = ?")
		args = append(args, *q.Creator)
	}
	if q.CreatedAfter != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *q.CreatedAfter)
	}
	if q.CreatedBefore != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *q.CreatedBefore)
	}
	if q.UpdatedAfter != nil {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, *q.UpdatedAfter)
	}
	if q.UpdatedBefore != nil {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, *q.UpdatedBefore)
	}
	for path, want := range q.JSONEquals {
		clauses = append(clauses, fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s')) = ?", path))
		args = append(args, fmt.Sprintf("%v", want))
	}
	for _, tag := range q.TagsAll {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM element_tags et WHERE et.element_id = elements.id AND et.tag = ?)")
		args = append(args, tag)
	}
	if len(q.TagsAny) > 0 {
		placeholders := make([]string, len(q.TagsAny))
		for i, tag := range q.TagsAny {
			placeholders[i] = "?"
			args = append(args, tag)
		}
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM element_tags et WHERE et.element_id = elements.id AND et.tag IN (%s))",
			strings.Join(placeholders, ", ")))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (b *Backend) ListElements(ctx context.Context, q storage.ElementQuery) ([]storage.ElementRow, int, error) {
	where, args := listFilter(q)

	var total int
	countRow := b.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM elements"+where, args...)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlbackend: count elements: %w", err)
	}

	order := "ORDER BY created_at DESC"
	if q.OrderByUpdatedAtDesc {
		order = "ORDER BY updated_at DESC"
	}
	limitClause := ""
	queryArgs := append([]any(nil), args...)
	if q.Limit > 0 {
		limitClause = " LIMIT ? OFFSET ?"
		queryArgs = append(queryArgs, q.Limit, q.Offset)
	} else if q.Offset > 0 {
		limitClause = " LIMIT 18446744073709551615 OFFSET ?"
		queryArgs = append(queryArgs, q.Offset)
	}

	rows, err := b.q.QueryContext(ctx, `
		SELECT id, kind, data, content_hash, created_at, updated_at, created_by, deleted_at
		FROM elements`+where+" "+order+limitClause, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlbackend: list elements: %w", err)
	}
	defer rows.Close()

	var out []storage.ElementRow
	for rows.Next() {
		var er storage.ElementRow
		var kind string
		var data []byte
		var deletedAt sql.NullTime
		if err := rows.Scan(&er.ID, &kind, &data, &er.ContentHash, &er.CreatedAt, &er.UpdatedAt, &er.CreatedBy, &deletedAt); err != nil {
			return nil, 0, err
		}
		er.Kind = types.Kind(kind)
		er.Data = json.RawMessage(data)
		if deletedAt.Valid {
			t := deletedAt.Time
			er.DeletedAt = &t
		}
		tags, err := b.tagsFor(ctx, er.ID)
		if err != nil {
			return nil, 0, err
		}
		er.Tags = tags
		out = append(out, er)
	}
	return out, total, rows.Err()
}

func (b *Backend) SearchElements(ctx context.Context, query string, limit int) ([]storage.ElementRow, error) {
	if limit <= 0 || limit > types.MaxSearchResults {
		limit = types.MaxSearchResults
	}
	like := "%" + query + "%"
	rows, err := b.q.QueryContext(ctx, `
		SELECT DISTINCT e.id, e.kind, e.data, e.content_hash, e.created_at, e.updated_at, e.created_by, e.deleted_at
		FROM elements e
		LEFT JOIN element_tags et ON et.element_id = e.id
		WHERE e.deleted_at IS NULL AND (JSON_UNQUOTE(e.data) LIKE ? OR et.tag LIKE ?)
		ORDER BY e.updated_at DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: search elements: %w", err)
	}
	defer rows.Close()

	var out []storage.ElementRow
	for rows.Next() {
		var er storage.ElementRow
		var kind string
		var data []byte
		var deletedAt sql.NullTime
		if err := rows.Scan(&er.ID, &kind, &data, &er.ContentHash, &er.CreatedAt, &er.UpdatedAt, &er.CreatedBy, &deletedAt); err != nil {
			return nil, err
		}
		er.Kind = types.Kind(kind)
		er.Data = json.RawMessage(data)
		if deletedAt.Valid {
			t := deletedAt.Time
			er.DeletedAt = &t
		}
		tags, err := b.tagsFor(ctx, er.ID)
		if err != nil {
			return nil, err
		}
		er.Tags = tags
		out = append(out, er)
	}
	return out, rows.Err()
}

func (b *Backend) PutDependency(ctx context.Context, dep types.Dependency) error {
	var metaJSON []byte
	if dep.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(dep.Metadata)
		if err != nil {
			return fmt.Errorf("sqlbackend: marshal dependency metadata: %w", err)
		}
	}
	_, err := b.q.ExecContext(ctx, `
		INSERT INTO dependencies (source_id, target_id, dep_type, created_at, created_by, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE metadata = VALUES(metadata)
	`, dep.SourceID, dep.TargetID, string(dep.Type), dep.CreatedAt, dep.CreatedBy, metaJSON)
	if err != nil {
		return fmt.Errorf("sqlbackend: put dependency %s->%s: %w", dep.SourceID, dep.TargetID, err)
	}
	return nil
}

func (b *Backend) DeleteDependency(ctx context.Context, src, tgt string, typ types.DependencyType) error {
	_, err := b.q.ExecContext(ctx, `DELETE FROM dependencies WHERE source_id = ? AND target_id = ? AND dep_type = ?`, src, tgt, string(typ))
	return err
}

func (b *Backend) GetDependency(ctx context.Context, src, tgt string, typ types.DependencyType) (*types.Dependency, error) {
	row := b.q.QueryRowContext(ctx, `
		SELECT source_id, target_id, dep_type, created_at, created_by, metadata
		FROM dependencies WHERE source_id = ? AND target_id = ? AND dep_type = ?
	`, src, tgt, string(typ))
	return scanDependency(row)
}

func scanDependency(row *sql.Row) (*types.Dependency, error) {
	var d types.Dependency
	var typ string
	var meta []byte
	if err := row.Scan(&d.SourceID, &d.TargetID, &typ, &d.CreatedAt, &d.CreatedBy, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.Type = types.DependencyType(typ)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (b *Backend) OutgoingDependencies(ctx context.Context, id string, want []types.DependencyType) ([]types.Dependency, error) {
	return b.queryDependencies(ctx, "source_id", id, want)
}

func (b *Backend) IncomingDependencies(ctx context.Context, id string, want []types.DependencyType) ([]types.Dependency, error) {
	return b.queryDependencies(ctx, "target_id", id, want)
}

func (b *Backend) queryDependencies(ctx context.Context, col, id string, want []types.DependencyType) ([]types.Dependency, error) {
	query := fmt.Sprintf(`SELECT source_id, target_id, dep_type, created_at, created_by, metadata FROM dependencies WHERE %s = ?`, col)
	args := []any{id}
	if len(want) > 0 {
		placeholders := make([]string, len(want))
		for i, t := range want {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND dep_type IN (%s)", strings.Join(placeholders, ", "))
	}
	rows, err := b.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: query dependencies: %w", err)
	}
	defer rows.Close()

	var out []types.Dependency
	for rows.Next() {
		var d types.Dependency
		var typ string
		var meta []byte
		if err := rows.Scan(&d.SourceID, &d.TargetID, &typ, &d.CreatedAt, &d.CreatedBy, &meta); err != nil {
			return nil, err
		}
		d.Type = types.DependencyType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (b *Backend) DeleteDependenciesTouching(ctx context.Context, id string) error {
	_, err := b.q.ExecContext(ctx, `DELETE FROM dependencies WHERE source_id = ? OR target_id = ?`, id, id)
	return err
}

func (b *Backend) AppendEvent(ctx context.Context, e types.Event) (int64, error) {
	res, err := b.q.ExecContext(ctx, `
		INSERT INTO events (element_id, event_type, actor, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ElementID, string(e.Type), e.Actor, []byte(e.OldValue), []byte(e.NewValue), e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("sqlbackend: append event: %w", err)
	}
	return res.LastInsertId()
}

func (b *Backend) Events(ctx context.Context, elementID string, f storage.EventFilter) ([]types.Event, error) {
	clauses := []string{"element_id = ?"}
	args := []any{elementID}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if f.Actor != nil {
		clauses = append(clauses, "actor = ?")
		args = append(args, *f.Actor)
	}
	if f.After != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *f.After)
	}
	if f.Before != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *f.Before)
	}

	query := "SELECT id, element_id, event_type, actor, old_value, new_value, created_at FROM events WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}

	rows, err := b.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: query events: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var e types.Event
		var typ string
		var oldV, newV []byte
		if err := rows.Scan(&e.ID, &e.ElementID, &typ, &e.Actor, &oldV, &newV, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = types.EventType(typ)
		e.OldValue = oldV
		e.NewValue = newV
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) PutBlockedRow(ctx context.Context, row storage.BlockedRow) error {
	_, err := b.q.ExecContext(ctx, `
		INSERT INTO blocked_cache (element_id, blocker_id, reason, pre_block_status)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE reason = VALUES(reason), pre_block_status = VALUES(pre_block_status)
	`, row.ElementID, row.BlockerID, row.Reason, row.PreBlockStatus)
	return err
}

func (b *Backend) DeleteBlockedRows(ctx context.Context, elementID string) error {
	_, err := b.q.ExecContext(ctx, `DELETE FROM blocked_cache WHERE element_id = ?`, elementID)
	return err
}

func (b *Backend) DeleteBlockedRowsByBlocker(ctx context.Context, elementID, blockerID string) error {
	_, err := b.q.ExecContext(ctx, `DELETE FROM blocked_cache WHERE element_id = ? AND blocker_id = ?`, elementID, blockerID)
	return err
}

func (b *Backend) BlockedRows(ctx context.Context, elementID string) ([]storage.BlockedRow, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT element_id, blocker_id, reason, pre_block_status FROM blocked_cache WHERE element_id = ? ORDER BY blocker_id
	`, elementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlockedRows(rows)
}

func (b *Backend) AllBlockedRows(ctx context.Context) ([]storage.BlockedRow, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT element_id, blocker_id, reason, pre_block_status FROM blocked_cache ORDER BY element_id, blocker_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlockedRows(rows)
}

func scanBlockedRows(rows *sql.Rows) ([]storage.BlockedRow, error) {
	var out []storage.BlockedRow
	for rows.Next() {
		var r storage.BlockedRow
		if err := rows.Scan(&r.ElementID, &r.BlockerID, &r.Reason, &r.PreBlockStatus); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *Backend) ClearBlockedCache(ctx context.Context) error {
	_, err := b.q.ExecContext(ctx, `DELETE FROM blocked_cache`)
	return err
}

func (b *Backend) PutDocumentVersion(ctx context.Context, v types.DocumentVersion) error {
	payload, err := json.Marshal(v.Payload)
	if err != nil {
		return fmt.Errorf("sqlbackend: marshal document payload: %w", err)
	}
	_, err = b.q.ExecContext(ctx, `
		INSERT INTO document_versions (document_id, version, payload, created_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload)
	`, v.DocumentID, v.Version, payload, v.CreatedAt)
	return err
}

func (b *Backend) DocumentVersion(ctx context.Context, docID string, version int) (*types.DocumentVersion, error) {
	row := b.q.QueryRowContext(ctx, `
		SELECT document_id, version, payload, created_at FROM document_versions WHERE document_id = ? AND version = ?
	`, docID, version)
	return scanDocumentVersion(row)
}

func scanDocumentVersion(row *sql.Row) (*types.DocumentVersion, error) {
	var v types.DocumentVersion
	var payload []byte
	if err := row.Scan(&v.DocumentID, &v.Version, &payload, &v.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &v.Payload); err != nil {
		return nil, err
	}
	return &v, nil
}

func (b *Backend) DocumentHistory(ctx context.Context, docID string) ([]types.DocumentVersion, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT document_id, version, payload, created_at FROM document_versions WHERE document_id = ? ORDER BY version DESC
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.DocumentVersion
	for rows.Next() {
		var v types.DocumentVersion
		var payload []byte
		if err := rows.Scan(&v.DocumentID, &v.Version, &payload, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &v.Payload); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetNextChildNumber hands out the next hierarchical child sequence number
// for parentID. It takes no SQL-level row lock and no in-process lock: the
// increment and the read-back are two statements on the backend's current
// querier, so callers run it inside Transaction (graph.CreateTaskInPlan
// does), matching the engine's single-process design.
func (b *Backend) GetNextChildNumber(ctx context.Context, parentID string) (int, error) {
	_, err := b.q.ExecContext(ctx, `
		INSERT INTO child_sequences (parent_id, next_value) VALUES (?, 1)
		ON DUPLICATE KEY UPDATE next_value = next_value + 1
	`, parentID)
	if err != nil {
		return 0, fmt.Errorf("sqlbackend: advance child sequence: %w", err)
	}
	row := b.q.QueryRowContext(ctx, `SELECT next_value FROM child_sequences WHERE parent_id = ?`, parentID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Backend) MarkDirty(ctx context.Context, id string) error {
	_, err := b.q.ExecContext(ctx, `
		INSERT INTO dirty_elements (element_id, marked_at) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE marked_at = VALUES(marked_at)
	`, id, time.Now().UTC())
	return err
}

func (b *Backend) GetDirtyElements(ctx context.Context) ([]string, error) {
	rows, err := b.q.QueryContext(ctx, `SELECT element_id FROM dirty_elements ORDER BY element_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func (b *Backend) ClearDirty(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := b.q.ExecContext(ctx, `DELETE FROM dirty_elements WHERE element_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) GetStats(ctx context.Context) (storage.Stats, error) {
	row := b.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(data)), 0) FROM elements`)
	var size int64
	if err := row.Scan(&size); err != nil {
		return storage.Stats{}, err
	}
	return storage.Stats{FileSize: size}, nil
}

func (b *Backend) IsOpen() bool {
	return b.db != nil
}

func (b *Backend) Close() error {
	if !b.owns {
		return nil
	}
	err := b.db.Close()
	if b.embeddedConnector != nil {
		if cerr := b.embeddedConnector.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	b.db = nil
	return err
}

var _ storage.Backend = (*Backend)(nil)
