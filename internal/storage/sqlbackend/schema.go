package sqlbackend

import (
	"context"
	"database/sql"
)

// schemaStatements realizes spec.md §6's logical schema: elements carry
// dedicated columns for the fields every query filters on, plus a `data`
// JSON blob for everything else; tags are normalised into their own table
// so TagsAll/TagsAny can be expressed as ordinary joins.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS elements (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		data JSON NOT NULL,
		content_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		created_by TEXT NOT NULL,
		deleted_at DATETIME NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_elements_kind ON elements(kind)`,
	`CREATE INDEX IF NOT EXISTS idx_elements_created_by ON elements(created_by)`,
	`CREATE INDEX IF NOT EXISTS idx_elements_updated_at ON elements(updated_at)`,

	`CREATE TABLE IF NOT EXISTS element_tags (
		element_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (element_id, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_element_tags_tag ON element_tags(tag)`,

	`CREATE TABLE IF NOT EXISTS dependencies (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		dep_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		created_by TEXT NOT NULL,
		metadata JSON NULL,
		PRIMARY KEY (source_id, target_id, dep_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_id)`,

	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTO_INCREMENT,
		element_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor TEXT NOT NULL,
		old_value JSON NULL,
		new_value JSON NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_element ON events(element_id)`,

	`CREATE TABLE IF NOT EXISTS blocked_cache (
		element_id TEXT NOT NULL,
		blocker_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		pre_block_status TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (element_id, blocker_id)
	)`,

	`CREATE TABLE IF NOT EXISTS document_versions (
		document_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		payload JSON NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (document_id, version)
	)`,

	`CREATE TABLE IF NOT EXISTS dirty_elements (
		element_id TEXT PRIMARY KEY,
		marked_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS child_sequences (
		parent_id TEXT PRIMARY KEY,
		next_value INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS config (
		` + "`key`" + ` TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
