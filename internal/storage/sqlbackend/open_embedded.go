//go:build cgo

package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const embeddedOpenMaxElapsed = 30 * time.Second

func newEmbeddedOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// openEmbedded opens the Dolt database in-process. The engine is
// single-process by design (spec.md §1 Non-goals), so unlike the embedded
// driver's typical callers there is no advisory file lock to coordinate
// with sibling processes.
func openEmbedded(ctx context.Context, cfg *Config) (*Backend, error) {
	if info, err := os.Stat(cfg.Path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("sqlbackend: database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("sqlbackend: create database directory: %w", err)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: resolve database path: %w", err)
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s", absPath, cfg.CommitterName, cfg.CommitterEmail)
	dbDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s", absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)

	configureRetries := func(c *embedded.Config) {
		c.BackOff = newEmbeddedOpenBackoff()
	}

	if !cfg.ReadOnly {
		if err := withEmbeddedDolt(ctx, initDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
			return err
		}); err != nil {
			return nil, fmt.Errorf("sqlbackend: create database: %w", err)
		}

		if err := withEmbeddedDolt(ctx, dbDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
			return initSchemaOnDB(ctx, db)
		}); err != nil {
			return nil, fmt.Errorf("sqlbackend: initialize schema: %w", err)
		}
	}

	openCfg, err := embedded.ParseDSN(dbDSN)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: parse dolt DSN: %w", err)
	}
	openCfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: create dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("sqlbackend: ping embedded database: %w", err)
	}

	return &Backend{db: db, embeddedConnector: connector, serverMode: false, readOnly: cfg.ReadOnly}, nil
}

// withEmbeddedDolt opens a short-lived embedded connection, runs fn, and
// closes everything again; used for the one-shot database-create and
// schema-init steps that must happen before the long-lived connector opens.
func withEmbeddedDolt(ctx context.Context, dsn string, configure func(*embedded.Config), fn func(context.Context, *sql.DB) error) error {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	if configure != nil {
		configure(cfg)
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	defer func() {
		_ = db.Close()
		_ = connector.Close()
	}()
	return fn(ctx, db)
}
