package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var validDatabaseName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// openServer connects to a running dolt sql-server over the MySQL wire
// protocol. This path is pure Go and needs no CGO.
func openServer(ctx context.Context, cfg *Config) (*Backend, error) {
	addr := net.JoinHostPort(cfg.ServerHost, fmt.Sprintf("%d", cfg.ServerPort))
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: dolt server unreachable at %s: %w", addr, err)
	}
	_ = conn.Close()

	if !validDatabaseName.MatchString(cfg.Database) {
		return nil, fmt.Errorf("sqlbackend: invalid database name %q", cfg.Database)
	}

	if !cfg.ReadOnly {
		initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
		if err != nil {
			return nil, fmt.Errorf("sqlbackend: open init connection: %w", err)
		}
		_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
		_ = initDB.Close()
		if err != nil {
			return nil, fmt.Errorf("sqlbackend: create database: %w", err)
		}
	}

	db, err := sql.Open("mysql", buildServerDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: open server connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlbackend: ping server database: %w", err)
	}

	backend := &Backend{db: db, serverMode: true, readOnly: cfg.ReadOnly}
	if !cfg.ReadOnly {
		if err := initSchemaOnDB(ctx, db); err != nil {
			return nil, fmt.Errorf("sqlbackend: initialize schema: %w", err)
		}
	}
	return backend, nil
}
