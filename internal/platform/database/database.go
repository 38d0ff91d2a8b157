// Package database opens the relational store, applies the schema, and runs
// service transactions. Postgres (via pgx) is the production store; SQLite
// (pure Go) backs lite deployments and tests.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"explorer/internal/platform/config"
)

// DB couples a connection pool with the dialect its queries must use.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	dialect := Dialect(cfg.Driver)
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	sqlDB, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	db := &DB{DB: sqlDB, Dialect: dialect}

	if dialect == SQLite {
		// One connection: SQLite serialises writers anyway, and an in-memory
		// database only lives as long as its connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		if err := db.sqlitePragmas(ctx, cfg.DSN); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// OpenSQLiteMemory opens a private in-memory SQLite store with the schema
// applied. Used by tests and the CLI's dry-run mode.
func OpenSQLiteMemory(ctx context.Context, extraDDL ...string) (*DB, error) {
	db, err := Open(ctx, config.Database{Driver: string(SQLite), DSN: ":memory:"})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, extraDDL...); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) sqlitePragmas(ctx context.Context, dsn string) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !strings.Contains(dsn, ":memory:") {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite %q: %w", p, err)
		}
	}
	return nil
}

// Migrate creates the provenance schema followed by extraDDL (the catalog's
// dataset tables). Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context, extraDDL ...string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, stmt := range coreSchema {
		if _, err := tx.ExecContext(ctx, db.Dialect.Expand(stmt)); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	for _, stmt := range extraDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply dataset schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
