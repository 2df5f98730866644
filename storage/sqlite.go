// Package storage implements SQLite persistence for events, rules, alerts,
// and incidents. WAL mode gives one writer plus concurrent readers, so the
// handle keeps a single-connection write pool and a wider read pool.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the database connection pools.
type SQLite struct {
	WriteDB *sql.DB // single-writer pool, MaxOpenConns=1
	ReadDB  *sql.DB // concurrent read pool
	Path    string
	Logger  *zap.SugaredLogger
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting store helpers run
// inside or outside a batch transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewSQLite opens (and creates if needed) the database at dbPath, enables
// WAL mode and foreign keys, and runs migrations. Use ":memory:" for tests.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath
	if dbPath == ":memory:" {
		// Shared cache so read and write pools see the same in-memory database.
		dsn = "file::memory:?cache=shared"
	}

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open write pool: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(10)

	s := &SQLite{WriteDB: writeDB, ReadDB: readDB, Path: dbPath, Logger: logger}

	for _, db := range []*sql.DB{writeDB, readDB} {
		if err := configurePragmas(db, dbPath); err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Infof("SQLite storage ready at %s", dbPath)
	return s, nil
}

func configurePragmas(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// WithTx runs fn inside a write transaction, committing on nil error and
// rolling back otherwise. The whole detection batch (events, alerts, rule
// counters, incident mutations) commits through one call so a storage
// failure never leaves a partial batch behind.
func (s *SQLite) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.Logger.Errorf("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes both connection pools.
func (s *SQLite) Close() error {
	var firstErr error
	if err := s.WriteDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.ReadDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
