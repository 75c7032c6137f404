// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package database owns the embedded DuckDB store for log entries.
//
// DuckDB is a single-writer engine: at most one transaction may mutate the
// database at a time. DB enforces that in-process by funneling every mutation
// through WithWriter, which holds an exclusive lock for the duration of the
// scoped function. Reads go through the shared pool and never take the lock.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/logpond/logpond/internal/config"
	"github.com/logpond/logpond/internal/logging"
	"github.com/logpond/logpond/internal/schema"
)

// DB wraps the DuckDB connection and guards write access.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
	path string

	// writerMu serializes all mutating statements. DuckDB aborts concurrent
	// write transactions with a conflict error, so we never start a second
	// one.
	writerMu sync.Mutex
}

// New opens (or creates) the store at the configured path and initializes the
// schema. The returned DB is ready for concurrent use.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	path := cfg.StoragePath()

	// Ensure parent directory exists for on-disk databases.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	if !cfg.InMemory() {
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}

	// Disable auto-install/auto-load to prevent hangs in restricted network
	// environments; the log store needs no extensions.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
		path: path,
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", path).
		Int("threads", numThreads).
		Str("max_memory", maxMemory).
		Msg("Log store opened")

	return db, nil
}

// configureConnectionPool sets connection pool parameters.
// The writer mutex makes write concurrency moot; the pool size only governs
// read parallelism.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// initialize creates the sequence, table and indexes if they do not exist.
// All DDL comes from the schema catalog so the table layout has exactly one
// definition.
func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{schema.BuildSequenceStatement(), schema.BuildCreateStatement()}
	statements = append(statements, schema.BuildIndexStatements()...)

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	// Flush the WAL so a crash before the first checkpoint cannot lose the
	// schema.
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}

	return nil
}

// WithWriter runs fn with exclusive write access. No other writer (batch
// insert, retention delete) runs until fn returns. fn receives the shared
// handle; it must not retain it past the call.
func (db *DB) WithWriter(ctx context.Context, fn func(ctx context.Context, conn *sql.DB) error) error {
	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, db.conn)
}

// Reader returns the shared handle for read-only queries. Callers must not
// issue mutating statements on it.
func (db *DB) Reader() *sql.DB {
	return db.conn
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// Path returns the storage file path (":memory:" for in-memory stores).
func (db *DB) Path() string {
	return db.path
}

// FileSize returns the storage file size in bytes. In-memory stores report 0.
func (db *DB) FileSize() (int64, error) {
	if db.path == ":memory:" || db.path == "" {
		return 0, nil
	}
	info, err := os.Stat(db.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}

// Close checkpoints the WAL and closes the connection. Safe to call once;
// in-flight writers finish first because Close takes the writer lock.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		// Best effort: a failed checkpoint only costs WAL replay on reopen.
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}

	return db.conn.Close()
}

// ensureContext creates a context with a 30-second timeout if none provided.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}
