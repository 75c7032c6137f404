// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/logpond/logpond/internal/config"
	"github.com/logpond/logpond/internal/schema"
)

// newTestDB opens an in-memory store and registers cleanup.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return db
}

func TestNewCreatesSchema(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int64
	err := db.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.TableName).Scan(&count)
	if err != nil {
		t.Fatalf("querying fresh table: %v", err)
	}
	if count != 0 {
		t.Errorf("fresh table row count = %d, want 0", count)
	}
}

func TestNewIsIdempotentOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.DatabaseConfig{Dir: dir}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("first New() error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Reopening the same file must not fail on existing objects.
	db, err = New(cfg)
	if err != nil {
		t.Fatalf("second New() error: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	}()

	want := filepath.Join(dir, "logpond-v2.duckdb")
	if db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}

	size, err := db.FileSize()
	if err != nil {
		t.Fatalf("FileSize() error: %v", err)
	}
	if size <= 0 {
		t.Errorf("FileSize() = %d, want > 0 for on-disk store", size)
	}
}

func TestFileSizeInMemory(t *testing.T) {
	db := newTestDB(t)

	size, err := db.FileSize()
	if err != nil {
		t.Fatalf("FileSize() error: %v", err)
	}
	if size != 0 {
		t.Errorf("FileSize() = %d for in-memory store, want 0", size)
	}
}

func TestWithWriterSerializes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithWriter(ctx, func(ctx context.Context, conn *sql.DB) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithWriter() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("observed %d concurrent writers, want exactly 1", maxActive)
	}
}

func TestWithWriterPropagatesError(t *testing.T) {
	db := newTestDB(t)

	sentinel := errors.New("boom")
	err := db.WithWriter(context.Background(), func(ctx context.Context, conn *sql.DB) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("WithWriter() = %v, want sentinel error", err)
	}
}

func TestWithWriterCancelledContext(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.WithWriter(ctx, func(ctx context.Context, conn *sql.DB) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithWriter() = %v, want context.Canceled", err)
	}
	if called {
		t.Error("writer function ran despite cancelled context")
	}
}

func TestConflictDetection(t *testing.T) {
	if IsTransactionConflict(nil) {
		t.Error("IsTransactionConflict(nil) = true")
	}
	if !IsTransactionConflict(errors.New("TransactionContext Error: Transaction conflict")) {
		t.Error("conflict error not detected")
	}
	if IsConnectionError(errors.New("syntax error")) {
		t.Error("query error misclassified as connection error")
	}
	if !IsConnectionError(errors.New("sql: database is closed")) {
		t.Error("closed database not detected as connection error")
	}
	if !IsRetryable(errors.New("connection reset by peer")) {
		t.Error("connection loss not classified as retryable")
	}
	if IsRetryable(errors.New("Constraint Error: NOT NULL constraint failed")) {
		t.Error("constraint violation classified as retryable")
	}
}
