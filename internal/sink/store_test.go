// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package sink

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/logpond/logpond/internal/config"
	"github.com/logpond/logpond/internal/database"
	"github.com/logpond/logpond/internal/models"
	"github.com/logpond/logpond/internal/schema"
)

func newStoreDB(t *testing.T) (*database.DB, *Store) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return db, NewStore(db)
}

func TestEncodeEntryMatchesInsertableColumns(t *testing.T) {
	args := encodeEntry(&models.LogEntry{Level: models.LevelError, Category: "app"})
	if got, want := len(args), len(schema.InsertableColumnNames()); got != want {
		t.Fatalf("encodeEntry produced %d args, schema has %d insertable columns", got, want)
	}
}

func TestStoreInsertBatchRoundTrip(t *testing.T) {
	db, store := newStoreDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	entries := []*models.LogEntry{
		{
			Timestamp:       now,
			Level:           models.LevelWarning,
			Category:        "billing.invoices",
			EventID:         42,
			EventName:       "InvoiceRejected",
			MessageTemplate: "Invoice {Id} rejected",
			RenderedMessage: "Invoice 9 rejected",
			Parameters:      map[string]any{"Id": float64(9)},
		},
		{
			Timestamp:       now.Add(time.Millisecond),
			Level:           models.LevelError,
			Category:        "billing.invoices",
			RenderedMessage: "boom",
			Exception: &models.SerializedException{
				Type:    "TimeoutException",
				Message: "deadline exceeded",
			},
		},
	}

	if err := store.InsertBatch(ctx, entries); err != nil {
		t.Fatalf("InsertBatch() error: %v", err)
	}

	var count int64
	if err := db.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.TableName).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("row count = %d, want 2", count)
	}

	// IDs must be assigned in insertion order.
	rows, err := db.Reader().QueryContext(ctx,
		"SELECT id, level, rendered_message, exception FROM "+schema.TableName+" ORDER BY id")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var lastID int64
	var i int
	for rows.Next() {
		var id int64
		var level int32
		var rendered, exc string
		if err := rows.Scan(&id, &level, &rendered, &exc); err != nil {
			t.Fatal(err)
		}
		if id <= lastID {
			t.Errorf("id %d not greater than previous %d", id, lastID)
		}
		lastID = id

		if i == 1 {
			if level != int32(models.LevelError) {
				t.Errorf("second row level = %d, want %d", level, models.LevelError)
			}
			if !strings.Contains(exc, "TimeoutException") {
				t.Errorf("exception column %q missing type", exc)
			}
		}
		i++
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreInsertBatchRollsBackOnFailure(t *testing.T) {
	db, store := newStoreDB(t)
	ctx := context.Background()

	if err := store.InsertBatch(ctx, []*models.LogEntry{
		{Timestamp: time.Now().UTC(), Level: models.LevelInformation, Category: "seed", RenderedMessage: "kept"},
	}); err != nil {
		t.Fatalf("seed InsertBatch() error: %v", err)
	}

	// DuckDB rejects invalid UTF-8 in VARCHAR columns, so the second entry
	// fails its statement after the first has already executed. The whole
	// batch must roll back.
	batch := []*models.LogEntry{
		{Timestamp: time.Now().UTC(), Level: models.LevelInformation, Category: "ok", RenderedMessage: "first"},
		{Timestamp: time.Now().UTC(), Level: models.LevelInformation, Category: string([]byte{0xff, 0xfe}), RenderedMessage: "poison"},
		{Timestamp: time.Now().UTC(), Level: models.LevelInformation, Category: "ok", RenderedMessage: "third"},
	}
	if err := store.InsertBatch(ctx, batch); err == nil {
		t.Fatal("InsertBatch() = nil, want error for invalid entry")
	}

	var count int64
	if err := db.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.TableName).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want only the seed row (failed batch not rolled back)", count)
	}
}

func TestStoreInsertBatchEmpty(t *testing.T) {
	_, store := newStoreDB(t)
	if err := store.InsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("InsertBatch(nil) error: %v", err)
	}
}

func TestSinkWithRealStore(t *testing.T) {
	db, store := newStoreDB(t)

	s := newTestSink(t, testOptions(), store)
	for i := 0; i < 12; i++ {
		if err := s.Enqueue(entry("integration")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Flush(5 * time.Second); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	var count int64
	err := db.Reader().QueryRow("SELECT COUNT(*) FROM " + schema.TableName).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 12 {
		t.Errorf("row count = %d, want 12", count)
	}
}
