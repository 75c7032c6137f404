// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package reader provides query access to stored log entries.
//
// Decoding is defensive throughout: rows written by other tools or damaged
// on disk come back with empty structured fields instead of an error, so one
// bad row never poisons a result set.
package reader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/logpond/logpond/internal/codec"
	"github.com/logpond/logpond/internal/database"
	"github.com/logpond/logpond/internal/models"
	"github.com/logpond/logpond/internal/schema"
)

// Reader reads log entries from the store. It only issues SELECTs and never
// takes the writer lock.
type Reader struct {
	db *database.DB
}

// New creates a reader over db.
func New(db *database.DB) *Reader {
	return &Reader{db: db}
}

// EntryFilter narrows an Entries query. Zero values mean "no constraint".
type EntryFilter struct {
	// MinLevel keeps entries at or above this severity. LevelNone entries
	// are always excluded by a level filter.
	MinLevel *models.Level

	// Category keeps entries whose category equals or starts with this
	// value, so "app.db" also matches "app.db.conn".
	Category string

	// Since/Until bound the timestamp (inclusive lower, exclusive upper).
	Since time.Time
	Until time.Time

	// Limit caps the result size; 0 means no cap. Offset skips rows, for
	// pagination.
	Limit  int
	Offset int
}

// EntryCount returns the number of stored entries.
func (r *Reader) EntryCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.TableName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// DatabaseFileSize returns the storage file size in bytes, 0 for in-memory
// stores.
func (r *Reader) DatabaseFileSize() (int64, error) {
	return r.db.FileSize()
}

// AllEntries returns every stored entry ordered by id, oldest first.
func (r *Reader) AllEntries(ctx context.Context) ([]*models.LogEntry, error) {
	return r.query(ctx, schema.BuildSelectStatement()+" ORDER BY id")
}

// Entries returns entries matching filter, ordered by id, oldest first.
func (r *Reader) Entries(ctx context.Context, filter EntryFilter) ([]*models.LogEntry, error) {
	var (
		conds []string
		args  []any
	)

	if filter.MinLevel != nil {
		conds = append(conds, "level >= ? AND level <= ?")
		args = append(args, int32(*filter.MinLevel), int32(models.LevelCritical))
	}
	if filter.Category != "" {
		conds = append(conds, "starts_with(category, ?)")
		args = append(args, filter.Category)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, filter.Until.UTC())
	}

	query := schema.BuildSelectStatement()
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return r.query(ctx, query, args...)
}

func (r *Reader) query(ctx context.Context, query string, args ...any) ([]*models.LogEntry, error) {
	rows, err := r.db.Reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*models.LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// scanEntry decodes one row. Scan destinations are placed by catalog ordinal
// so the decode survives column reordering in the catalog. The optional
// columns are nullable in the DDL, so they scan through sql.NullString and a
// NULL reads back as the zero value, the same degraded result malformed
// stored text gets.
func scanEntry(rows *sql.Rows) (*models.LogEntry, error) {
	var (
		id        int64
		timestamp time.Time
		level     int32
		category  string
		eventID   int32
		eventName sql.NullString
		template  sql.NullString
		rendered  sql.NullString
		params    sql.NullString
		scopes    sql.NullString
		exc       sql.NullString
	)

	dests := make([]any, len(schema.AllColumnNames()))
	dests[schema.Ordinal("id")] = &id
	dests[schema.Ordinal("timestamp")] = &timestamp
	dests[schema.Ordinal("level")] = &level
	dests[schema.Ordinal("category")] = &category
	dests[schema.Ordinal("event_id")] = &eventID
	dests[schema.Ordinal("event_name")] = &eventName
	dests[schema.Ordinal("message_template")] = &template
	dests[schema.Ordinal("rendered_message")] = &rendered
	dests[schema.Ordinal("parameters")] = &params
	dests[schema.Ordinal("scopes")] = &scopes
	dests[schema.Ordinal("exception")] = &exc

	if err := rows.Scan(dests...); err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	return &models.LogEntry{
		ID:              id,
		Timestamp:       timestamp.UTC(),
		Level:           models.LevelFromInt(level),
		Category:        category,
		EventID:         eventID,
		EventName:       eventName.String,
		MessageTemplate: template.String,
		RenderedMessage: rendered.String,
		Parameters:      codec.DecodeParameters(params.String),
		Scopes:          codec.DecodeScopes(scopes.String),
		Exception:       codec.DecodeException(exc.String),
	}, nil
}
