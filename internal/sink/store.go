// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/logpond/logpond/internal/codec"
	"github.com/logpond/logpond/internal/database"
	"github.com/logpond/logpond/internal/logging"
	"github.com/logpond/logpond/internal/metrics"
	"github.com/logpond/logpond/internal/models"
	"github.com/logpond/logpond/internal/schema"
)

// Store is the DuckDB-backed Inserter. A circuit breaker sits in front of the
// database so a wedged storage file fails batches fast instead of stacking
// retries on a dead engine.
type Store struct {
	db   *database.DB
	cb   *gobreaker.CircuitBreaker[struct{}]
	name string

	insertSQL string
}

// NewStore creates a store writing into db.
// Circuit breaker configuration:
// - Max 1 request in half-open state (single writer anyway)
// - 1 minute measurement window
// - 30 second timeout before attempting recovery
// - Opens after 5 consecutive failures
func NewStore(db *database.DB) *Store {
	cbName := "duckdb-writer"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("Writer circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Store{
		db:        db,
		cb:        cb,
		name:      cbName,
		insertSQL: schema.BuildInsertStatement(),
	}
}

// InsertBatch commits all entries in one transaction. Any error rolls the
// whole batch back.
func (s *Store) InsertBatch(ctx context.Context, entries []*models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.insertBatch(ctx, entries)
	})
	return err
}

func (s *Store) insertBatch(ctx context.Context, entries []*models.LogEntry) error {
	return s.db.WithWriter(ctx, func(ctx context.Context, conn *sql.DB) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback() // No-op after commit
		}()

		stmt, err := tx.PrepareContext(ctx, s.insertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, entry := range entries {
			if _, err := stmt.ExecContext(ctx, encodeEntry(entry)...); err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
		return nil
	})
}

// encodeEntry maps an entry onto the insertable column order of the schema
// catalog. Encoding is best-effort: a structured field whose JSON encoding
// fails is stored empty rather than sinking the whole batch.
func encodeEntry(entry *models.LogEntry) []any {
	params, err := codec.EncodeParameters(entry.Parameters)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to encode parameters, storing empty")
		params = ""
	}
	scopes, err := codec.EncodeScopes(entry.Scopes)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to encode scopes, storing empty")
		scopes = ""
	}
	exc, err := codec.EncodeException(entry.Exception)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to encode exception, storing empty")
		exc = ""
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return []any{
		ts.UTC(),
		int32(entry.Level),
		entry.Category,
		entry.EventID,
		entry.EventName,
		entry.MessageTemplate,
		entry.RenderedMessage,
		params,
		scopes,
		exc,
	}
}

// stateToFloat converts circuit breaker state to numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
