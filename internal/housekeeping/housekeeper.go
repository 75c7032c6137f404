// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package housekeeping prunes old log entries. It shares the single-writer
// database with the sink, so every delete goes through the same writer guard
// and can never race a batch insert.
package housekeeping

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logpond/logpond/internal/config"
	"github.com/logpond/logpond/internal/database"
	"github.com/logpond/logpond/internal/logging"
	"github.com/logpond/logpond/internal/metrics"
	"github.com/logpond/logpond/internal/schema"
)

// Housekeeper applies the retention policy to the log entries table.
type Housekeeper struct {
	db   *database.DB
	opts config.HousekeepingOptions

	// Control
	ctx    context.Context
	cancel context.CancelFunc

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}

	deleted atomic.Int64
}

// New creates a housekeeper for db. In automatic mode, Start launches the
// background sweep loop; in manual mode deletes happen only on explicit
// calls.
func New(db *database.DB, opts config.HousekeepingOptions) (*Housekeeper, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Housekeeper{db: db, opts: opts}, nil
}

// Start launches the background sweep loop in automatic mode. In manual mode
// it is a no-op: nothing is ever deleted without an explicit call.
func (h *Housekeeper) Start(ctx context.Context) error {
	if h.opts.Mode != config.ModeAutomatic {
		logging.Debug().Msg("Housekeeper in manual mode, background sweeps disabled")
		return nil
	}

	h.mu.Lock()

	for h.stopping {
		stopDone := h.stopDone
		h.mu.Unlock()
		<-stopDone
		h.mu.Lock()
	}

	if h.running {
		h.mu.Unlock()
		return nil
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true
	h.stopDone = make(chan struct{})

	loopCtx := h.ctx
	done := h.stopDone

	h.mu.Unlock()

	go h.runWithContext(loopCtx, done)

	logging.Info().
		Dur("sweep_interval", h.opts.SweepInterval).
		Dur("max_age", h.opts.MaxAge).
		Int64("max_row_count", h.opts.MaxRowCount).
		Msg("Housekeeper started")
	return nil
}

// Stop halts the background sweep loop. A sweep in flight finishes first.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	if !h.running || h.stopping {
		h.mu.Unlock()
		return
	}

	h.cancel()
	h.running = false
	h.stopping = true
	stopDone := h.stopDone
	h.mu.Unlock()

	<-stopDone

	h.mu.Lock()
	h.stopping = false
	h.mu.Unlock()

	logging.Info().Int64("deleted_total", h.deleted.Load()).Msg("Housekeeper stopped")
}

// IsRunning returns whether the sweep loop is active.
func (h *Housekeeper) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// runWithContext is the sweep loop goroutine.
func (h *Housekeeper) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.RunOnce(ctx); err != nil {
				logging.Error().Err(err).Msg("Retention sweep failed")
			}
		}
	}
}

// RunOnce applies the configured retention predicates: first the age bound,
// then the row count bound. Returns the total rows deleted. With both bounds
// unset it does nothing.
func (h *Housekeeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	var total int64

	if h.opts.MaxAge > 0 {
		n, err := h.deleteWhere(ctx, "age",
			fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", schema.TableName),
			time.Now().UTC().Add(-h.opts.MaxAge))
		if err != nil {
			return total, err
		}
		total += n
	}

	if h.opts.MaxRowCount > 0 {
		n, err := h.deleteWhere(ctx, "count",
			fmt.Sprintf("DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT %d)",
				schema.TableName, schema.TableName, h.opts.MaxRowCount))
		if err != nil {
			return total, err
		}
		total += n
	}

	metrics.RecordHousekeepingRun(time.Since(start))

	if total > 0 {
		logging.Info().
			Int64("deleted", total).
			Dur("duration", time.Since(start)).
			Msg("Retention sweep complete")
	}
	return total, nil
}

// DeleteAll removes every stored entry.
func (h *Housekeeper) DeleteAll(ctx context.Context) (int64, error) {
	return h.deleteWhere(ctx, "all", "DELETE FROM "+schema.TableName)
}

// DeleteOlderThan removes entries with a timestamp before cutoff.
func (h *Housekeeper) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return h.deleteWhere(ctx, "explicit",
		fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", schema.TableName),
		cutoff.UTC())
}

// DeleteExceedingCount trims the table down to the newest max rows, newest
// meaning highest id. max <= 0 deletes nothing.
func (h *Housekeeper) DeleteExceedingCount(ctx context.Context, max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	return h.deleteWhere(ctx, "count",
		fmt.Sprintf("DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT %d)",
			schema.TableName, schema.TableName, max))
}

// DeletedTotal returns the number of rows this housekeeper has deleted.
func (h *Housekeeper) DeletedTotal() int64 {
	return h.deleted.Load()
}

func (h *Housekeeper) deleteWhere(ctx context.Context, reason, query string, args ...any) (int64, error) {
	var affected int64
	err := h.db.WithWriter(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("retention delete (%s) failed: %w", reason, err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("retention delete (%s): rows affected: %w", reason, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		h.deleted.Add(affected)
		metrics.HousekeepingDeletedTotal.WithLabelValues(reason).Add(float64(affected))
	}
	return affected, nil
}
