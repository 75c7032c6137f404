// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package sink implements the buffered write path: producers enqueue log
// entries into a bounded in-memory buffer, and a single background worker
// drains the buffer into storage in transactional batches.
//
// The worker is the only goroutine that talks to the batch inserter, so
// storage sees writes strictly in buffer order. Producers never block on the
// database; with the default drop policy they never block at all.
package sink

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logpond/logpond/internal/config"
	"github.com/logpond/logpond/internal/database"
	"github.com/logpond/logpond/internal/logging"
	"github.com/logpond/logpond/internal/metrics"
	"github.com/logpond/logpond/internal/models"
)

// Inserter commits a batch of entries atomically: either every entry in the
// slice is stored or none is.
type Inserter interface {
	InsertBatch(ctx context.Context, entries []*models.LogEntry) error
}

var (
	// ErrBufferFull is returned by Enqueue under the drop policy when the
	// buffer has no room. The entry has been discarded and counted.
	ErrBufferFull = errors.New("sink: write buffer full, entry dropped")

	// ErrClosed is returned by Enqueue and Flush after Stop.
	ErrClosed = errors.New("sink: closed")
)

// FailureHook is invoked after a batch is abandoned (retries exhausted).
// It runs on the worker goroutine; implementations must not block.
type FailureHook func(entries []*models.LogEntry, err error)

// Stats is a snapshot of sink counters.
type Stats struct {
	Enqueued      uint64 `json:"enqueued"`
	Written       uint64 `json:"written"`
	Discarded     uint64 `json:"discarded"`
	FailedBatches uint64 `json:"failed_batches"`
	QueueDepth    int    `json:"queue_depth"`
}

// Sink is the buffered batch writer.
type Sink struct {
	opts      config.BatchingOptions
	store     Inserter
	onFailure FailureHook

	queue   chan *models.LogEntry
	flushCh chan chan error

	// Control
	ctx    context.Context
	cancel context.CancelFunc

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}

	// inflight counts Enqueue calls that passed the running check but have
	// not finished their queue send. Stop waits for them before the final
	// drain so an entry acknowledged with nil is never left behind.
	inflight sync.WaitGroup

	enqueued      atomic.Uint64
	written       atomic.Uint64
	discarded     atomic.Uint64
	failedBatches atomic.Uint64
}

// Option customizes a Sink.
type Option func(*Sink)

// WithFailureHook registers a hook called with the abandoned batch after all
// retries fail.
func WithFailureHook(hook FailureHook) Option {
	return func(s *Sink) { s.onFailure = hook }
}

// New creates a sink draining into store. Call Start to begin writing.
func New(opts config.BatchingOptions, store Inserter, options ...Option) (*Sink, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("sink: nil inserter")
	}

	s := &Sink{
		opts:    opts,
		store:   store,
		queue:   make(chan *models.LogEntry, opts.QueueCapacity),
		flushCh: make(chan chan error),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Start launches the background worker. It runs until Stop is called or the
// context is canceled. Calling Start on a running sink is a no-op.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()

	for s.stopping {
		stopDone := s.stopDone
		s.mu.Unlock()
		<-stopDone
		s.mu.Lock()
	}

	if s.running {
		s.mu.Unlock()
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.stopDone = make(chan struct{})

	loopCtx := s.ctx
	done := s.stopDone

	s.mu.Unlock()

	go s.runWithContext(loopCtx, done)

	logging.Info().
		Int("max_batch_size", s.opts.MaxBatchSize).
		Dur("max_wait_time", s.opts.MaxWaitTime).
		Int("queue_capacity", s.opts.QueueCapacity).
		Str("overflow_policy", string(s.opts.OverflowPolicy)).
		Msg("Sink started")
	return nil
}

// Stop drains the buffer, writes the final batches and stops the worker.
// Entries enqueued after Stop returns ErrClosed.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return
	}

	s.running = false
	s.stopping = true
	stopDone := s.stopDone
	cancel := s.cancel
	s.mu.Unlock()

	// New enqueues are rejected from here on. Wait for the in-flight ones to
	// land in the queue before canceling, so the final drain sees them. The
	// worker is still consuming, so blocked block-policy sends make progress.
	s.inflight.Wait()
	cancel()

	<-stopDone

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	logging.Info().
		Uint64("written", s.written.Load()).
		Uint64("discarded", s.discarded.Load()).
		Msg("Sink stopped")
}

// IsRunning returns whether the worker is active.
func (s *Sink) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Enqueue hands an entry to the sink. A zero timestamp is stamped with the
// current time, so the stored order reflects arrival order.
//
// Under the drop policy a full buffer discards the entry and returns
// ErrBufferFull. Under the block policy the call waits for space, returning
// ErrClosed if the sink shuts down first.
func (s *Sink) Enqueue(entry *models.LogEntry) error {
	if entry == nil {
		return errors.New("sink: nil entry")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrClosed
	}
	ctx := s.ctx
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	switch s.opts.OverflowPolicy {
	case config.OverflowBlock:
		select {
		case s.queue <- entry:
		case <-ctx.Done():
			return ErrClosed
		}
	default:
		select {
		case s.queue <- entry:
		default:
			s.discarded.Add(1)
			metrics.SinkDroppedTotal.Inc()
			return ErrBufferFull
		}
	}

	s.enqueued.Add(1)
	metrics.SinkEnqueuedTotal.Inc()
	metrics.SinkQueueDepth.Set(float64(len(s.queue)))
	return nil
}

// Flush forces everything currently buffered to storage and waits for the
// commit, up to timeout.
func (s *Sink) Flush(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrClosed
	}
	ctx := s.ctx
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	reply := make(chan error, 1)
	select {
	case s.flushCh <- reply:
	case <-timer.C:
		return errors.New("sink: flush timed out waiting for worker")
	case <-ctx.Done():
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-timer.C:
		return errors.New("sink: flush timed out waiting for commit")
	}
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Enqueued:      s.enqueued.Load(),
		Written:       s.written.Load(),
		Discarded:     s.discarded.Load(),
		FailedBatches: s.failedBatches.Load(),
		QueueDepth:    len(s.queue),
	}
}

// DiscardedCount returns the number of entries dropped on overflow.
func (s *Sink) DiscardedCount() uint64 {
	return s.discarded.Load()
}

// runWithContext is the worker goroutine. The context is passed as a
// parameter to avoid races with Stop().
func (s *Sink) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			// Final drain with a fresh context so shutdown still commits
			// what producers managed to enqueue.
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.drain(drainCtx); err != nil {
				logging.Error().Err(err).Msg("Final drain failed")
			}
			cancel()
			return
		case reply := <-s.flushCh:
			reply <- s.drain(ctx)
		case entry := <-s.queue:
			s.collectAndWrite(ctx, entry)
		}
	}
}

// collectAndWrite gathers a batch starting from first and commits it. The
// batch closes when it reaches MaxBatchSize, when MaxWaitTime elapses from
// the first entry, or when a flush or shutdown interrupts collection.
func (s *Sink) collectAndWrite(ctx context.Context, first *models.LogEntry) {
	batch := make([]*models.LogEntry, 1, s.opts.MaxBatchSize)
	batch[0] = first

	timer := time.NewTimer(s.opts.MaxWaitTime)
	defer timer.Stop()

	var pendingFlush chan error

collect:
	for len(batch) < s.opts.MaxBatchSize {
		select {
		case entry := <-s.queue:
			batch = append(batch, entry)
		case <-timer.C:
			break collect
		case reply := <-s.flushCh:
			pendingFlush = reply
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	// Shutdown interrupts collection with a dead context; the collected
	// entries still get committed under a fresh one.
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	err := s.writeBatch(writeCtx, batch)
	metrics.SinkQueueDepth.Set(float64(len(s.queue)))

	if pendingFlush != nil {
		// The flush also covers whatever arrived during collection.
		if err == nil {
			err = s.drain(ctx)
		}
		pendingFlush <- err
	}
}

// drain writes everything currently in the queue in MaxBatchSize chunks.
func (s *Sink) drain(ctx context.Context) error {
	var firstErr error
	for {
		batch := make([]*models.LogEntry, 0, s.opts.MaxBatchSize)
	fill:
		for len(batch) < s.opts.MaxBatchSize {
			select {
			case entry := <-s.queue:
				batch = append(batch, entry)
			default:
				break fill
			}
		}
		if len(batch) == 0 {
			metrics.SinkQueueDepth.Set(float64(len(s.queue)))
			return firstErr
		}
		if err := s.writeBatch(ctx, batch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
}

// writeBatch commits one batch. Transient failures (write conflicts,
// connection loss) are retried with exponential backoff; deterministic ones
// fail on every attempt and skip the retry budget. Once abandoned a batch is
// counted, reported to the failure hook, never requeued.
func (s *Sink) writeBatch(ctx context.Context, batch []*models.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.SinkBatchRetriesTotal.Inc()
			select {
			case <-time.After(calculateBackoff(s.opts.RetryBackoff, attempt-1)):
			case <-ctx.Done():
				// Shutdown during backoff: one last immediate attempt below.
			}
		}

		start := time.Now()
		err := s.store.InsertBatch(ctx, batch)
		if err == nil {
			s.written.Add(uint64(len(batch)))
			metrics.RecordBatchCommit(len(batch), time.Since(start))
			return nil
		}

		lastErr = err
		if !database.IsRetryable(err) {
			// Deterministic failures repeat identically; report them now
			// instead of burning the retry budget.
			logging.Warn().
				Err(err).
				Int("batch_size", len(batch)).
				Msg("Batch insert failed with non-retryable error")
			break
		}
		logging.Warn().
			Err(err).
			Int("batch_size", len(batch)).
			Int("attempt", attempt+1).
			Int("max_retries", s.opts.MaxRetries).
			Msg("Batch insert failed")
	}

	s.failedBatches.Add(1)
	metrics.SinkBatchFailuresTotal.Inc()
	logging.Error().
		Err(lastErr).
		Int("batch_size", len(batch)).
		Msg("Batch abandoned after exhausting retries")

	if s.onFailure != nil {
		s.onFailure(batch, lastErr)
	}
	return lastErr
}

// calculateBackoff calculates exponential backoff delay for retry attempts.
// Formula: base * 2^attempts, capped at 5 minutes.
func calculateBackoff(base time.Duration, attempts int) time.Duration {
	maxBackoff := 5 * time.Minute

	// Cap attempts to prevent overflow (2^63 is the max for time.Duration)
	if attempts > 50 {
		return maxBackoff
	}

	multiplier := math.Pow(2, float64(attempts))
	backoff := time.Duration(float64(base) * multiplier)

	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
