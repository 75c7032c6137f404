// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package config defines the Logpond configuration surface and loads it from
// layered sources (defaults, YAML file, environment) via koanf.
//
// Every option is validated at load time: a bad value fails startup with a
// field-specific error instead of surfacing later on the logging hot path.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/logpond/logpond/internal/schema"
)

// OverflowPolicy decides what Enqueue does when the write buffer is full.
type OverflowPolicy string

const (
	// OverflowDrop discards the new entry and increments the discard
	// counter. Default: producer liveness over completeness.
	OverflowDrop OverflowPolicy = "drop"

	// OverflowBlock applies backpressure: the producer waits for queue
	// space (or sink shutdown).
	OverflowBlock OverflowPolicy = "block"
)

// HousekeepingMode selects how retention runs.
type HousekeepingMode string

const (
	// ModeManual deletes rows only on explicit calls. No background
	// deletion ever occurs in this mode.
	ModeManual HousekeepingMode = "manual"

	// ModeAutomatic runs the retention predicate on a background interval.
	ModeAutomatic HousekeepingMode = "automatic"
)

// Config is the root configuration for logpondd and for embedding the sink.
type Config struct {
	Logging      LoggingConfig       `koanf:"logging"`
	Database     DatabaseConfig      `koanf:"database"`
	Batching     BatchingOptions     `koanf:"batching"`
	Housekeeping HousekeepingOptions `koanf:"housekeeping"`
	Server       ServerConfig        `koanf:"server"`
}

// LoggingConfig controls the process-wide zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings for the log store.
type DatabaseConfig struct {
	// Dir is the directory holding the storage file. The file name itself
	// is derived from the schema version (see schema.StorageFileName) so an
	// incompatible layout change opens a new file.
	Dir string `koanf:"dir"`

	// Path overrides the derived storage file path. ":memory:" and the
	// empty path (with empty Dir) select an in-memory database, used by
	// tests.
	Path string `koanf:"path"`

	// MaxMemory bounds DuckDB's memory use, e.g. "512MB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB worker thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// StoragePath resolves the storage file path from Path/Dir.
func (c *DatabaseConfig) StoragePath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Dir == "" {
		return ":memory:"
	}
	return schema.StorageFileName(c.Dir)
}

// InMemory reports whether the configuration selects an in-memory database.
func (c *DatabaseConfig) InMemory() bool {
	p := c.StoragePath()
	return p == ":memory:" || p == ""
}

// BatchingOptions tunes the write buffer and the batch writer.
type BatchingOptions struct {
	// MaxBatchSize is the largest number of entries inserted in one
	// transaction.
	MaxBatchSize int `koanf:"max_batch_size" validate:"gt=0"`

	// MaxWaitTime bounds how long a partial batch waits before flushing,
	// measured from the moment its first entry is taken.
	MaxWaitTime time.Duration `koanf:"max_wait_time" validate:"gt=0"`

	// QueueCapacity bounds the producer-side buffer.
	QueueCapacity int `koanf:"queue_capacity" validate:"gt=0"`

	// OverflowPolicy decides between dropping and blocking when the buffer
	// is full.
	OverflowPolicy OverflowPolicy `koanf:"overflow_policy" validate:"oneof=drop block"`

	// MaxRetries is how many times a failed batch insert is retried before
	// the batch is abandoned and counted as failed.
	MaxRetries int `koanf:"max_retries" validate:"gte=0"`

	// RetryBackoff is the initial backoff between retries; it doubles per
	// attempt.
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"gt=0"`
}

// HousekeepingOptions tunes row retention.
type HousekeepingOptions struct {
	// Mode selects manual or automatic retention.
	Mode HousekeepingMode `koanf:"mode" validate:"oneof=manual automatic"`

	// MaxAge deletes rows older than now-MaxAge when RunOnce executes.
	// Zero disables the age predicate.
	MaxAge time.Duration `koanf:"max_age" validate:"gte=0"`

	// MaxRowCount trims the table down to the newest MaxRowCount rows when
	// RunOnce executes. Zero disables the count predicate.
	MaxRowCount int64 `koanf:"max_row_count" validate:"gte=0"`

	// SweepInterval is the cadence of the automatic loop.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// ServerConfig holds HTTP settings for logpondd.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RateLimitRequests/RateLimitWindow bound ingest requests per client IP.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// validate is the shared validator instance for struct-tag checks.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a Config with production defaults. Callers layer file and
// environment values on top via Load.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Dir:       "/data/logpond",
			MaxMemory: "512MB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Batching: BatchingOptions{
			MaxBatchSize:   100,
			MaxWaitTime:    2 * time.Second,
			QueueCapacity:  10000,
			OverflowPolicy: OverflowDrop,
			MaxRetries:     3,
			RetryBackoff:   100 * time.Millisecond,
		},
		Housekeeping: HousekeepingOptions{
			Mode:          ModeManual,
			MaxAge:        0,
			MaxRowCount:   0,
			SweepInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              4747,
			Timeout:           30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
		},
	}
}

// Validate checks the whole configuration. Struct-tag rules run first, then
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: field %s failed rule %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("config: %w", err)
	}

	if err := c.Batching.Validate(); err != nil {
		return err
	}
	return c.Housekeeping.Validate()
}

// Validate applies batching rules beyond the struct tags.
func (o *BatchingOptions) Validate() error {
	if o.MaxBatchSize <= 0 {
		return &OptionError{Field: "batching.max_batch_size", Message: "must be positive"}
	}
	if o.MaxWaitTime <= 0 {
		return &OptionError{Field: "batching.max_wait_time", Message: "must be positive"}
	}
	if o.QueueCapacity <= 0 {
		return &OptionError{Field: "batching.queue_capacity", Message: "must be positive"}
	}
	if o.OverflowPolicy != OverflowDrop && o.OverflowPolicy != OverflowBlock {
		return &OptionError{Field: "batching.overflow_policy", Message: `must be "drop" or "block"`}
	}
	if o.MaxRetries < 0 {
		return &OptionError{Field: "batching.max_retries", Message: "must not be negative"}
	}
	if o.RetryBackoff <= 0 {
		return &OptionError{Field: "batching.retry_backoff", Message: "must be positive"}
	}
	return nil
}

// Validate applies housekeeping rules beyond the struct tags.
func (o *HousekeepingOptions) Validate() error {
	switch o.Mode {
	case ModeManual, ModeAutomatic:
	default:
		return &OptionError{Field: "housekeeping.mode", Message: `must be "manual" or "automatic"`}
	}
	if o.Mode == ModeAutomatic && o.SweepInterval <= 0 {
		return &OptionError{Field: "housekeeping.sweep_interval", Message: "must be positive in automatic mode"}
	}
	if o.MaxAge < 0 {
		return &OptionError{Field: "housekeeping.max_age", Message: "must not be negative"}
	}
	if o.MaxRowCount < 0 {
		return &OptionError{Field: "housekeeping.max_row_count", Message: "must not be negative"}
	}
	return nil
}

// OptionError is a configuration validation error tied to one field.
type OptionError struct {
	Field   string
	Message string
}

func (e *OptionError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
