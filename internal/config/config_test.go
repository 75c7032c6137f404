// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Batching.OverflowPolicy != OverflowDrop {
		t.Errorf("default overflow policy = %q, want %q", cfg.Batching.OverflowPolicy, OverflowDrop)
	}
	if cfg.Housekeeping.Mode != ModeManual {
		t.Errorf("default housekeeping mode = %q, want %q", cfg.Housekeeping.Mode, ModeManual)
	}
}

func TestBatchingOptionsValidate(t *testing.T) {
	base := Default().Batching

	tests := []struct {
		name    string
		mutate  func(*BatchingOptions)
		field   string
		wantErr bool
	}{
		{name: "valid", mutate: func(o *BatchingOptions) {}},
		{
			name:    "zero batch size",
			mutate:  func(o *BatchingOptions) { o.MaxBatchSize = 0 },
			field:   "batching.max_batch_size",
			wantErr: true,
		},
		{
			name:    "negative wait time",
			mutate:  func(o *BatchingOptions) { o.MaxWaitTime = -time.Second },
			field:   "batching.max_wait_time",
			wantErr: true,
		},
		{
			name:    "zero queue capacity",
			mutate:  func(o *BatchingOptions) { o.QueueCapacity = 0 },
			field:   "batching.queue_capacity",
			wantErr: true,
		},
		{
			name:    "unknown overflow policy",
			mutate:  func(o *BatchingOptions) { o.OverflowPolicy = "spill" },
			field:   "batching.overflow_policy",
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(o *BatchingOptions) { o.MaxRetries = -1 },
			field:   "batching.max_retries",
			wantErr: true,
		},
		{
			name:    "zero backoff",
			mutate:  func(o *BatchingOptions) { o.RetryBackoff = 0 },
			field:   "batching.retry_backoff",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				var oe *OptionError
				if !errors.As(err, &oe) {
					t.Fatalf("Validate() = %v, want *OptionError", err)
				}
				if oe.Field != tt.field {
					t.Errorf("error field = %q, want %q", oe.Field, tt.field)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestHousekeepingOptionsValidate(t *testing.T) {
	opts := HousekeepingOptions{Mode: ModeAutomatic, SweepInterval: 0}
	err := opts.Validate()
	var oe *OptionError
	if !errors.As(err, &oe) || oe.Field != "housekeeping.sweep_interval" {
		t.Fatalf("automatic mode without interval: got %v, want sweep_interval error", err)
	}

	opts = HousekeepingOptions{Mode: ModeManual, SweepInterval: 0}
	if err := opts.Validate(); err != nil {
		t.Fatalf("manual mode without interval should be valid, got %v", err)
	}
}

func TestDatabaseConfigStoragePath(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{name: "explicit path wins", cfg: DatabaseConfig{Dir: "/data", Path: "/tmp/x.duckdb"}, want: "/tmp/x.duckdb"},
		{name: "derived from dir", cfg: DatabaseConfig{Dir: "/var/lib/logpond"}, want: "/var/lib/logpond/logpond-v2.duckdb"},
		{name: "empty is in-memory", cfg: DatabaseConfig{}, want: ":memory:"},
		{name: "memory literal", cfg: DatabaseConfig{Path: ":memory:"}, want: ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.StoragePath(); got != tt.want {
				t.Errorf("StoragePath() = %q, want %q", got, tt.want)
			}
		})
	}

	mem := DatabaseConfig{Path: ":memory:"}
	if !mem.InMemory() {
		t.Error("InMemory() = false for :memory:")
	}
	disk := DatabaseConfig{Dir: "/data"}
	if disk.InMemory() {
		t.Error("InMemory() = true for on-disk config")
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := strings.Join([]string{
		"batching:",
		"  max_batch_size: 250",
		"  overflow_policy: block",
		"housekeeping:",
		"  mode: automatic",
		"  sweep_interval: 5m",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LOGPOND_BATCHING__MAX_BATCH_SIZE", "500")
	t.Setenv("LOGPOND_SERVER__PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Environment overrides file.
	if cfg.Batching.MaxBatchSize != 500 {
		t.Errorf("MaxBatchSize = %d, want 500 (env override)", cfg.Batching.MaxBatchSize)
	}
	// File overrides defaults.
	if cfg.Batching.OverflowPolicy != OverflowBlock {
		t.Errorf("OverflowPolicy = %q, want block (file)", cfg.Batching.OverflowPolicy)
	}
	if cfg.Housekeeping.Mode != ModeAutomatic {
		t.Errorf("Mode = %q, want automatic (file)", cfg.Housekeeping.Mode)
	}
	if cfg.Housekeeping.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m (file)", cfg.Housekeeping.SweepInterval)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090 (env)", cfg.Server.Port)
	}
	// Untouched keys keep defaults.
	if cfg.Batching.QueueCapacity != 10000 {
		t.Errorf("QueueCapacity = %d, want default 10000", cfg.Batching.QueueCapacity)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("batching:\n  max_batch_size: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted max_batch_size=0")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() accepted a missing explicit config file")
	}
}

func TestEnvKeyTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LOGPOND_BATCHING__MAX_BATCH_SIZE", "batching.max_batch_size"},
		{"LOGPOND_LOGGING__LEVEL", "logging.level"},
		{"LOGPOND_CONFIG_PATH", ""},
	}
	for _, tt := range tests {
		if got := envKeyTransform(tt.in); got != tt.want {
			t.Errorf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
