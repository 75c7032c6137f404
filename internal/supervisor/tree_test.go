// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/logpond/logpond/internal/logging"
)

// tickService flips a flag while serving.
type tickService struct {
	serving atomic.Bool
}

func (s *tickService) Serve(ctx context.Context) error {
	s.serving.Store(true)
	defer s.serving.Store(false)
	<-ctx.Done()
	return ctx.Err()
}

func (s *tickService) String() string { return "tick" }

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestTreeRunsServices(t *testing.T) {
	tree := NewTree(logging.Slog(), TreeConfig{})

	data := &tickService{}
	api := &tickService{}
	tree.AddDataService(data)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !data.serving.Load() || !api.serving.Load() {
		if time.Now().After(deadline) {
			t.Fatal("services never started under supervision")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}

	if data.serving.Load() || api.serving.Load() {
		t.Error("services still serving after tree stopped")
	}
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	tree := NewTree(logging.Slog(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want default 5.0", tree.config.FailureThreshold)
	}
	if tree.Root() == nil {
		t.Fatal("Root() = nil")
	}
}
