// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package services adapts logpond components to suture's Serve lifecycle.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StartStopper matches the Start/Stop lifecycle of the sink and the
// housekeeper. The interface keeps this package free of their imports.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// LifecycleService wraps a Start/Stop component as a supervised service:
// Serve starts the component, blocks until the context is canceled, then
// stops it. If Start fails, suture restarts per its backoff policy.
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewSinkService wraps the sink worker.
func NewSinkService(s StartStopper) *LifecycleService {
	return &LifecycleService{component: s, name: "sink-worker"}
}

// NewHousekeeperService wraps the retention sweeper.
func NewHousekeeperService(h StartStopper) *LifecycleService {
	return &LifecycleService{component: h, name: "housekeeper"}
}

// Serve implements suture.Service.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	// Stop blocks until the component's goroutine has exited.
	s.component.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *LifecycleService) String() string {
	return s.name
}

// HTTPService runs an http.Server under supervision with graceful shutdown.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPService wraps server. shutdownTimeout bounds the graceful drain of
// in-flight requests on shutdown.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service. ListenAndServe runs in a goroutine; on
// context cancellation the server drains gracefully within the shutdown
// timeout.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *HTTPService) String() string {
	return s.name
}
