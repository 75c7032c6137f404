// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package main is the entrypoint for logpondd, the Logpond log sink daemon.
//
// Initialization order matters and is sequential:
//
//  1. Configuration (koanf: defaults, optional YAML file, LOGPOND_* env)
//  2. Logging (zerolog, configured from the loaded config)
//  3. Database (DuckDB, schema created from the catalog on first open)
//  4. Sink (bounded queue + batch writer behind a circuit breaker)
//  5. Housekeeper (retention pruning, manual or automatic mode)
//  6. HTTP API (chi router: ingest, query, retention, health, metrics)
//  7. Supervisor tree (suture: data layer supervises sink + housekeeper,
//     API layer supervises the HTTP server)
//
// Shutdown is signal driven: SIGINT/SIGTERM cancels the supervisor
// context, the sink drains its queue into a final batch, the housekeeper
// and HTTP server stop, and the database is checkpointed and closed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/logpond/logpond/internal/api"
	"github.com/logpond/logpond/internal/config"
	"github.com/logpond/logpond/internal/database"
	"github.com/logpond/logpond/internal/housekeeping"
	"github.com/logpond/logpond/internal/logging"
	"github.com/logpond/logpond/internal/reader"
	"github.com/logpond/logpond/internal/sink"
	"github.com/logpond/logpond/internal/supervisor"
	"github.com/logpond/logpond/internal/supervisor/services"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: config.yaml, /etc/logpond/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Config errors are reported through the default logger since
		// logging is not configured yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("storage_path", cfg.Database.StoragePath()).
		Str("housekeeping_mode", string(cfg.Housekeeping.Mode)).
		Str("overflow_policy", string(cfg.Batching.OverflowPolicy)).
		Msg("Starting logpond")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	store := sink.NewStore(db)
	logSink, err := sink.New(cfg.Batching, store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create sink")
	}

	housekeeper, err := housekeeping.New(db, cfg.Housekeeping)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create housekeeper")
	}

	entryReader := reader.New(db)

	handler := api.NewHandler(logSink, entryReader, housekeeper)
	router := api.NewRouter(handler, &cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.Slog(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddDataService(services.NewSinkService(logSink))
	tree.AddDataService(services.NewHousekeeperService(housekeeper))
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel so supervised services finish stopping.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	stats := logSink.Stats()
	logging.Info().
		Uint64("written", stats.Written).
		Uint64("discarded", stats.Discarded).
		Uint64("failed_batches", stats.FailedBatches).
		Msg("Logpond stopped gracefully")
}
