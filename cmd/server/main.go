// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package main is the entry point for the TrackWire server.
//
// TrackWire ingests location updates for anonymous track identifiers,
// keeps the latest position and a bounded trail per track in BadgerDB,
// and broadcasts accepted updates to websocket subscribers.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered loading from defaults, config file, and
//     environment variables (Koanf v2)
//  2. Store: BadgerDB-backed position and trail storage
//  3. WebSocket hub: real-time fan-out of accepted updates
//  4. Update pipeline: validation, persistence, and broadcast
//  5. Janitor: periodic retention sweeps for stale tracks
//  6. HTTP server: REST API plus websocket and Prometheus endpoints
//
// All long-running components run under a suture supervisor tree so a
// crash in one layer restarts only that layer.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (HTTP_PORT, BADGER_PATH, TRAIL_MAX_POINTS, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting connections, waits for in-flight requests, closes all
// websocket clients, and flushes the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/trackwire/internal/api"
	"github.com/tomtom215/trackwire/internal/config"
	"github.com/tomtom215/trackwire/internal/janitor"
	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/pipeline"
	"github.com/tomtom215/trackwire/internal/retention"
	"github.com/tomtom215/trackwire/internal/store"
	"github.com/tomtom215/trackwire/internal/supervisor"
	"github.com/tomtom215/trackwire/internal/supervisor/services"
	ws "github.com/tomtom215/trackwire/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet, use the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("in_memory", cfg.Database.InMemory).
		Int("trail_max_points", cfg.Retention.MaxTrailPoints).
		Dur("trail_window", cfg.Retention.TrailWindow).
		Msg("Starting TrackWire")

	policy := retention.Policy{
		MaxTrailPoints: cfg.Retention.MaxTrailPoints,
		TrailWindow:    cfg.Retention.TrailWindow,
		StaleAfter:     cfg.Retention.StaleAfter,
	}

	s, err := store.Open(store.Options{
		Path:     cfg.Database.Path,
		InMemory: cfg.Database.InMemory,
		Policy:   policy,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	hub := ws.NewHub(cfg.WebSocket.GlobalBroadcast)
	pipe := pipeline.New(s, hub)
	jan := janitor.New(s, cfg.Janitor.Interval)

	handler := api.NewHandler(s, pipe, hub, jan, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.NewRouter(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree.AddBroadcastService(services.NewHubService(hub))
	tree.AddMaintenanceService(jan)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().
		Str("addr", server.Addr).
		Dur("janitor_interval", cfg.Janitor.Interval).
		Bool("global_broadcast", cfg.WebSocket.GlobalBroadcast).
		Msg("Services added to supervisor tree")

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

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("TrackWire stopped gracefully")
}
