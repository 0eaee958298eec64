// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point of the clip studio HTTP server. It loads
// configuration, sets up logging and telemetry, builds the generation
// pipeline and serves the REST API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-clip-studio/internal/api"
	"github.com/jaycherian/gcp-go-clip-studio/internal/telemetry"
)

const (
	DefaultPort     = 8080
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config, err := GetConfig()
	if err != nil {
		return err
	}

	closeLog, err := telemetry.SetupLogging(config)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.Info("logging initialized")

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to setup OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("failed to shutdown telemetry", "error", err)
		}
	}()
	slog.Info("tracing initialized")

	if err := InitState(ctx); err != nil {
		return err
	}
	defer state.app.Close()
	slog.Info("initialized state")

	port := config.Application.Port
	if port == 0 {
		port = DefaultPort
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: api.NewRouter(config.Application.Name, state.app.Generation),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("server ready", "port", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	// Stops the listener and the retention sweep.
	cancel()

	slog.Info("server exiting")
	return nil
}
