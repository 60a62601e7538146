// Package app wires configuration, storage, registry clients and the admin
// API into a running biblio-sync service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stacklok/biblio-sync/internal/config"
)

// App encapsulates the sync runtime and the admin API server.
// It provides lifecycle management and graceful shutdown.
type App struct {
	config     *config.Config
	runtime    *Runtime
	httpServer *http.Server

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the target loops and the admin API.
// Blocks until the HTTP server stops or fails.
func (app *App) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(listener)
}

// Serve is Start on an existing listener
func (app *App) Serve(listener net.Listener) error {
	go func() {
		if err := app.runtime.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", listener.Addr().String())
	if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop stops the target loops, waits for running ticks and shuts down the HTTP server
func (app *App) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	if err := app.runtime.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}
	app.cancelFunc()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.runtime.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	slog.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (app *App) GetConfig() *config.Config {
	return app.config
}

// Runtime returns the sync runtime
func (app *App) Runtime() *Runtime {
	return app.runtime
}

// GetHTTPServer returns the HTTP server
func (app *App) GetHTTPServer() *http.Server {
	return app.httpServer
}
