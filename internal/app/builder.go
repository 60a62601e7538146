package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/biblio-sync/internal/api"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Minute
	defaultIdleTimeout    = 60 * time.Second
)

// AppOption is a function that configures the app builder
//
//nolint:revive // This name is fine
type AppOption func(*appConfig) error

type appConfig struct {
	config *config.Config

	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	telemetry      *telemetry.Telemetry
	runtimeOptions []RuntimeOption
}

func baseConfig(opts ...AppOption) (*appConfig, error) {
	cfg := &appConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetAPIAddress()
	}
	return cfg, nil
}

// NewApp builds the sync runtime and the admin HTTP server around it
func NewApp(ctx context.Context, opts ...AppOption) (*App, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	runtimeOpts := cfg.runtimeOptions
	if cfg.telemetry != nil {
		runtimeOpts = append([]RuntimeOption{WithTelemetry(cfg.telemetry)}, runtimeOpts...)
	}
	rt, err := NewRuntime(ctx, cfg.config, runtimeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync runtime: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, rt)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	return &App{
		config:     cfg.config,
		runtime:    rt,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) AppOption {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides the admin API listen address
func WithAddress(addr string) AppOption {
	return func(cfg *appConfig) error {
		host, port, err := net.SplitHostPort(addr)
		if err != nil || port == "" {
			return fmt.Errorf("address is not a valid host:port: %s", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}
		if _, err := netip.ParseAddrPort(net.JoinHostPort(host, port)); err != nil {
			return fmt.Errorf("address is not a valid host:port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) AppOption {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithAppTelemetry instruments the runtime and the admin API
func WithAppTelemetry(t *telemetry.Telemetry) AppOption {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithRuntimeOptions passes options through to NewRuntime
func WithRuntimeOptions(opts ...RuntimeOption) AppOption {
	return func(cfg *appConfig) error {
		cfg.runtimeOptions = append(cfg.runtimeOptions, opts...)
		return nil
	}
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *appConfig, rt *Runtime) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{}

	if b.telemetry != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// outermost, so requests rejected by later middleware are still counted
		b.middlewares = append([]func(http.Handler) http.Handler{
			httpMetrics.Middleware,
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
		}, b.middlewares...)

		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
		}
	}

	token, err := b.config.GetAdminToken()
	if err != nil {
		return nil, fmt.Errorf("failed to read admin token: %w", err)
	}
	if token == "" {
		slog.Warn("No admin token configured, mutating API routes are unauthenticated")
	}

	serverOpts = append(serverOpts,
		api.WithMiddlewares(b.middlewares...),
		api.WithAdminToken(token),
	)
	if rt.Database != nil {
		serverOpts = append(serverOpts, api.WithReadinessCheck(rt.Database.Ping))
	}

	server := &http.Server{
		Addr:              b.address,
		Handler:           api.NewServer(rt.Managers, serverOpts...),
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
