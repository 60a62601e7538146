package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/database"
	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/articles/sqlrepo"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/db"
	"github.com/stacklok/biblio-sync/internal/httpclient"
	"github.com/stacklok/biblio-sync/internal/ratelimit"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/registry/crossref"
	"github.com/stacklok/biblio-sync/internal/registry/doaj"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
	"github.com/stacklok/biblio-sync/internal/sync/coordinator"
	"github.com/stacklok/biblio-sync/internal/sync/state"
	"github.com/stacklok/biblio-sync/internal/telemetry"
)

// SyncTracerName is the tracer used for ticks and per-article operations
const SyncTracerName = "github.com/stacklok/biblio-sync/sync"

// ClientFactory creates the registry client of a target
type ClientFactory func(target *config.TargetConfig, clk clock.PassiveClock) (registry.Client, error)

// RuntimeOption configures a Runtime
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	clock         clock.WithTicker
	clientFactory ClientFactory
	articles      articles.Repository
	telemetry     *telemetry.Telemetry
	skipMigration bool
}

// WithClock replaces the wall clock, for tests
func WithClock(clk clock.WithTicker) RuntimeOption {
	return func(c *runtimeConfig) {
		c.clock = clk
	}
}

// WithClientFactory replaces the registry clients, for tests
func WithClientFactory(f ClientFactory) RuntimeOption {
	return func(c *runtimeConfig) {
		c.clientFactory = f
	}
}

// WithArticleRepository replaces the article source
func WithArticleRepository(repo articles.Repository) RuntimeOption {
	return func(c *runtimeConfig) {
		c.articles = repo
	}
}

// WithTelemetry instruments managers with the given providers
func WithTelemetry(t *telemetry.Telemetry) RuntimeOption {
	return func(c *runtimeConfig) {
		c.telemetry = t
	}
}

// WithoutMigration skips the schema migration on open, for commands that manage it themselves
func WithoutMigration() RuntimeOption {
	return func(c *runtimeConfig) {
		c.skipMigration = true
	}
}

// Runtime holds everything needed to run ticks: storage, article source,
// one manager per target and the coordinator scheduling them.
type Runtime struct {
	Config      *config.Config
	Database    *db.Connection
	Articles    articles.Repository
	Managers    []pkgsync.Manager
	Coordinator coordinator.Coordinator
}

// NewRuntime opens storage and builds the managers of all configured targets
func NewRuntime(ctx context.Context, cfg *config.Config, opts ...RuntimeOption) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	rc := &runtimeConfig{
		clock:         clock.RealClock{},
		clientFactory: DefaultClientFactory,
	}
	for _, opt := range opts {
		opt(rc)
	}

	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Database, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if rt.Database != nil && !rc.skipMigration {
		if err := database.MigrateUp(rt.Database); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var querier articles.Querier
	rt.Articles, querier, err = buildArticles(cfg, rt.Database, rc.articles)
	if err != nil {
		return nil, err
	}

	var metrics *telemetry.SyncMetrics
	tracer := telemetryTracer(rc.telemetry)
	if rc.telemetry != nil {
		metrics, err = telemetry.NewSyncMetrics(rc.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
	}

	for i := range cfg.Targets {
		target := &cfg.Targets[i]

		store, err := state.NewStore(cfg, target.Name, rt.Database, rc.clock)
		if err != nil {
			return nil, fmt.Errorf("target '%s': %w", target.Name, err)
		}
		client, err := rc.clientFactory(target, rc.clock)
		if err != nil {
			return nil, fmt.Errorf("target '%s': %w", target.Name, err)
		}

		manager, err := pkgsync.NewManager(pkgsync.Options{
			Target:   target,
			Client:   client,
			Store:    store,
			Articles: rt.Articles,
			Querier:  querier,
			Clock:    rc.clock,
			Metrics:  metrics,
			Tracer:   tracer,
		})
		if err != nil {
			return nil, err
		}
		rt.Managers = append(rt.Managers, manager)
	}

	rt.Coordinator, err = coordinator.New(rt.Managers, cfg, coordinator.WithClock(rc.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	slog.Info("Sync runtime initialized",
		"storage", cfg.GetStorageType(),
		"targets", len(rt.Managers))
	return rt, nil
}

// Manager returns the manager of the named target
func (rt *Runtime) Manager(target string) (pkgsync.Manager, error) {
	for _, m := range rt.Managers {
		if m.Target() == target {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", coordinator.ErrUnknownTarget, target)
}

// Close releases the database connection
func (rt *Runtime) Close() error {
	if rt.Database == nil {
		return nil
	}
	return rt.Database.Close()
}

// buildArticles selects the article source: the CMS tables when a database is
// configured, the article export file otherwise.
func buildArticles(
	cfg *config.Config, conn *db.Connection, override articles.Repository,
) (articles.Repository, articles.Querier, error) {
	if override != nil {
		querier, _ := override.(articles.Querier)
		return override, querier, nil
	}
	if conn != nil {
		repo := sqlrepo.New(conn)
		return repo, repo, nil
	}
	if cfg.Articles.File == "" {
		return nil, nil, errors.New("articles.file is required with file storage")
	}
	repo, err := articles.NewFileRepository(cfg.Articles.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open article file: %w", err)
	}
	return repo, nil, nil
}

// DefaultClientFactory builds the HTTP registry client of a target, with its
// own circuit breaker and rate limiter.
func DefaultClientFactory(target *config.TargetConfig, clk clock.PassiveClock) (registry.Client, error) {
	transport := &registry.Transport{
		HTTP:    httpclient.NewDefaultClient(target.Name, target.GetHTTPTimeout()),
		Limiter: ratelimit.New(target.GetRequestsPerSecond()),
	}

	switch target.Type {
	case config.TargetTypeCrossref:
		return crossref.NewClient(target, transport, clk), nil
	case config.TargetTypeDOAJ:
		return doaj.NewClient(target, transport), nil
	default:
		return nil, fmt.Errorf("unsupported target type '%s'", target.Type)
	}
}
