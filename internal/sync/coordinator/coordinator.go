package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/config"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

// ErrUnknownTarget is returned when no manager is registered for a target name
var ErrUnknownTarget = errors.New("unknown target")

// Coordinator manages background tick scheduling for all targets
type Coordinator interface {
	// Start begins the loops of all enabled targets.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels all loops and waits for running ticks to return
	Stop() error

	// TriggerUpdate runs one tick of a target immediately, enabled or not
	TriggerUpdate(ctx context.Context, target string) (*pkgsync.TickReport, error)

	// Targets returns the names of all managed targets in configuration order
	Targets() []string
}

// SupervisorSpec holds the restart policy of the target loops
type SupervisorSpec struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultSupervisorSpec returns suture's documented defaults
func DefaultSupervisorSpec() SupervisorSpec {
	return SupervisorSpec{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

type defaultCoordinator struct {
	managers map[string]pkgsync.Manager
	order    []string
	loops    []*targetLoop

	clock  clock.WithTicker
	spec   SupervisorSpec
	logger *slog.Logger

	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithClock sets the clock driving the loop tickers
func WithClock(clk clock.WithTicker) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// WithSupervisorSpec overrides the restart policy of the target loops
func WithSupervisorSpec(spec SupervisorSpec) Option {
	return func(c *defaultCoordinator) {
		c.spec = spec
	}
}

// WithLogger sets the logger receiving supervisor events
func WithLogger(logger *slog.Logger) Option {
	return func(c *defaultCoordinator) {
		c.logger = logger
	}
}

// New creates a coordinator for the given managers.
// Every manager must have a matching target in cfg.
func New(managers []pkgsync.Manager, cfg *config.Config, opts ...Option) (Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	c := &defaultCoordinator{
		managers: make(map[string]pkgsync.Manager, len(managers)),
		clock:    clock.RealClock{},
		spec:     DefaultSupervisorSpec(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, m := range managers {
		name := m.Target()
		if _, dup := c.managers[name]; dup {
			return nil, fmt.Errorf("duplicate manager for target '%s'", name)
		}
		target, ok := cfg.GetTarget(name)
		if !ok {
			return nil, fmt.Errorf("%w: '%s' is not configured", ErrUnknownTarget, name)
		}
		c.managers[name] = m
		c.order = append(c.order, name)
		if target.IsEnabled() {
			c.loops = append(c.loops, &targetLoop{
				manager:  m,
				interval: target.GetInterval(),
				clock:    c.clock,
			})
		}
	}

	return c, nil
}

func (c *defaultCoordinator) Targets() []string {
	return append([]string(nil), c.order...)
}

// Start runs the supervisor of all enabled target loops
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer func() {
		close(done)
		slog.Info("Background sync coordinator shutting down")
	}()

	slog.Info("Starting background sync coordinator",
		"target_count", len(c.order),
		"enabled_count", len(c.loops))

	if len(c.loops) == 0 {
		<-coordCtx.Done()
		return nil
	}

	handler := &sutureslog.Handler{Logger: c.logger}
	supervisor := suture.New("biblio-sync", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: c.spec.FailureThreshold,
		FailureDecay:     c.spec.FailureDecay,
		FailureBackoff:   c.spec.FailureBackoff,
		Timeout:          c.spec.ShutdownTimeout,
	})
	for _, loop := range c.loops {
		supervisor.Add(loop)
	}

	err := supervisor.Serve(coordCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync supervisor stopped: %w", err)
	}
	return nil
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	slog.Info("Stopping sync coordinator")
	cancel()
	<-done
	return nil
}

func (c *defaultCoordinator) TriggerUpdate(ctx context.Context, target string) (*pkgsync.TickReport, error) {
	m, ok := c.managers[target]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownTarget, target)
	}
	return m.DoUpdate(ctx)
}
