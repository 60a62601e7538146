package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/otel"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/internal/sync/selection"
	"github.com/stacklok/biblio-sync/internal/sync/state"
	"github.com/stacklok/biblio-sync/internal/telemetry"
)

var (
	// ErrUpdateInProgress is returned when a tick or administrative operation is already running for the target
	ErrUpdateInProgress = errors.New("update already in progress")

	// ErrUnknownArticle is returned for article ids the article source does not know
	ErrUnknownArticle = errors.New("unknown article")

	// ErrTickAborted is returned when a tick ends on an authentication or configuration failure
	ErrTickAborted = errors.New("tick aborted")
)

// TickReport summarizes one tick
type TickReport struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Modified is the number of articles flagged as modified
	Modified int `json:"modified"`

	// Checked is the number of pending submissions resolved
	Checked int `json:"checked"`

	// Submitted is the number of submit attempts
	Submitted int `json:"submitted"`

	// Identified is the number of identification attempts
	Identified int `json:"identified"`

	// Failed is the number of per-article failures
	Failed int `json:"failed"`

	// Stopped is set when the tick ended on a per-article failure
	Stopped bool `json:"stopped"`

	// AbortReason is set when the tick ended on a global failure
	AbortReason string `json:"abortReason,omitempty"`

	// Error describes the failure that ended the tick
	Error string `json:"error,omitempty"`
}

// Outcome returns the tick outcome as recorded in metrics
func (r *TickReport) Outcome() string {
	switch {
	case r.AbortReason != "":
		return telemetry.TickResultAborted
	case r.Stopped:
		return telemetry.TickResultStopped
	default:
		return telemetry.TickResultCompleted
	}
}

// Summary is the dashboard view of a target
type Summary struct {
	Target       string                `json:"target"`
	Type         string                `json:"type"`
	Capabilities registry.Capabilities `json:"capabilities"`
	Global       *status.GlobalState   `json:"global"`

	// SinceLastModifiedCheck is the time elapsed since the last modification check
	SinceLastModifiedCheck time.Duration `json:"sinceLastModifiedCheck"`

	Queues   *selection.Counts         `json:"queues"`
	Statuses map[status.SyncStatus]int `json:"statuses"`

	UpdateInProgress bool `json:"updateInProgress"`
}

// Manager synchronizes the articles of one target with its registry
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager
type Manager interface {
	// Target returns the target name
	Target() string

	// DoUpdate runs one tick
	DoUpdate(ctx context.Context) (*TickReport, error)

	// Identify searches the registry for an article and records the outcome
	Identify(ctx context.Context, articleID string) (*status.SyncRecord, error)

	// Submit sends an article to the registry and records the outcome
	Submit(ctx context.Context, articleID string) (*status.SyncRecord, error)

	// CheckStatus polls the outcome of the pending submission of an article
	CheckStatus(ctx context.Context, articleID string) (*status.SyncRecord, error)

	// Delete removes the registry entry of an article and resets its record
	Delete(ctx context.Context, articleID string) (*status.SyncRecord, error)

	// MarkAllModified forces a full resynchronization on the next tick
	MarkAllModified(ctx context.Context) error

	// ResetAll clears every record, optionally keeping the registry identifiers
	ResetAll(ctx context.Context, keepExternalID bool) error

	// GetRecord returns the sync record of an article
	GetRecord(ctx context.Context, articleID string) (*status.SyncRecord, error)

	// GetGlobalState returns the global sync state of the target
	GetGlobalState(ctx context.Context) (*status.GlobalState, error)

	// Summary returns the dashboard view of the target
	Summary(ctx context.Context) (*Summary, error)
}

// Options holds the collaborators of a Manager
type Options struct {
	Target   *config.TargetConfig
	Client   registry.Client
	Store    state.Store
	Articles articles.Repository

	// Querier evaluates selection filters in SQL. Only set it when it shares the
	// database of Store.
	Querier articles.Querier

	Clock   clock.PassiveClock
	Metrics *telemetry.SyncMetrics
	Tracer  trace.Tracer
}

type defaultManager struct {
	target   *config.TargetConfig
	client   registry.Client
	store    state.Store
	articles articles.Repository
	queries  *selection.Queries
	clock    clock.PassiveClock
	metrics  *telemetry.SyncMetrics
	tracer   trace.Tracer

	mu      gosync.Mutex
	running atomic.Bool
}

// NewManager creates the manager of one target
func NewManager(opts Options) (Manager, error) {
	if opts.Target == nil {
		return nil, fmt.Errorf("target configuration is required")
	}
	if opts.Client == nil || opts.Store == nil || opts.Articles == nil {
		return nil, fmt.Errorf("target '%s': client, store and article source are required", opts.Target.Name)
	}
	if opts.Store.Target() != opts.Target.Name {
		return nil, fmt.Errorf("state store belongs to target '%s', not '%s'", opts.Store.Target(), opts.Target.Name)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	caps := opts.Client.Capabilities()
	queries := selection.New(opts.Articles, opts.Store, clk, selection.Options{
		RetryDelay:       opts.Target.GetRetryDelay(),
		PendingTimeout:   opts.Target.GetPendingTimeout(),
		RequiresIdentify: caps.Identify,
		RequireDOI:       opts.Target.RequireExternalPrerequisite,
		Categories:       opts.Target.Categories,
		Querier:          opts.Querier,
	})

	return &defaultManager{
		target:   opts.Target,
		client:   opts.Client,
		store:    opts.Store,
		articles: opts.Articles,
		queries:  queries,
		clock:    clk,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}, nil
}

func (m *defaultManager) Target() string {
	return m.target.Name
}

// lock acquires the per-target lock without waiting
func (m *defaultManager) lock() (func(), error) {
	if !m.mu.TryLock() {
		return nil, ErrUpdateInProgress
	}
	m.running.Store(true)
	return func() {
		m.running.Store(false)
		m.mu.Unlock()
	}, nil
}

func (m *defaultManager) logger() *slog.Logger {
	return slog.With("target", m.target.Name)
}

// DoUpdate runs one tick of the target
func (m *defaultManager) DoUpdate(ctx context.Context) (*TickReport, error) {
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	report := &TickReport{
		ID:        uuid.NewString(),
		Target:    m.target.Name,
		StartedAt: m.clock.Now().UTC(),
	}

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.DoUpdate",
		trace.WithAttributes(
			otel.AttrTarget.String(m.target.Name),
			otel.AttrTargetType.String(m.target.Type),
			otel.AttrTickID.String(report.ID),
			otel.AttrBatchSize.Int(m.target.GetBatch()),
		))
	defer span.End()

	logger := m.logger().With("tick_id", report.ID)
	logger.Debug("Starting tick")

	result := m.tick(ctx, report, logger)

	report.FinishedAt = m.clock.Now().UTC()
	switch result.Action {
	case StopBatch:
		report.Stopped = true
		if result.Err != nil {
			report.Error = result.Err.Error()
		}
	case AbortTick:
		report.AbortReason = result.Reason
		report.Error = result.Err.Error()
		m.recordGlobalError(ctx, result.Err)
	case Continue:
	}

	span.SetAttributes(otel.AttrTickOutcome.String(report.Outcome()))
	m.metrics.RecordTickDuration(ctx, m.target.Name, report.FinishedAt.Sub(report.StartedAt), report.Outcome())
	m.recordQueueDepth(ctx)

	logger.Info("Tick finished",
		"outcome", report.Outcome(),
		"modified", report.Modified,
		"checked", report.Checked,
		"submitted", report.Submitted,
		"identified", report.Identified,
		"failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt))

	if result.Action == AbortTick {
		otel.RecordError(span, result.Err)
		return report, fmt.Errorf("%w: %s: %w", ErrTickAborted, result.Reason, result.Err)
	}
	return report, nil
}

func (m *defaultManager) tick(ctx context.Context, report *TickReport, logger *slog.Logger) TickResult {
	batch := m.target.GetBatch()
	caps := m.client.Capabilities()

	// 1. reset the global error and stamp the update time
	started := report.StartedAt
	cleared := ""
	if err := m.store.SetGlobal(ctx, status.GlobalUpdate{
		LastUpdateTime:  &started,
		LastGlobalError: &cleared,
	}); err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	// 2. modification detection runs before selection so flagged articles join this tick
	checkedAt := m.clock.Now().UTC()
	modified, err := m.queries.ModifiedSinceLastCheck(ctx, 0)
	if err != nil {
		return abortTick(ReasonSelectionFailed, err)
	}
	for _, a := range modified {
		if err := m.store.Set(ctx, a.ID, status.Update().WithStatus(status.StatusModified)); err != nil {
			return abortTick(ReasonStorageFailed, err)
		}
		logger.Debug("Article modified since last check", "article_id", a.ID)
		report.Modified++
	}
	if err := m.store.SetGlobal(ctx, status.GlobalUpdate{LastModifiedCheckTime: &checkedAt}); err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	// 3. resolve submissions still in flight
	if caps.StatusCheck || caps.Identify {
		pending, err := m.queries.PendingWithinTimeout(ctx, batch)
		if err != nil {
			return abortTick(ReasonSelectionFailed, err)
		}
		for _, a := range pending {
			var res TickResult
			if caps.StatusCheck {
				res = m.checkArticle(ctx, a)
			} else {
				res = m.identifyArticle(ctx, a)
			}
			report.Checked++
			if stop := m.account(report, res); stop {
				return res
			}
		}
	}

	// 4. drain the work queue
	queue, err := m.queries.NeedsSubmitting(ctx, batch)
	if err != nil {
		return abortTick(ReasonSelectionFailed, err)
	}
	for _, a := range queue {
		res := m.submitArticle(ctx, a)
		report.Submitted++
		if stop := m.account(report, res); stop {
			return res
		}
	}

	// 5. identification only runs on otherwise idle ticks
	if len(queue) > 0 || !caps.Identify {
		return continueTick()
	}
	unidentified, err := m.queries.NeedsIdentifying(ctx, batch)
	if err != nil {
		return abortTick(ReasonSelectionFailed, err)
	}
	for _, a := range unidentified {
		res := m.identifyArticle(ctx, a)
		report.Identified++
		if stop := m.account(report, res); stop {
			return res
		}
	}
	return continueTick()
}

// account counts failures and reports whether the tick has to end
func (*defaultManager) account(report *TickReport, res TickResult) bool {
	if res.Err != nil && res.Action != AbortTick {
		report.Failed++
	}
	return res.Action != Continue
}

func (m *defaultManager) recordGlobalError(ctx context.Context, err error) {
	msg := err.Error()
	if setErr := m.store.SetGlobal(context.WithoutCancel(ctx), status.GlobalUpdate{LastGlobalError: &msg}); setErr != nil {
		m.logger().Error("Failed to record global error", "error", setErr)
	}
	m.logger().Error("Tick aborted", "error", err)
}

func (m *defaultManager) recordQueueDepth(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	counts, err := m.queries.Counts(ctx)
	if err != nil {
		m.logger().Warn("Failed to compute queue depth", "error", err)
		return
	}
	m.metrics.RecordQueueDepth(ctx, m.target.Name, "new", counts.New)
	m.metrics.RecordQueueDepth(ctx, m.target.Name, "modified", counts.Modified)
	m.metrics.RecordQueueDepth(ctx, m.target.Name, "retry", counts.Retry)
	m.metrics.RecordQueueDepth(ctx, m.target.Name, "pending", counts.Pending)
	m.metrics.RecordQueueDepth(ctx, m.target.Name, "identifying", counts.Identifying)
}
