package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/otel"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/status"
)

// errStatusStore marks a store failure surfacing through a registry call path
var errStatusStore = errors.New("status store failure")

// Operation names used in logs and metrics
const (
	OperationIdentify = "identify"
	OperationSubmit   = "submit"
	OperationCheck    = "check"
	OperationDelete   = "delete"
)

// resultOf is the span and metric label of a registry call
func resultOf(err error, ok string) string {
	if err != nil {
		return string(registry.KindOf(err))
	}
	return ok
}

// failure turns a per-article error into the tick action it calls for
func (m *defaultManager) failure(err error) TickResult {
	if registry.IsGlobal(err) {
		if registry.KindOf(err) == registry.KindAuth {
			return abortTick(ReasonAuthFailed, err)
		}
		return abortTick(ReasonConfigurationError, err)
	}
	if m.target.GetStopOnFirstFailure() {
		return TickResult{Action: StopBatch, Err: err}
	}
	return TickResult{Action: Continue, Err: err}
}

// recordFailure writes err on the record of an article. Submit failures also move
// the status to error, or to not_possible when the article cannot be rendered.
// A failed identification still counts as an attempt, so the article leaves the
// identification queue.
func (m *defaultManager) recordFailure(ctx context.Context, operation, articleID string, err error) TickResult {
	kind := registry.KindOf(err)
	update := status.Update().WithLastError(err.Error())
	switch operation {
	case OperationSubmit:
		if kind == registry.KindRender {
			update = update.WithStatus(status.StatusNotPossible)
		} else {
			update = update.WithStatus(status.StatusError)
		}
	case OperationIdentify:
		update = update.WithIdentifyTimestamp(m.clock.Now().UTC())
	}

	m.metrics.RecordOperation(ctx, m.target.Name, operation, string(kind))
	m.logger().Warn("Registry operation failed",
		"operation", operation,
		"article_id", articleID,
		"kind", kind,
		"error", err)

	if setErr := m.store.Set(ctx, articleID, update); setErr != nil {
		return abortTick(ReasonStorageFailed, setErr)
	}
	return m.failure(err)
}

// submitArticle sends one article. The record is marked pending before the call.
func (m *defaultManager) submitArticle(ctx context.Context, a *articles.Article) TickResult {
	rec, err := m.store.Get(ctx, a.ID)
	if err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	now := m.clock.Now().UTC()
	if err := m.store.Set(ctx, a.ID, status.Update().
		WithStatus(status.StatusPending).
		WithSubmitTimestamp(now)); err != nil {
		return abortTick(ReasonStorageFailed, err)
	}
	rec.Status = status.StatusPending
	rec.SubmitTimestamp = &now

	callCtx, span := otel.StartOperation(ctx, m.tracer, OperationSubmit, a.ID)
	res, err := m.client.Submit(callCtx, a, rec)
	if err != nil && registry.KindOf(err) == registry.KindConflict {
		res, err = m.recreate(callCtx, a, rec)
	}
	otel.EndOperation(span, resultOf(err, submitOutcome(res)), err)
	if errors.Is(err, errStatusStore) {
		return abortTick(ReasonStorageFailed, err)
	}

	// the outcome is persisted even when the tick is being cancelled
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return m.recordFailure(ctx, OperationSubmit, a.ID, err)
	}

	if res.Pending {
		m.metrics.RecordOperation(ctx, m.target.Name, OperationSubmit, "pending")
		m.logger().Info("Submission accepted for processing", "article_id", a.ID, "message", res.Message)
		return continueTick()
	}

	update := status.Update().WithStatus(status.StatusSuccess)
	if res.ExternalID != "" {
		update = update.WithExternalID(res.ExternalID)
	}
	if err := m.store.Set(ctx, a.ID, update); err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	m.metrics.RecordOperation(ctx, m.target.Name, OperationSubmit, "success")
	m.logger().Info("Article submitted", "article_id", a.ID, "external_id", res.ExternalID)
	return continueTick()
}

func submitOutcome(res *registry.SubmitResult) string {
	if res != nil && res.Pending {
		return "pending"
	}
	return "success"
}

// recreate deletes the registry entry and creates it again. The submit timestamp
// is kept so a failed create stays eligible for retry.
func (m *defaultManager) recreate(
	ctx context.Context, a *articles.Article, rec *status.SyncRecord,
) (*registry.SubmitResult, error) {
	m.logger().Info("Registry requires delete and recreate", "article_id", a.ID, "external_id", rec.ExternalID)

	if rec.ExternalID != "" {
		if err := m.client.Delete(ctx, a, rec); err != nil {
			return nil, err
		}
		m.metrics.RecordOperation(ctx, m.target.Name, OperationDelete, "success")
	}

	if err := m.store.Set(ctx, a.ID, status.Update().WithExternalID("")); err != nil {
		return nil, fmt.Errorf("%w: %w", errStatusStore, err)
	}
	rec.ExternalID = ""

	return m.client.Submit(ctx, a, rec)
}

// identifyArticle looks an article up in the registry. The identify timestamp is
// stamped whether or not an entry was found.
func (m *defaultManager) identifyArticle(ctx context.Context, a *articles.Article) TickResult {
	rec, err := m.store.Get(ctx, a.ID)
	if err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	callCtx, span := otel.StartOperation(ctx, m.tracer, OperationIdentify, a.ID)
	res, err := m.client.Identify(callCtx, a)
	found := "not-found"
	if err == nil && res.Found {
		found = "found"
	}
	otel.EndOperation(span, resultOf(err, found), err)
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return m.recordFailure(ctx, OperationIdentify, a.ID, err)
	}

	update := status.Update().WithIdentifyTimestamp(m.clock.Now().UTC())
	if res.Found {
		update = update.WithExternalID(res.ExternalID)
		// local edits still have to be submitted
		switch rec.Status {
		case status.StatusUnsubmitted, status.StatusPending, status.StatusError:
			update = update.WithStatus(status.StatusSuccess)
		case status.StatusSuccess, status.StatusModified, status.StatusNotPossible:
		}
	}
	if err := m.store.Set(ctx, a.ID, update); err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	m.metrics.RecordOperation(ctx, m.target.Name, OperationIdentify, found)
	m.logger().Info("Article identified",
		"article_id", a.ID,
		"found", res.Found,
		"matches", res.Matches,
		"external_id", res.ExternalID)
	return continueTick()
}

// checkArticle polls the outcome of a pending asynchronous submission
func (m *defaultManager) checkArticle(ctx context.Context, a *articles.Article) TickResult {
	rec, err := m.store.Get(ctx, a.ID)
	if err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	callCtx, span := otel.StartOperation(ctx, m.tracer, OperationCheck, a.ID)
	res, err := m.client.CheckStatus(callCtx, a, rec)
	if err == nil {
		otel.EndOperation(span, string(res.Outcome), nil)
	} else {
		otel.EndOperation(span, resultOf(err, ""), err)
	}
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return m.recordFailure(ctx, OperationCheck, a.ID, err)
	}

	var update status.RecordUpdate
	switch res.Outcome {
	case registry.CheckSucceeded:
		update = status.Update().WithStatus(status.StatusSuccess)
		if res.ExternalID != "" {
			update = update.WithExternalID(res.ExternalID)
		}
	case registry.CheckFailed:
		msg := res.Message
		if msg == "" {
			msg = "registry rejected the submission"
		}
		update = status.Update().WithStatus(status.StatusError).WithLastError(msg)
	case registry.CheckQueued:
	}

	if err := m.store.Set(ctx, a.ID, update); err != nil {
		return abortTick(ReasonStorageFailed, err)
	}

	m.metrics.RecordOperation(ctx, m.target.Name, OperationCheck, string(res.Outcome))
	m.logger().Info("Checked pending submission",
		"article_id", a.ID,
		"outcome", res.Outcome,
		"message", res.Message)
	return continueTick()
}

// deleteArticle removes the registry entry of an article. Without an external id
// there is nothing to delete and no call is made.
func (m *defaultManager) deleteArticle(ctx context.Context, a *articles.Article) error {
	rec, err := m.store.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	if rec.ExternalID == "" {
		return nil
	}

	callCtx, span := otel.StartOperation(ctx, m.tracer, OperationDelete, a.ID)
	err = m.client.Delete(callCtx, a, rec)
	otel.EndOperation(span, resultOf(err, "success"), err)
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		kind := registry.KindOf(err)
		m.metrics.RecordOperation(ctx, m.target.Name, OperationDelete, string(kind))
		if kind == registry.KindUnsupported {
			return err
		}
		if setErr := m.store.Set(ctx, a.ID, status.Update().WithLastError(err.Error())); setErr != nil {
			return errors.Join(err, setErr)
		}
		return err
	}

	m.metrics.RecordOperation(ctx, m.target.Name, OperationDelete, "success")
	m.logger().Info("Registry entry deleted", "article_id", a.ID, "external_id", rec.ExternalID)

	return m.store.Set(ctx, a.ID, status.Update().
		WithStatus(status.StatusUnsubmitted).
		WithExternalID("").
		WithSubmitTimestamp(time.Time{}).
		WithIdentifyTimestamp(time.Time{}).
		WithLastError(""))
}
