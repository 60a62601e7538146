package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/status"
)

// article loads an article from the article source
func (m *defaultManager) article(ctx context.Context, articleID string) (*articles.Article, error) {
	a, err := m.articles.Get(ctx, articleID)
	if errors.Is(err, articles.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArticle, articleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", articleID, err)
	}
	return a, nil
}

// runRecorded executes one recorded operation outside of a tick and returns the
// resulting record. Per-article failures are returned after being recorded.
func (m *defaultManager) runRecorded(
	ctx context.Context, articleID string, op func(context.Context, *articles.Article) TickResult,
) (*status.SyncRecord, error) {
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := m.article(ctx, articleID)
	if err != nil {
		return nil, err
	}

	res := op(ctx, a)
	if res.Action == AbortTick {
		m.recordGlobalError(ctx, res.Err)
	}

	rec, err := m.store.Get(context.WithoutCancel(ctx), articleID)
	if res.Err != nil {
		return rec, res.Err
	}
	return rec, err
}

func (m *defaultManager) Identify(ctx context.Context, articleID string) (*status.SyncRecord, error) {
	return m.runRecorded(ctx, articleID, m.identifyArticle)
}

func (m *defaultManager) Submit(ctx context.Context, articleID string) (*status.SyncRecord, error) {
	return m.runRecorded(ctx, articleID, m.submitArticle)
}

func (m *defaultManager) CheckStatus(ctx context.Context, articleID string) (*status.SyncRecord, error) {
	return m.runRecorded(ctx, articleID, m.checkArticle)
}

// Delete works for articles that are no longer in the article source, since that
// is usually why their registry entry has to go.
func (m *defaultManager) Delete(ctx context.Context, articleID string) (*status.SyncRecord, error) {
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := m.article(ctx, articleID)
	if errors.Is(err, ErrUnknownArticle) {
		a = &articles.Article{ID: articleID}
	} else if err != nil {
		return nil, err
	}

	if err := m.deleteArticle(ctx, a); err != nil {
		rec, _ := m.store.Get(context.WithoutCancel(ctx), articleID)
		return rec, err
	}
	return m.store.Get(ctx, articleID)
}

// MarkAllModified rewinds the modification check time to the Unix epoch so the
// next tick flags every article as modified
func (m *defaultManager) MarkAllModified(ctx context.Context) error {
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.store.SetGlobal(ctx, status.GlobalUpdate{RewindModifiedCheck: true}); err != nil {
		return err
	}
	m.logger().Info("All articles marked as modified")
	return nil
}

func (m *defaultManager) ResetAll(ctx context.Context, keepExternalID bool) error {
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.store.ResetAll(ctx, keepExternalID); err != nil {
		return err
	}
	m.logger().Info("Sync state reset", "keep_external_id", keepExternalID)
	return nil
}

// GetRecord returns the record of an article. Articles unknown to both the
// article source and the store are reported as ErrUnknownArticle.
func (m *defaultManager) GetRecord(ctx context.Context, articleID string) (*status.SyncRecord, error) {
	rec, err := m.store.Get(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if !rec.IsZero() {
		return rec, nil
	}
	if _, err := m.article(ctx, articleID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *defaultManager) GetGlobalState(ctx context.Context) (*status.GlobalState, error) {
	return m.store.GetGlobal(ctx)
}

func (m *defaultManager) Summary(ctx context.Context) (*Summary, error) {
	g, err := m.store.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := m.queries.Counts(ctx)
	if err != nil {
		return nil, err
	}

	list, err := m.articles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]status.SyncStatus, len(records))
	for _, rec := range records {
		byID[rec.ArticleID] = rec.Status
	}

	statuses := make(map[status.SyncStatus]int, len(status.AllStatuses))
	for _, a := range list {
		st, ok := byID[a.ID]
		if !ok {
			st = status.StatusUnsubmitted
		}
		statuses[st]++
	}

	return &Summary{
		Target:                 m.target.Name,
		Type:                   m.target.Type,
		Capabilities:           m.client.Capabilities(),
		Global:                 g,
		SinceLastModifiedCheck: m.clock.Since(g.LastModifiedCheckTime),
		Queues:                 counts,
		Statuses:               statuses,
		UpdateInProgress:       m.running.Load(),
	}, nil
}
