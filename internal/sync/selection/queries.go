// Package selection computes the sets of articles a sync target has to work on.
//
// Every query is an articles.Filter evaluated against the sync records of one
// target. When a Querier sharing the state database is configured the filter is
// evaluated in SQL, otherwise the article collection is scanned in memory.
package selection

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/internal/sync/state"
)

// Options parameterizes the queries of one target
type Options struct {
	// RetryDelay is how long a pending or failed submission waits before it is retried
	RetryDelay time.Duration

	// PendingTimeout is how long a pending submission is considered in flight
	PendingTimeout time.Duration

	// RequiresIdentify makes new articles wait for an identification attempt
	RequiresIdentify bool

	// RequireDOI restricts submission to articles that already carry a DOI
	RequireDOI bool

	// Categories restricts every query to articles in one of these categories
	Categories []string

	// Querier evaluates filters in SQL. It must share the database of the state store.
	Querier articles.Querier
}

// Counts is the size of every queue of a target
type Counts struct {
	New         int `json:"new"`
	Modified    int `json:"modified"`
	Retry       int `json:"retry"`
	Identifying int `json:"identifying"`
	Pending     int `json:"pending"`
}

// Queries evaluates the selection predicates of one target
type Queries struct {
	repo  articles.Repository
	store state.Store
	clock clock.PassiveClock
	opts  Options
}

// New creates the queries of the target owning store
func New(repo articles.Repository, store state.Store, clk clock.PassiveClock, opts Options) *Queries {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Queries{
		repo:  repo,
		store: store,
		clock: clk,
		opts:  opts,
	}
}

// NeedsSubmittingBecauseNew returns articles that were never submitted. When the
// target identifies before submitting, only identified articles qualify.
func (q *Queries) NeedsSubmittingBecauseNew(ctx context.Context, limit int) ([]*articles.Article, error) {
	f := q.submission(articles.Filter{Statuses: []status.SyncStatus{status.StatusUnsubmitted}})
	if q.opts.RequiresIdentify {
		f.Identified = ptr.To(true)
	}
	return q.find(ctx, f, limit)
}

// NeedsSubmittingBecauseModified returns articles flagged as locally modified
func (q *Queries) NeedsSubmittingBecauseModified(ctx context.Context, limit int) ([]*articles.Article, error) {
	return q.find(ctx, q.submission(articles.Filter{
		Statuses: []status.SyncStatus{status.StatusModified},
	}), limit)
}

// NeedsRetry returns pending or failed articles whose last submission is older than the retry delay
func (q *Queries) NeedsRetry(ctx context.Context, limit int) ([]*articles.Article, error) {
	return q.find(ctx, q.submission(articles.Filter{
		Statuses:        []status.SyncStatus{status.StatusPending, status.StatusError},
		SubmittedBefore: ptr.To(q.clock.Now().Add(-q.opts.RetryDelay)),
	}), limit)
}

// NeedsIdentifying returns articles that were never looked up in the registry
func (q *Queries) NeedsIdentifying(ctx context.Context, limit int) ([]*articles.Article, error) {
	return q.find(ctx, q.submission(articles.Filter{Identified: ptr.To(false)}), limit)
}

// ModifiedSinceLastCheck returns articles changed after the last modification check
// that are not flagged as modified yet
func (q *Queries) ModifiedSinceLastCheck(ctx context.Context, limit int) ([]*articles.Article, error) {
	g, err := q.store.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}
	return q.find(ctx, q.scoped(articles.Filter{
		ModifiedAfter:   ptr.To(g.LastModifiedCheckTime),
		ExcludeStatuses: []status.SyncStatus{status.StatusModified},
	}), limit)
}

// PendingWithinTimeout returns pending articles whose submission is still plausibly in flight
func (q *Queries) PendingWithinTimeout(ctx context.Context, limit int) ([]*articles.Article, error) {
	return q.find(ctx, q.scoped(articles.Filter{
		Statuses:       []status.SyncStatus{status.StatusPending},
		SubmittedAfter: ptr.To(q.clock.Now().Add(-q.opts.PendingTimeout)),
	}), limit)
}

// NeedsSubmitting returns the work queue of a tick: modified articles, then retries,
// then new articles, without duplicates and capped at batch
func (q *Queries) NeedsSubmitting(ctx context.Context, batch int) ([]*articles.Article, error) {
	sources := []func(context.Context, int) ([]*articles.Article, error){
		q.NeedsSubmittingBecauseModified,
		q.NeedsRetry,
		q.NeedsSubmittingBecauseNew,
	}

	seen := make(map[string]bool)
	var queue []*articles.Article
	for _, source := range sources {
		if batch > 0 && len(queue) >= batch {
			break
		}
		list, err := source(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, a := range list {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			queue = append(queue, a)
			if batch > 0 && len(queue) >= batch {
				break
			}
		}
	}
	return queue, nil
}

// Counts returns the unbounded size of every queue
func (q *Queries) Counts(ctx context.Context) (*Counts, error) {
	type counter struct {
		dst   *int
		query func(context.Context, int) ([]*articles.Article, error)
	}

	var c Counts
	counters := []counter{
		{&c.New, q.NeedsSubmittingBecauseNew},
		{&c.Modified, q.NeedsSubmittingBecauseModified},
		{&c.Retry, q.NeedsRetry},
		{&c.Pending, q.PendingWithinTimeout},
	}
	if q.opts.RequiresIdentify {
		counters = append(counters, counter{&c.Identifying, q.NeedsIdentifying})
	}

	for _, item := range counters {
		list, err := item.query(ctx, 0)
		if err != nil {
			return nil, err
		}
		*item.dst = len(list)
	}
	return &c, nil
}

func (q *Queries) scoped(f articles.Filter) articles.Filter {
	f.Categories = q.opts.Categories
	return f
}

func (q *Queries) submission(f articles.Filter) articles.Filter {
	f = q.scoped(f)
	f.RequireDOI = q.opts.RequireDOI
	return f
}

func (q *Queries) find(ctx context.Context, f articles.Filter, limit int) ([]*articles.Article, error) {
	if q.opts.Querier != nil {
		list, err := q.opts.Querier.Query(ctx, q.store.Target(), f, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to query articles for target '%s': %w", q.store.Target(), err)
		}
		return list, nil
	}

	all, err := q.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	records, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*status.SyncRecord, len(records))
	for _, rec := range records {
		byID[rec.ArticleID] = rec
	}

	var out []*articles.Article
	for _, a := range all {
		if !f.Matches(a, byID[a.ID]) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
