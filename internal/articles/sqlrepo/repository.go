// Package sqlrepo provides an article repository stored in the sync database.
// It evaluates selection filters in SQL against the sync records of a target.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/db"
	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/internal/sync/state"
)

const (
	articlesTable   = "articles"
	categoriesTable = "article_categories"

	// statusExpr treats a missing sync record as unsubmitted
	statusExpr = "COALESCE(r.status, 'unsubmitted')"
)

// Repository stores articles as JSON documents with the columns needed for selection
type Repository struct {
	conn    *db.Connection
	builder sq.StatementBuilderType
}

var (
	_ articles.Repository = (*Repository)(nil)
	_ articles.Querier    = (*Repository)(nil)
)

// New creates a repository on an open, migrated connection
func New(conn *db.Connection) *Repository {
	return &Repository{
		conn:    conn,
		builder: conn.Dialect.Builder(),
	}
}

// Get returns the article with the given id
func (r *Repository) Get(ctx context.Context, id string) (*articles.Article, error) {
	query, args, err := r.builder.Select("document").
		From(articlesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var document string
	err = r.conn.DB.QueryRowContext(ctx, query, args...).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, articles.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %s: %w", id, err)
	}
	return decode(document)
}

// List returns every article ordered by modification time, then id
func (r *Repository) List(ctx context.Context) ([]*articles.Article, error) {
	return r.collect(ctx, r.builder.Select("a.document").
		From(articlesTable+" a").
		OrderBy("a.modified_at", "a.id"))
}

// Query evaluates filter against the sync records of target
func (r *Repository) Query(
	ctx context.Context, target string, filter articles.Filter, limit int,
) ([]*articles.Article, error) {
	q := r.builder.Select("a.document").
		From(articlesTable+" a").
		LeftJoin(state.RecordsTable+" r ON r.article_id = a.id AND r.target = ?", target)

	for _, cond := range conditions(filter) {
		q = q.Where(cond)
	}

	q = q.OrderBy("a.modified_at", "a.id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.collect(ctx, q)
}

// conditions translates a filter into SQL predicates with the same semantics as Filter.Matches
func conditions(f articles.Filter) []sq.Sqlizer {
	var conds []sq.Sqlizer

	if len(f.Statuses) > 0 {
		conds = append(conds, sq.Eq{statusExpr: statusStrings(f.Statuses)})
	}
	if len(f.ExcludeStatuses) > 0 {
		conds = append(conds, sq.NotEq{statusExpr: statusStrings(f.ExcludeStatuses)})
	}
	if f.SubmittedBefore != nil {
		conds = append(conds, sq.Lt{"r.submit_timestamp": f.SubmittedBefore.UnixMilli()})
	}
	if f.SubmittedAfter != nil {
		conds = append(conds, sq.Gt{"r.submit_timestamp": f.SubmittedAfter.UnixMilli()})
	}
	if f.ModifiedAfter != nil {
		conds = append(conds, sq.Gt{"a.modified_at": f.ModifiedAfter.UnixMilli()})
	}
	if f.Identified != nil {
		if *f.Identified {
			conds = append(conds, sq.NotEq{"r.identify_timestamp": nil})
		} else {
			conds = append(conds, sq.Eq{"r.identify_timestamp": nil})
		}
	}
	if f.RequireDOI {
		conds = append(conds, sq.NotEq{"a.doi": ""})
	}
	if len(f.Categories) > 0 {
		sub := sq.Select("1").
			From(categoriesTable + " c").
			Where("c.article_id = a.id").
			Where(sq.Eq{"c.category": f.Categories})
		conds = append(conds, sq.Expr("EXISTS (?)", sub))
	}
	return conds
}

func statusStrings(list []status.SyncStatus) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func (r *Repository) collect(ctx context.Context, q sq.SelectBuilder) ([]*articles.Article, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*articles.Article
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a, err := decode(document)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Put inserts or replaces an article and its categories.
// Modification times are stored with millisecond precision.
func (r *Repository) Put(ctx context.Context, a *articles.Article) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("article id is required")
	}

	c := *a
	c.ModifiedAt = c.ModifiedAt.UTC().Truncate(time.Millisecond)
	document, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to marshal article %s: %w", c.ID, err)
	}

	var published sql.NullInt64
	if c.PublishedAt != nil {
		published = sql.NullInt64{Int64: c.PublishedAt.UnixMilli(), Valid: true}
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := r.builder.Insert(articlesTable).
			Columns("id", "modified_at", "published_at", "title", "doi", "document").
			Values(c.ID, c.ModifiedAt.UnixMilli(), published, c.Title, c.DOI, string(document)).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				modified_at = excluded.modified_at,
				published_at = excluded.published_at,
				title = excluded.title,
				doi = excluded.doi,
				document = excluded.document`).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to store article %s: %w", c.ID, err)
		}

		query, args, err = r.builder.Delete(categoriesTable).Where(sq.Eq{"article_id": c.ID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear categories of article %s: %w", c.ID, err)
		}

		if len(c.Categories) == 0 {
			return nil
		}
		ins := r.builder.Insert(categoriesTable).Columns("article_id", "category")
		seen := make(map[string]bool, len(c.Categories))
		for _, category := range c.Categories {
			if seen[category] {
				continue
			}
			seen[category] = true
			ins = ins.Values(c.ID, category)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to store categories of article %s: %w", c.ID, err)
		}
		return nil
	})
}

// Delete removes an article. Deleting an unknown article is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	query, args, err := r.builder.Delete(articlesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.conn.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete article %s: %w", id, err)
	}
	return nil
}

// Import stores every article of the list
func (r *Repository) Import(ctx context.Context, list []*articles.Article) error {
	for _, a := range list {
		if err := r.Put(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func decode(document string) (*articles.Article, error) {
	var a articles.Article
	if err := json.Unmarshal([]byte(document), &a); err != nil {
		return nil, fmt.Errorf("failed to decode article: %w", err)
	}
	return &a, nil
}
