package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/db"
	"github.com/stacklok/biblio-sync/internal/status"
)

const (
	// RecordsTable holds one row per article and target
	RecordsTable = "article_sync_records"

	// GlobalTable holds one row per target
	GlobalTable = "target_sync_state"
)

var recordColumns = []string{
	"article_id", "status", "external_id", "submit_timestamp", "identify_timestamp", "last_error",
}

// dbStore keeps the state of one target in SQL tables. Timestamps are stored
// as unix milliseconds so the same schema works on PostgreSQL and SQLite.
type dbStore struct {
	target  string
	conn    *db.Connection
	builder sq.StatementBuilderType
	clock   clock.PassiveClock
}

// NewDBStore creates a store backed by the given connection
func NewDBStore(conn *db.Connection, target string, clk clock.PassiveClock) (Store, error) {
	if conn == nil || conn.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if target == "" {
		return nil, fmt.Errorf("target name is required")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &dbStore{
		target:  target,
		conn:    conn,
		builder: conn.Dialect.Builder(),
		clock:   clk,
	}, nil
}

func (s *dbStore) Target() string {
	return s.target
}

// ToMillis converts an optional time to a nullable unix millisecond value
func ToMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// FromMillis converts a nullable unix millisecond value to an optional UTC time
func FromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanRecord reads a row selected with the record columns
func ScanRecord(row rowScanner) (*status.SyncRecord, error) {
	var (
		rec              status.SyncRecord
		statusValue      string
		submit, identify sql.NullInt64
	)
	if err := row.Scan(&rec.ArticleID, &statusValue, &rec.ExternalID, &submit, &identify, &rec.LastError); err != nil {
		return nil, err
	}
	rec.Status = status.ParseSyncStatus(statusValue)
	rec.SubmitTimestamp = FromMillis(submit)
	rec.IdentifyTimestamp = FromMillis(identify)
	return &rec, nil
}

func (s *dbStore) selectRecord(articleID string) sq.SelectBuilder {
	q := s.builder.Select(recordColumns...).
		From(RecordsTable).
		Where(sq.Eq{"target": s.target, "article_id": articleID})
	if s.conn.Dialect == db.Postgres {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (s *dbStore) Get(ctx context.Context, articleID string) (*status.SyncRecord, error) {
	query, args, err := s.builder.Select(recordColumns...).
		From(RecordsTable).
		Where(sq.Eq{"target": s.target, "article_id": articleID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rec, err := ScanRecord(s.conn.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return status.NewSyncRecord(articleID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync record %s for target '%s': %w", articleID, s.target, err)
	}
	return rec, nil
}

func (s *dbStore) Set(ctx context.Context, articleID string, update status.RecordUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := s.selectRecord(articleID).ToSql()
		if err != nil {
			return err
		}

		rec, err := ScanRecord(tx.QueryRowContext(ctx, query, args...))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			rec = status.NewSyncRecord(articleID)
		case err != nil:
			return fmt.Errorf("failed to read sync record %s: %w", articleID, err)
		}

		update.Apply(rec)

		if rec.IsZero() {
			query, args, err = s.builder.Delete(RecordsTable).
				Where(sq.Eq{"target": s.target, "article_id": articleID}).
				ToSql()
		} else {
			query, args, err = s.builder.Insert(RecordsTable).
				Columns(append([]string{"target"}, recordColumns...)...).
				Values(s.target, rec.ArticleID, string(rec.Status), rec.ExternalID,
					ToMillis(rec.SubmitTimestamp), ToMillis(rec.IdentifyTimestamp), rec.LastError).
				Suffix(`ON CONFLICT (target, article_id) DO UPDATE SET
					status = excluded.status,
					external_id = excluded.external_id,
					submit_timestamp = excluded.submit_timestamp,
					identify_timestamp = excluded.identify_timestamp,
					last_error = excluded.last_error`).
				ToSql()
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to write sync record %s: %w", articleID, err)
		}
		return nil
	})
}

func (s *dbStore) ResetAll(ctx context.Context, keepExternalID bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if keepExternalID {
			query, args, err := s.builder.Update(RecordsTable).
				Set("status", string(status.StatusUnsubmitted)).
				Set("submit_timestamp", nil).
				Set("identify_timestamp", nil).
				Set("last_error", "").
				Where(sq.Eq{"target": s.target}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to reset sync records: %w", err)
			}
		}

		del := s.builder.Delete(RecordsTable).Where(sq.Eq{"target": s.target})
		if keepExternalID {
			del = del.Where(sq.Eq{"external_id": ""})
		}
		query, args, err := del.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete sync records: %w", err)
		}
		return nil
	})
}

func (s *dbStore) List(ctx context.Context) ([]*status.SyncRecord, error) {
	query, args, err := s.builder.Select(recordColumns...).
		From(RecordsTable).
		Where(sq.Eq{"target": s.target}).
		OrderBy("article_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records for target '%s': %w", s.target, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*status.SyncRecord
	for rows.Next() {
		rec, err := ScanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *dbStore) readGlobal(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (*status.GlobalState, error) {
	query, args, err := s.builder.
		Select("last_update_time", "last_modified_check_time", "last_global_error").
		From(GlobalTable).
		Where(sq.Eq{"target": s.target}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		g                       status.GlobalState
		lastUpdate, lastChecked sql.NullInt64
	)
	if err := q.QueryRowContext(ctx, query, args...).Scan(&lastUpdate, &lastChecked, &g.LastGlobalError); err != nil {
		return nil, err
	}
	g.LastUpdateTime = FromMillis(lastUpdate)
	if checked := FromMillis(lastChecked); checked != nil {
		g.LastModifiedCheckTime = *checked
	}
	return &g, nil
}

func (s *dbStore) writeGlobal(ctx context.Context, tx *sql.Tx, g *status.GlobalState) error {
	checked := g.LastModifiedCheckTime
	query, args, err := s.builder.Insert(GlobalTable).
		Columns("target", "last_update_time", "last_modified_check_time", "last_global_error").
		Values(s.target, ToMillis(g.LastUpdateTime), ToMillis(&checked), g.LastGlobalError).
		Suffix(`ON CONFLICT (target) DO UPDATE SET
			last_update_time = excluded.last_update_time,
			last_modified_check_time = excluded.last_modified_check_time,
			last_global_error = excluded.last_global_error`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write global state for target '%s': %w", s.target, err)
	}
	return nil
}

// loadOrSeedGlobal reads the global state inside tx, creating it when absent
func (s *dbStore) loadOrSeedGlobal(ctx context.Context, tx *sql.Tx) (*status.GlobalState, error) {
	g, err := s.readGlobal(ctx, tx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		g = &status.GlobalState{}
	case err != nil:
		return nil, fmt.Errorf("failed to read global state for target '%s': %w", s.target, err)
	}
	if !g.LastModifiedCheckTime.IsZero() {
		return g, nil
	}

	g.LastModifiedCheckTime = s.clock.Now().UTC()
	if err := s.writeGlobal(ctx, tx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *dbStore) GetGlobal(ctx context.Context) (*status.GlobalState, error) {
	g, err := s.readGlobal(ctx, s.conn.DB)
	if err == nil && !g.LastModifiedCheckTime.IsZero() {
		return g, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read global state for target '%s': %w", s.target, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		g, err = s.loadOrSeedGlobal(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *dbStore) SetGlobal(ctx context.Context, update status.GlobalUpdate) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		g, err := s.loadOrSeedGlobal(ctx, tx)
		if err != nil {
			return err
		}
		update.Apply(g)
		return s.writeGlobal(ctx, tx, g)
	})
}

func (s *dbStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
