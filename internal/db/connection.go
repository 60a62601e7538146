// Package db contains code for connecting to the database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // Needs to be imported for Postgres driver
	_ "modernc.org/sqlite"             // Needs to be imported for SQLite driver

	"github.com/stacklok/biblio-sync/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultSSLMode         = "require"
	defaultConnectTimeout  = 10 * time.Second
	defaultConnectWindow   = time.Minute
)

// Dialect identifies the SQL flavour of a connection
type Dialect string

const (
	// Postgres is PostgreSQL through the pgx stdlib driver
	Postgres Dialect = "postgres"

	// SQLite is SQLite through the pure Go modernc driver
	SQLite Dialect = "sqlite"
)

// Builder returns a statement builder using the placeholder style of the dialect
func (d Dialect) Builder() sq.StatementBuilderType {
	if d == Postgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// Connection wraps the database handle and its dialect
type Connection struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open connects to the database selected by the storage configuration.
// File storage has no database and yields a nil connection.
func Open(ctx context.Context, cfg *config.Config) (*Connection, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypePostgres:
		return NewConnection(ctx, cfg.Database)
	case config.StorageTypeSQLite:
		return NewSQLiteConnection(ctx, cfg.GetSQLitePath())
	default:
		return nil, nil
	}
}

// NewConnection creates a new PostgreSQL connection from the provided configuration.
// The first ping is retried with exponential backoff so the service can start
// before the database is ready.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*Connection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	// Set defaults for optional fields
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = defaultMaxOpenConns
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = defaultMaxIdleConns
	}

	connMaxLifetime := defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		connMaxLifetime = duration
	}

	password, err := cfg.GetPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to get database password: %w", err)
	}

	// Note: password is not URL-escaped here because pgx driver handles it directly
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		password,
		cfg.Database,
		sslMode,
		int(defaultConnectTimeout.Seconds()),
	)

	conn, err := openPostgres(ctx, connStr, maxOpenConns, maxIdleConns, connMaxLifetime)
	if err != nil {
		return nil, err
	}

	slog.Info("Database connection established",
		"user", cfg.User,
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database)

	return conn, nil
}

// NewConnectionFromURL connects to PostgreSQL using a connection URL with pool defaults
func NewConnectionFromURL(ctx context.Context, connStr string) (*Connection, error) {
	return openPostgres(ctx, connStr, defaultMaxOpenConns, defaultMaxIdleConns, defaultConnMaxLifetime)
}

func openPostgres(
	ctx context.Context, connStr string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration,
) (*Connection, error) {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := pingWithRetry(ctx, sqlDB); err != nil {
		if closeErr := sqlDB.Close(); closeErr != nil {
			slog.Error("Failed to close database connection after ping failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{DB: sqlDB, Dialect: Postgres}, nil
}

// NewSQLiteConnection opens (and creates if needed) a SQLite database file
func NewSQLiteConnection(ctx context.Context, path string) (*Connection, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	slog.Info("SQLite database opened", "path", path)
	return &Connection{DB: sqlDB, Dialect: SQLite}, nil
}

func pingWithRetry(ctx context.Context, sqlDB *sql.DB) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := sqlDB.PingContext(ctx); err != nil {
			slog.Warn("Database not reachable yet", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(defaultConnectWindow))
	return err
}

// Close closes the database connection
func (c *Connection) Close() error {
	if c != nil && c.DB != nil {
		slog.Info("Closing database connection")
		return c.DB.Close()
	}
	return nil
}

// Ping verifies the database connection is still alive
func (c *Connection) Ping(ctx context.Context) error {
	if c != nil && c.DB != nil {
		return c.DB.PingContext(ctx)
	}
	return fmt.Errorf("database connection is nil")
}
