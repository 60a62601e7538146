// Package database provides database migration tooling.
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/stacklok/biblio-sync/internal/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsFromSource returns a migration source driver from the embedded migrations.
func migrationsFromSource() (source.Driver, error) {
	return iofs.New(migrationsFS, "migrations")
}

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
}

// NewMigrator returns a migration instance running on an open connection.
// The migrator shares the connection and must not be closed independently of it.
func NewMigrator(conn *db.Connection) (Migrator, error) {
	if conn == nil || conn.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	src, err := migrationsFromSource()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	var driver migratedb.Driver
	switch conn.Dialect {
	case db.Postgres:
		driver, err = migratepgx.WithInstance(conn.DB, &migratepgx.Config{})
	case db.SQLite:
		driver, err = migratesqlite.WithInstance(conn.DB, &migratesqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", conn.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", conn.Dialect, err)
	}

	return migrate.NewWithInstance("iofs", src, string(conn.Dialect), driver)
}

// MigrateUp applies every pending migration. An up to date schema is not an error.
func MigrateUp(conn *db.Connection) error {
	m, err := NewMigrator(conn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	slog.Info("Database schema is up to date", "dialect", conn.Dialect, "version", version, "dirty", dirty)
	return nil
}

// MigrateDown reverts every applied migration
func MigrateDown(conn *db.Connection) error {
	m, err := NewMigrator(conn)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}
	return nil
}
