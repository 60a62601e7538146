package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stacklok/biblio-sync/internal/db"
)

// PostgresImageEnv overrides the image used by SetupPostgresDB
const PostgresImageEnv = "BIBLIO_SYNC_TEST_POSTGRES_IMAGE"

const defaultPostgresImage = "postgres:16-alpine"

type silentLogger struct{}

func (silentLogger) Printf(string, ...any) {}

var _ tclog.Logger = silentLogger{}

// SetupPostgresDB starts a throwaway Postgres container and returns a
// connection to its migrated schema. The container is removed when the
// test ends. Skipped in -short mode.
func SetupPostgresDB(t *testing.T) *db.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	image := os.Getenv(PostgresImageEnv)
	if image == "" {
		image = defaultPostgresImage
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("biblio_sync"),
		postgres.WithUsername("biblio"),
		postgres.WithPassword("biblio"),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(silentLogger{}),
	)
	tc.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	return migrated(t, conn)
}

// SetupSQLiteDB opens a migrated SQLite database in a temporary directory
func SetupSQLiteDB(t *testing.T) *db.Connection {
	t.Helper()

	conn, err := db.NewSQLiteConnection(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	return migrated(t, conn)
}

// migrated applies every migration, rolls them all back and applies them
// again, so each down script runs at least once per test database.
func migrated(t *testing.T, conn *db.Connection) *db.Connection {
	t.Helper()
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, MigrateUp(conn))
	require.NoError(t, MigrateDown(conn))
	require.NoError(t, MigrateUp(conn))
	return conn
}
