package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/biblio-sync/database"
	"github.com/stacklok/biblio-sync/internal/db"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the schema up to date.
The connection parameters are read from the storage section of the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, v, func(m database.Migrator) error {
				numSteps, err := cmd.Flags().GetUint("num-steps")
				if err != nil {
					return fmt.Errorf("failed to get num-steps flag: %w", err)
				}
				if err := executeMigrate(m, numSteps, true); err != nil {
					return err
				}
				displayMigrationVersion(m)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  biblio-sync migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all sync state)
  biblio-sync migrate down --config config.yaml --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			numSteps, err := cmd.Flags().GetUint("num-steps")
			if err != nil {
				return fmt.Errorf("failed to get num-steps flag: %w", err)
			}
			if err := confirmMigrateDown(cmd, numSteps); err != nil {
				return err
			}
			return withMigrator(cmd, v, func(m database.Migrator) error {
				if err := executeMigrate(m, numSteps, false); err != nil {
					return err
				}
				displayMigrationVersion(m)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens the configured database and runs fn with a migrator on it
func withMigrator(cmd *cobra.Command, v *viper.Viper, fn func(m database.Migrator) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if conn == nil {
		return fmt.Errorf("storage type '%s' has no database to migrate", cfg.GetStorageType())
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
		}
	}()

	m, err := database.NewMigrator(conn)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	return fn(m)
}

func confirmMigrateDown(cmd *cobra.Command, numSteps uint) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}

	var prompt string
	if numSteps == 0 {
		prompt = "WARNING: This will migrate down ALL steps and remove every sync record. Continue?"
	} else {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}

	if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

// executeMigrate moves the schema up or down by numSteps, or all the way when numSteps is 0
func executeMigrate(m database.Migrator, numSteps uint, up bool) error {
	if numSteps > math.MaxInt {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}
	steps := int(numSteps) // #nosec G115 -- overflow checked above

	var err error
	switch {
	case numSteps == 0 && up:
		slog.Info("Applying database migrations")
		err = m.Up()
	case numSteps == 0:
		slog.Warn("Migrating down all steps - this will remove all schema!")
		err = m.Down()
	case up:
		slog.Info("Applying database migrations", "steps", numSteps)
		err = m.Steps(steps)
	default:
		slog.Info("Reverting database migrations", "steps", numSteps)
		err = m.Steps(-steps)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No migrations to apply")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Migration completed successfully")
	return nil
}

func displayMigrationVersion(m database.Migrator) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("Database schema has been completely removed")
	case err != nil:
		slog.Warn("Failed to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state, manual intervention may be required", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}
