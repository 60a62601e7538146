package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/biblio-sync/database"
	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/articles/sqlrepo"
	"github.com/stacklok/biblio-sync/internal/db"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Load an article export into the articles table",
		Long: `Load an article export (JSON or YAML) into the articles table of the configured
database, replacing articles with the same id. Requires postgres or sqlite storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			list, err := articles.LoadFile(args[0])
			if err != nil {
				return err
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
				return fmt.Errorf("storage type '%s' keeps articles in articles.file, nothing to import into",
					cfg.GetStorageType())
			}
			defer func() {
				_ = conn.Close()
			}()

			if err := database.MigrateUp(conn); err != nil {
				return err
			}
			if err := sqlrepo.New(conn).Import(ctx, list); err != nil {
				return fmt.Errorf("failed to import articles: %w", err)
			}

			slog.Info("Imported articles", "file", args[0], "count", len(list))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d articles\n", len(list))
			return nil
		},
	}
}
