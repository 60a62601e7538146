package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	syncapp "github.com/stacklok/biblio-sync/internal/app"
	"github.com/stacklok/biblio-sync/internal/status"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the queues and record statuses of every target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}
			return withRuntime(cmd, v, func(ctx context.Context, rt *syncapp.Runtime) error {
				managers, err := selectManagers(cmd, rt)
				if err != nil {
					return err
				}
				summaries, err := collectSummaries(ctx, managers)
				if err != nil {
					return err
				}
				if format == "json" {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(summaries)
				}
				return renderSummaries(cmd.OutOrStdout(), summaries)
			}, syncapp.WithoutMigration())
		},
	}
	addTargetFlag(cmd, false)
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func collectSummaries(ctx context.Context, managers []pkgsync.Manager) ([]*pkgsync.Summary, error) {
	summaries := make([]*pkgsync.Summary, 0, len(managers))
	for _, m := range managers {
		s, err := m.Summary(ctx)
		if err != nil {
			return nil, fmt.Errorf("target '%s': %w", m.Target(), err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func renderSummaries(out io.Writer, summaries []*pkgsync.Summary) error {
	table := tablewriter.NewWriter(out)
	table.Header("Target", "Type", "Last Update", "New", "Modified", "Retry", "Identify", "Pending",
		"Success", "Error", "Not Possible", "Last Error")
	for _, s := range summaries {
		row := []string{s.Target, s.Type, formatTime(s.Global.LastUpdateTime)}
		if s.Queues != nil {
			row = append(row,
				strconv.Itoa(s.Queues.New),
				strconv.Itoa(s.Queues.Modified),
				strconv.Itoa(s.Queues.Retry),
				strconv.Itoa(s.Queues.Identifying),
				strconv.Itoa(s.Queues.Pending),
			)
		} else {
			row = append(row, "-", "-", "-", "-", "-")
		}
		row = append(row,
			strconv.Itoa(s.Statuses[status.StatusSuccess]),
			strconv.Itoa(s.Statuses[status.StatusError]),
			strconv.Itoa(s.Statuses[status.StatusNotPossible]),
			s.Global.LastGlobalError,
		)
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render summary: %w", err)
		}
	}
	return table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
