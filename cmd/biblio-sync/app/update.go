package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	syncapp "github.com/stacklok/biblio-sync/internal/app"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

func newUpdateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one sync tick",
		Long: `Run one sync tick for a target, or for every configured target.
Disabled targets are updated too when named explicitly. Targets talk to
independent registries, so up to --parallel of them are updated at once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, v, func(ctx context.Context, rt *syncapp.Runtime) error {
				managers, err := selectManagers(cmd, rt)
				if err != nil {
					return err
				}
				parallel, _ := cmd.Flags().GetInt("parallel")
				return runUpdate(ctx, cmd.OutOrStdout(), managers, parallel)
			})
		},
	}
	addTargetFlag(cmd, false)
	cmd.Flags().Int("parallel", 1, "Maximum number of targets updated concurrently")
	return cmd
}

func runUpdate(ctx context.Context, out io.Writer, managers []pkgsync.Manager, parallel int) error {
	reports := make([]*pkgsync.TickReport, len(managers))
	errs := make([]error, len(managers))

	// A failed target must not cancel the others, so workers always return nil
	// and failures are collected per target.
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))
	for i, m := range managers {
		g.Go(func() error {
			report, err := m.DoUpdate(ctx)
			reports[i] = report
			if err != nil {
				slog.Error("Tick failed", "target", m.Target(), "error", err)
				errs[i] = fmt.Errorf("target '%s': %w", m.Target(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := renderReports(out, slices.DeleteFunc(reports, func(r *pkgsync.TickReport) bool { return r == nil })); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func renderReports(out io.Writer, reports []*pkgsync.TickReport) error {
	table := tablewriter.NewWriter(out)
	table.Header("Target", "Outcome", "Modified", "Checked", "Submitted", "Identified", "Failed", "Error")
	for _, r := range reports {
		err := table.Append([]string{
			r.Target,
			r.Outcome(),
			strconv.Itoa(r.Modified),
			strconv.Itoa(r.Checked),
			strconv.Itoa(r.Submitted),
			strconv.Itoa(r.Identified),
			strconv.Itoa(r.Failed),
			r.Error,
		})
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}
	return table.Render()
}

func newMarkModifiedCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark-modified",
		Short: "Flag every synchronized article of a target for resubmission",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, v, func(ctx context.Context, rt *syncapp.Runtime) error {
				managers, err := selectManagers(cmd, rt)
				if err != nil {
					return err
				}
				for _, m := range managers {
					if err := m.MarkAllModified(ctx); err != nil {
						return fmt.Errorf("target '%s': %w", m.Target(), err)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Marked all articles of %s as modified\n", m.Target())
				}
				return nil
			})
		},
	}
	addTargetFlag(cmd, true)
	return cmd
}

func newResetCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the sync state of every article of a target",
		Long: `Return every sync record of a target to unsubmitted. Registry identifiers are
cleared too unless --keep-external-id is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keep, err := cmd.Flags().GetBool("keep-external-id")
			if err != nil {
				return fmt.Errorf("failed to get keep-external-id flag: %w", err)
			}
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return fmt.Errorf("failed to get yes flag: %w", err)
			}

			return withRuntime(cmd, v, func(ctx context.Context, rt *syncapp.Runtime) error {
				managers, err := selectManagers(cmd, rt)
				if err != nil {
					return err
				}
				for _, m := range managers {
					prompt := fmt.Sprintf("This will reset the sync state of every article of %s. Continue?", m.Target())
					if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
						return fmt.Errorf("reset cancelled by user")
					}
					if err := m.ResetAll(ctx, keep); err != nil {
						return fmt.Errorf("target '%s': %w", m.Target(), err)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reset sync state of %s\n", m.Target())
				}
				return nil
			})
		},
	}
	addTargetFlag(cmd, true)
	cmd.Flags().Bool("keep-external-id", false, "Keep the registry identifiers of the articles")
	cmd.Flags().BoolP("yes", "y", false, "Answer yes to all questions")
	return cmd
}
