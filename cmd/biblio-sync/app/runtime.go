package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	syncapp "github.com/stacklok/biblio-sync/internal/app"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

const targetFlag = "target"

// newRuntime builds the sync runtime of a one-shot command
func newRuntime(ctx context.Context, v *viper.Viper, opts ...syncapp.RuntimeOption) (*syncapp.Runtime, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	return syncapp.NewRuntime(ctx, cfg, opts...)
}

func addTargetFlag(cmd *cobra.Command, required bool) {
	usage := "Name of the sync target"
	if !required {
		usage += " (all targets when omitted)"
	}
	cmd.Flags().String(targetFlag, "", usage)
	if required {
		_ = cmd.MarkFlagRequired(targetFlag)
	}
}

// selectManagers returns the manager named by --target, or every manager when the flag is empty
func selectManagers(cmd *cobra.Command, rt *syncapp.Runtime) ([]pkgsync.Manager, error) {
	name, err := cmd.Flags().GetString(targetFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", targetFlag, err)
	}
	if name == "" {
		return rt.Managers, nil
	}
	m, err := rt.Manager(name)
	if err != nil {
		return nil, err
	}
	return []pkgsync.Manager{m}, nil
}

// withRuntime opens the runtime, runs fn and closes it
func withRuntime(
	cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, rt *syncapp.Runtime) error,
	opts ...syncapp.RuntimeOption,
) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, v, opts...)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
	}()
	return fn(ctx, rt)
}
