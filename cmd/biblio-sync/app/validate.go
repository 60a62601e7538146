package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "✓ Valid configuration")
			_, _ = fmt.Fprintf(out, "  Storage: %s\n", cfg.GetStorageType())
			for _, t := range cfg.Targets {
				state := "enabled"
				if !t.IsEnabled() {
					state = "disabled"
				}
				_, _ = fmt.Fprintf(out, "  Target %s: %s, every %s, batch %d (%s)\n",
					t.Name, t.Type, t.GetInterval(), t.GetBatch(), state)
			}
			return nil
		},
	}
}
