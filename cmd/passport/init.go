package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the passport version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "passport", version)
			return err
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize passport storage",
		Long: `Init creates the configuration directory with a default config.yaml and
initializes the configured storage backend. Running it again is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := store.Detach(); err != nil {
				return fmt.Errorf("detach store: %w", err)
			}
			dataDir, err := a.resolveDataDir()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, map[string]string{
					"config_dir": a.configDir,
					"data_dir":   dataDir,
					"backend":    a.cfg.Backend,
				})
			}
			fmt.Fprintln(out, "Passport initialized successfully")
			fmt.Fprintln(out, "  config: ", a.configDir)
			fmt.Fprintln(out, "  data:   ", dataDir)
			fmt.Fprintln(out, "  backend:", a.cfg.Backend)
			return nil
		},
	}
}
