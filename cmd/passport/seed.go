package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/seed"
	"github.com/mesh-intelligence/passport/pkg/types"
)

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load suppliers and trace records from a fixture",
		Long: `Seed loads a YAML fixture of suppliers and trace records. Without --file it
loads the built-in demo product "demo-phone". Entries whose ID already
exists are skipped, so seeding twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := readFixture(file)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				res, err := seed.Load(ctx, svc, fixture)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d supplier(s) and %d record(s), skipped %d existing\n",
					res.Suppliers, res.Records, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file (default: built-in demo)")
	return cmd
}

func readFixture(path string) (seed.Fixture, error) {
	if path == "" {
		return seed.Demo()
	}
	f, err := os.Open(path)
	if err != nil {
		return seed.Fixture{}, userError(fmt.Errorf("open fixture: %w", err))
	}
	defer f.Close()

	fixture, err := seed.Decode(f)
	if err != nil {
		return seed.Fixture{}, userError(err)
	}
	return fixture, nil
}
