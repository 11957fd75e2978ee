package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/pkg/types"
)

func newSupplierCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supplier",
		Short: "Manage suppliers",
	}
	cmd.AddCommand(newSupplierAddCmd(a), newSupplierListCmd(a))
	return cmd
}

func newSupplierAddCmd(a *app) *cobra.Command {
	var sup types.Supplier
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add a supplier",
		Example: `  passport supplier add --id sup-nordal --name "Nordal Aluminium AS" --email compliance@nordal.example --country NO`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup.Country = strings.ToUpper(sup.Country)
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				created, err := svc.AddSupplier(ctx, sup)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), created)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created supplier %s\n", created.SupplierID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sup.SupplierID, "id", "", "supplier ID (default: generated)")
	cmd.Flags().StringVar(&sup.Name, "name", "", "company name (required)")
	cmd.Flags().StringVar(&sup.ContactEmail, "email", "", "contact email")
	cmd.Flags().StringVar(&sup.Country, "country", "", "ISO 3166-1 alpha-2 country code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSupplierListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List suppliers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				sups, err := svc.ListSuppliers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return printJSON(out, sups)
				}
				if len(sups) == 0 {
					fmt.Fprintln(out, "No suppliers found.")
					return nil
				}
				rows := make([][]string, 0, len(sups))
				for _, s := range sups {
					rows = append(rows, []string{s.SupplierID, truncate(s.Name, 40), s.Country, s.ContactEmail})
				}
				if err := printTable(out, []string{"ID", "NAME", "COUNTRY", "EMAIL"}, rows); err != nil {
					return err
				}
				fmt.Fprintf(out, "Total: %d supplier(s)\n", len(sups))
				return nil
			})
		},
	}
}
