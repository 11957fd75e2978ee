package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/trace"
	"github.com/mesh-intelligence/passport/pkg/types"
)

func newTraceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Manage trace records",
		Long: `Trace records form the bill-of-materials tree of a product. Each record
names a material, its parent record (none for a root), supplier, origin and
compliance status.`,
	}
	cmd.AddCommand(
		newTraceAddCmd(a),
		newTraceGetCmd(a),
		newTraceListCmd(a),
		newTraceUpdateCmd(a),
		newTraceDeleteCmd(a),
		newTraceStatusCmd(a),
		newTraceTreeCmd(a),
		newTraceCheckCmd(a),
		newTraceHistoryCmd(a),
	)
	return cmd
}

// recordFlags are the editable fields of a trace record.
type recordFlags struct {
	id           string
	product      string
	materialID   string
	name         string
	materialType string
	parent       string
	quantity     float64
	unit         string
	tier         int
	supplier     string
	origin       string
	status       string
	conflict     bool
	recycled     bool
}

func (f *recordFlags) bind(fs *pflag.FlagSet, creating bool) {
	if creating {
		fs.StringVar(&f.id, "id", "", "trace ID (default: generated)")
		fs.StringVar(&f.product, "product", "", "product ID (required)")
	}
	fs.StringVar(&f.materialID, "material-id", "", "material or part number")
	fs.StringVar(&f.name, "name", "", "material name")
	fs.StringVar(&f.materialType, "type", string(types.MaterialRaw), "material type (Raw, Subcomponent, Assembly, Additive)")
	fs.StringVar(&f.parent, "parent", "", "parent trace ID (empty for a root)")
	fs.Float64Var(&f.quantity, "quantity", 0, "quantity")
	fs.StringVar(&f.unit, "unit", string(types.UnitKilogram), "quantity unit (kg or %)")
	fs.IntVar(&f.tier, "tier", 0, "supply chain tier (default: derived from the parent)")
	fs.StringVar(&f.supplier, "supplier", "", "supplier ID")
	fs.StringVar(&f.origin, "origin", "", "ISO 3166-1 alpha-2 origin country")
	fs.StringVar(&f.status, "status", string(types.StatusPending), "initial compliance status")
	fs.BoolVar(&f.conflict, "conflict-minerals", false, "record contains conflict minerals")
	fs.BoolVar(&f.recycled, "recycled", false, "record is recycled material")
}

// apply copies the flags set on the command line into rec. When all is true
// every flag is copied, defaults included.
func (f *recordFlags) apply(fs *pflag.FlagSet, rec *types.TraceRecord, all bool) error {
	set := func(name string) bool { return all || fs.Changed(name) }

	if set("id") {
		rec.TraceID = f.id
	}
	if set("product") {
		rec.ProductID = f.product
	}
	if set("material-id") {
		rec.MaterialID = f.materialID
	}
	if set("name") {
		rec.MaterialName = f.name
	}
	if set("type") {
		rec.MaterialType = types.MaterialType(f.materialType)
	}
	if set("parent") {
		rec.ParentTraceID = f.parent
	}
	if set("quantity") {
		rec.Quantity = f.quantity
	}
	if set("unit") {
		rec.QuantityUnit = types.QuantityUnit(f.unit)
	}
	if set("tier") {
		rec.Tier = f.tier
	}
	if set("supplier") {
		rec.SupplierID = f.supplier
	}
	if set("origin") {
		rec.OriginCountry = strings.ToUpper(f.origin)
	}
	if set("status") {
		s, err := types.ParseStatus(f.status)
		if err != nil {
			return fmt.Errorf("--status %q: %w", f.status, err)
		}
		rec.ComplianceStatus = s
	}
	if set("conflict-minerals") {
		rec.ConflictMinerals = f.conflict
	}
	if set("recycled") {
		rec.IsRecycled = f.recycled
	}
	return nil
}

func newTraceAddCmd(a *app) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a trace record",
		Example: `  passport trace add --product phone-1 --name "Aluminium housing" --type Subcomponent \
    --quantity 0.045 --origin NO --supplier sup-nordal
  passport trace add --product phone-1 --name Cobalt --parent <battery-id> --origin CD --conflict-minerals`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			var rec types.TraceRecord
			if err := f.apply(cmd.Flags(), &rec, true); err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				created, err := svc.Create(ctx, actor, rec)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), created)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created trace record %s (tier %d)\n", created.TraceID, created.Tier)
				return nil
			})
		},
	}
	f.bind(cmd.Flags(), true)
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTraceGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <trace-id>",
		Short: "Show a trace record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				rec, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				return printRecord(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func printRecord(w io.Writer, rec types.TraceRecord) error {
	parent := rec.ParentTraceID
	if parent == "" {
		parent = "(root)"
	}
	rows := [][]string{
		{"trace_id", rec.TraceID},
		{"product_id", rec.ProductID},
		{"material_id", rec.MaterialID},
		{"material_name", rec.MaterialName},
		{"material_type", string(rec.MaterialType)},
		{"parent_trace_id", parent},
		{"quantity", strconv.FormatFloat(rec.Quantity, 'f', -1, 64) + " " + string(rec.QuantityUnit)},
		{"tier", strconv.Itoa(rec.Tier)},
		{"supplier_id", rec.SupplierID},
		{"origin_country", rec.OriginCountry},
		{"compliance_status", string(rec.ComplianceStatus)},
		{"conflict_minerals", strconv.FormatBool(rec.ConflictMinerals)},
		{"recycled", strconv.FormatBool(rec.IsRecycled)},
		{"created_at", rec.CreatedAt.Format("2006-01-02 15:04:05")},
		{"last_updated_at", rec.LastUpdatedAt.Format("2006-01-02 15:04:05")},
	}
	return printTable(w, []string{"FIELD", "VALUE"}, rows)
}

func newTraceListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <product-id>",
		Short: "List the trace records of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want types.ComplianceStatus
			if status != "" {
				s, err := types.ParseStatus(status)
				if err != nil {
					return fmt.Errorf("--status %q: %w", status, err)
				}
				want = s
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				records, err := svc.ListByProduct(ctx, args[0])
				if err != nil {
					return err
				}
				if want != "" {
					kept := records[:0]
					for _, r := range records {
						if r.ComplianceStatus == want {
							kept = append(kept, r)
						}
					}
					records = kept
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), records)
				}
				return printRecordTable(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by compliance status")
	return cmd
}

func printRecordTable(w io.Writer, records []types.TraceRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No trace records found.")
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		parent := r.ParentTraceID
		if parent == "" {
			parent = "-"
		}
		rows = append(rows, []string{
			r.TraceID,
			truncate(r.MaterialName, 32),
			string(r.MaterialType),
			strconv.Itoa(r.Tier),
			string(r.ComplianceStatus),
			r.OriginCountry,
			parent,
		})
	}
	if err := printTable(w, []string{"ID", "NAME", "TYPE", "TIER", "STATUS", "ORIGIN", "PARENT"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Total: %d record(s)\n", len(records))
	return err
}

func newTraceUpdateCmd(a *app) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "update <trace-id>",
		Short: "Change fields of a trace record",
		Long: `Update changes only the fields given as flags. Moving a record under a new
parent re-derives the tier of the record and its descendants.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				rec, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if err := f.apply(cmd.Flags(), &rec, false); err != nil {
					return err
				}
				if cmd.Flags().Changed("parent") && !cmd.Flags().Changed("tier") {
					rec.Tier = 0
				}
				updated, err := svc.Update(ctx, actor, rec)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), updated)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated trace record %s\n", updated.TraceID)
				return nil
			})
		},
	}
	f.bind(cmd.Flags(), false)
	return cmd
}

func newTraceDeleteCmd(a *app) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "delete <trace-id>",
		Short: "Delete a trace record",
		Long:  "Delete removes a record. A record with children is only removed with --cascade, which removes its subtree too.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				removed, err := svc.Delete(ctx, args[0], cascade)
				if errors.Is(err, types.ErrHasChildren) {
					return fmt.Errorf("%w (use --cascade to delete the subtree)", err)
				}
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string][]string{"deleted": removed})
				}
				for _, id := range removed {
					fmt.Fprintln(cmd.OutOrStdout(), "Deleted", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also delete all descendants")
	return cmd
}

func newTraceStatusCmd(a *app) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "status <trace-id> <status>",
		Short: "Change the compliance status of a record",
		Long: `Status moves a record to Pending, Verified, Rejected or Invited. The move
must be allowed from the current status and for the acting --role; every
change is kept in the record's history.`,
		Example: "  passport trace status <id> verified --role verifier --note \"audit 2024-07\"",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			to, err := types.ParseStatus(args[1])
			if err != nil {
				return fmt.Errorf("status %q: %w", args[1], err)
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				rec, err := svc.TransitionStatus(ctx, args[0], to, actor, note)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", rec.TraceID, rec.ComplianceStatus)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "reason recorded with the change")
	return cmd
}

func newTraceTreeCmd(a *app) *cobra.Command {
	var (
		depth  int
		expand []string
	)
	cmd := &cobra.Command{
		Use:   "tree <product-id>",
		Short: "Show the bill-of-materials tree of a product",
		Long: `Tree prints the records of a product as a tree. Nodes deeper than --depth
are collapsed; --expand opens further nodes by ID. Records whose parent is
missing are listed after the tree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 0 {
				return userError(fmt.Errorf("--depth must not be negative, got %d", depth))
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				f, err := svc.Tree(ctx, args[0])
				if err != nil {
					return err
				}
				expanded := trace.DefaultExpanded(f, depth)
				for _, id := range expand {
					expanded.Expand(id)
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), f.Nested(expanded))
				}
				return trace.Render(cmd.OutOrStdout(), f, expanded)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "levels expanded by default")
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "additional node IDs to expand")
	return cmd
}

func newTraceCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <product-id>",
		Short: "Check a product's records for structural problems",
		Long: `Check looks for records whose parent is missing, whose tier does not follow
their parent's, and for parent cycles. It exits with status 1 when any is
found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				report, err := svc.Check(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					if err := printJSON(out, report); err != nil {
						return err
					}
				} else {
					printReport(out, report)
				}
				if !report.OK() {
					return userError(fmt.Errorf("product %s has structural problems", report.ProductID))
				}
				return nil
			})
		},
	}
}

func printReport(w io.Writer, r compliance.Report) {
	fmt.Fprintf(w, "Product %s: %d record(s)\n", r.ProductID, r.Records)
	if r.OK() {
		fmt.Fprintln(w, "No problems found.")
		return
	}
	for _, id := range r.Dangling {
		fmt.Fprintf(w, "  dangling parent: %s\n", id)
	}
	for _, id := range r.TierMismatches {
		fmt.Fprintf(w, "  tier mismatch:   %s\n", id)
	}
	if len(r.Cycle) > 0 {
		fmt.Fprintf(w, "  cycle:           %s\n", strings.Join(r.Cycle, " -> "))
	}
}

func newTraceHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <trace-id>",
		Short: "Show the status changes of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *compliance.Service, _ types.Store) error {
				changes, err := svc.History(ctx, args[0])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), changes)
				}
				if len(changes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No status changes.")
					return nil
				}
				rows := make([][]string, 0, len(changes))
				for _, c := range changes {
					rows = append(rows, []string{
						c.ChangedAt.Format("2006-01-02 15:04:05"),
						string(c.From),
						string(c.To),
						string(c.Actor),
						c.Note,
					})
				}
				return printTable(cmd.OutOrStdout(), []string{"WHEN", "FROM", "TO", "ACTOR", "NOTE"}, rows)
			})
		},
	}
}
