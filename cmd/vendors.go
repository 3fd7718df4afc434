package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/config"
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/registry"
)

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Manage the known-supplier directory",
}

// -- vendors list --

var vendorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known suppliers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg, closeFn, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		q, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")
		vendors, err := reg.List(ctx, q, limit)
		if err != nil {
			return eris.Wrap(err, "vendors list")
		}
		if len(vendors) == 0 {
			fmt.Fprintln(os.Stderr, "No vendors found.")
			return nil
		}
		formatVendorsList(os.Stdout, vendors)
		return nil
	},
}

// -- vendors add --

var vendorsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a known supplier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg, closeFn, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		var in registry.VendorInput
		in.Name, _ = cmd.Flags().GetString("name")
		in.Phone, _ = cmd.Flags().GetString("phone")
		in.City, _ = cmd.Flags().GetString("city")
		in.Conditions, _ = cmd.Flags().GetStringSlice("conditions")

		rec, err := reg.Create(ctx, in)
		if err != nil {
			return eris.Wrap(err, "vendors add")
		}
		return writeJSON(os.Stdout, rec)
	},
}

// -- vendors remove --

var vendorsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a known supplier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("vendors remove: invalid id %q", args[0])
		}

		reg, closeFn, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := reg.Delete(ctx, id); err != nil {
			return eris.Wrap(err, "vendors remove")
		}
		zap.L().Info("vendor removed", zap.Int64("id", id))
		return nil
	},
}

// -- vendors import --

var vendorsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import suppliers from a YAML, CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		rows, err := registry.ReadFile(path)
		if err != nil {
			return err
		}

		reg, closeFn, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := reg.Import(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "vendors import")
		}

		zap.L().Info("import complete",
			zap.Int("created", res.Created),
			zap.Int("skipped", len(res.Skipped)),
			zap.String("file", path),
		)
		for _, s := range res.Skipped {
			fmt.Fprintf(os.Stderr, "row %d (%s): %v\n", s.Row, s.Phone, s.Err)
		}
		return nil
	},
}

func init() {
	vendorsListCmd.Flags().String("query", "", "match name, phone or city")
	vendorsListCmd.Flags().Int("limit", 50, "max number of vendors to display (1-200)")

	vendorsAddCmd.Flags().String("name", "", "supplier name (required)")
	vendorsAddCmd.Flags().String("phone", "", "supplier phone (required)")
	vendorsAddCmd.Flags().String("city", "", "supplier city")
	vendorsAddCmd.Flags().StringSlice("conditions", nil, "supported conditions")
	_ = vendorsAddCmd.MarkFlagRequired("name")
	_ = vendorsAddCmd.MarkFlagRequired("phone")

	vendorsImportCmd.Flags().String("file", "", "path to a .yaml, .csv or .xlsx file (required)")
	_ = vendorsImportCmd.MarkFlagRequired("file")

	vendorsCmd.AddCommand(vendorsListCmd)
	vendorsCmd.AddCommand(vendorsAddCmd)
	vendorsCmd.AddCommand(vendorsRemoveCmd)
	vendorsCmd.AddCommand(vendorsImportCmd)
	rootCmd.AddCommand(vendorsCmd)
}

// openRegistry opens the store and, when configured, the directory cache so
// vendor changes invalidate cached lookups.
func openRegistry(cmd *cobra.Command) (*registry.Registry, func(), error) {
	env, err := initBroker(cmd.Context(), cfg, config.ModeAdmin)
	if err != nil {
		return nil, nil, err
	}
	return env.Registry, env.Close, nil
}

// formatVendorsList writes a tabular list of vendors to out.
func formatVendorsList(out io.Writer, vendors []model.SupplierRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPHONE\tCITY\tCONDITIONS")
	for _, v := range vendors {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Phone, v.City, strings.Join(v.Conditions, ", "))
	}
	_ = w.Flush()
}
