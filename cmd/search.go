package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/parcabul/broker/internal/config"
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/pipeline"
)

// -- search --

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the catalog and print ranked matches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in, err := searchInputFromFlags(cmd.Flags())
		if err != nil {
			return err
		}

		env, err := initBroker(ctx, cfg, config.ModeSearch)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Search(ctx, in)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, res)
		}
		formatSummary(os.Stdout, res.Summary)
		formatMatches(os.Stdout, res.Matches)
		return nil
	},
}

// -- submit --

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a customer request and print the suppliers to contact",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in, err := submitInputFromFlags(cmd.Flags())
		if err != nil {
			return err
		}

		env, err := initBroker(ctx, cfg, config.ModeSearch)
		if err != nil {
			return err
		}
		defer env.Close()

		sub, err := env.Pipeline.Submit(ctx, in)
		if err != nil {
			return eris.Wrap(err, "submit")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, sub)
		}
		fmt.Fprintf(os.Stdout, "Request %s recorded, %d supplier(s) to contact.\n\n", sub.Request.RequestID, len(sub.Recipients))
		formatRecipients(os.Stdout, sub.Recipients)
		return nil
	},
}

func addSearchFlags(fs *pflag.FlagSet) {
	fs.String("brand", "", "vehicle brand (required)")
	fs.String("model", "", "vehicle model (required)")
	fs.Int("year", 0, "model year (required)")
	fs.String("part-code", "", "OEM or part code (required)")
	fs.String("city", "", "only matches located in this city")
	fs.String("condition", "", "only matches in this condition (sıfır, çıkma, yenilenmiş)")
	fs.Float64("min-price", 0, "lower price bound")
	fs.Float64("max-price", 0, "upper price bound")
	fs.Bool("json", false, "print JSON instead of a table")
}

func init() {
	addSearchFlags(searchCmd.Flags())

	addSearchFlags(submitCmd.Flags())
	submitCmd.Flags().String("customer-name", "", "customer name (required)")
	submitCmd.Flags().String("customer-phone", "", "customer phone (required)")
	submitCmd.Flags().StringSlice("recipients", nil, "only contact these supplier phones")
	submitCmd.Flags().Bool("only-known", false, "only contact suppliers in the directory")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(submitCmd)
}

// searchInputFromFlags builds a search input. Optional filters are set only
// when their flag was given, so an explicit zero bound is kept.
func searchInputFromFlags(fs *pflag.FlagSet) (pipeline.SearchInput, error) {
	var in pipeline.SearchInput
	var err error
	if in.Brand, err = fs.GetString("brand"); err != nil {
		return in, eris.Wrap(err, "search flags")
	}
	if in.Model, err = fs.GetString("model"); err != nil {
		return in, eris.Wrap(err, "search flags")
	}
	if in.Year, err = fs.GetInt("year"); err != nil {
		return in, eris.Wrap(err, "search flags")
	}
	if in.PartCode, err = fs.GetString("part-code"); err != nil {
		return in, eris.Wrap(err, "search flags")
	}
	if fs.Changed("city") {
		v, _ := fs.GetString("city")
		in.City = &v
	}
	if fs.Changed("condition") {
		v, _ := fs.GetString("condition")
		in.Condition = &v
	}
	if fs.Changed("min-price") {
		v, _ := fs.GetFloat64("min-price")
		in.MinPrice = &v
	}
	if fs.Changed("max-price") {
		v, _ := fs.GetFloat64("max-price")
		in.MaxPrice = &v
	}
	return in, nil
}

func submitInputFromFlags(fs *pflag.FlagSet) (pipeline.SubmitInput, error) {
	search, err := searchInputFromFlags(fs)
	if err != nil {
		return pipeline.SubmitInput{}, err
	}
	in := pipeline.SubmitInput{SearchInput: search}
	in.CustomerName, _ = fs.GetString("customer-name")
	in.CustomerPhone, _ = fs.GetString("customer-phone")
	in.OnlyKnownSuppliers, _ = fs.GetBool("only-known")
	if fs.Changed("recipients") {
		in.RecipientPhones, _ = fs.GetStringSlice("recipients")
		if in.RecipientPhones == nil {
			in.RecipientPhones = []string{}
		}
	}
	return in, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// formatSummary writes the facet summary of a search.
func formatSummary(out io.Writer, s model.Summary) {
	_, _ = fmt.Fprintf(out, "Matches: %d (%d known, %d unknown)\n", s.Total, s.Suppliers.Known, s.Suppliers.Unknown)
	_, _ = fmt.Fprintf(out, "Price:   min %s  max %s  avg %s %s\n\n",
		formatPrice(s.Price.Min), formatPrice(s.Price.Max), formatPrice(s.Price.Avg), s.Currency)
}

// formatMatches writes ranked matches as a table.
func formatMatches(out io.Writer, matches []model.EnrichedMatch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSUPPLIER\tPHONE\tCITY\tCONDITION\tPRICE\tKNOWN")
	for i, m := range matches {
		name := m.SupplierName
		if m.Supplier != nil && m.Supplier.Name != "" {
			name = m.Supplier.Name
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
			i+1, name, m.NormalizedPhone, m.ResolvedCity, m.Condition, formatPrice(m.Price.Ptr()), m.SupplierKnown)
	}
	_ = w.Flush()
}

// formatRecipients writes the contact list of a submission.
func formatRecipients(out io.Writer, recipients []pipeline.Recipient) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SUPPLIER\tPHONE\tPRICE\tLINK")
	for _, r := range recipients {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.SupplierName, r.Phone, formatPrice(r.Price), r.Link)
	}
	_ = w.Flush()
}
