package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/parcabul/broker/internal/config"
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/store"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Inspect recorded customer requests",
	Long:  "Commands for listing recorded requests and showing a request with its matches.",
}

// -- requests list --

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent requests, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeAdmin); err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		reqs, err := st.ListRequests(ctx, store.RequestFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "requests list")
		}

		if len(reqs) == 0 {
			fmt.Fprintln(os.Stderr, "No requests found.")
			return nil
		}

		formatRequestsList(os.Stdout, reqs)
		return nil
	},
}

// -- requests show --

var requestsShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show a request and its recorded matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeAdmin); err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hdr, err := st.GetRequest(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "requests show")
		}
		matches, err := st.ListMatches(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "requests show")
		}

		return writeJSON(os.Stdout, model.RequestDetail{Request: *hdr, Matches: matches})
	},
}

func init() {
	requestsListCmd.Flags().Int("limit", 20, "max number of requests to display (1-100)")

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsShowCmd)
	rootCmd.AddCommand(requestsCmd)
}

// formatRequestsList writes a tabular list of requests to out.
func formatRequestsList(out io.Writer, reqs []model.RequestRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCUSTOMER\tVEHICLE\tPART\tMATCHES\tCREATED")
	for _, r := range reqs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s %s %d\t%s\t%d\t%s\n",
			r.RequestID,
			r.CustomerName,
			r.Criteria.Brand, r.Criteria.Model, r.Criteria.Year,
			r.Criteria.PartCode,
			r.MatchCount,
			r.CreatedAt.Local().Format(time.DateTime),
		)
	}
	_ = w.Flush()
}
