package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the stored summary of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := st.GetRunSummary(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		formatRunSummary(os.Stdout, sum)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("status", "", "filter by run status (running, complete, partial, failed)")
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tREGIONS\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			len(r.Regions),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunSummary writes the stored summary table of one run to out.
func formatRunSummary(out io.Writer, sum *store.RunSummary) {
	_, _ = fmt.Fprintf(out, "Run %s (%s, started %s)\n\n",
		sum.Run.ID, sum.Run.Status, sum.Run.StartedAt.Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tINSIDE\tOUTSIDE\tTOTAL\tPROPORTION INSIDE\tSTATIONS\tISOCHRONES")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t-----\t-----------------\t--------\t----------")
	var failed []store.RegionRecord
	for _, r := range sum.Regions {
		if r.Summary == nil {
			failed = append(failed, r)
			continue
		}
		s := r.Summary
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%d\t%d\n",
			s.Region, s.Inside, s.Outside, s.Total, s.ProportionLabel(), r.Stations, r.Isochrones)
	}
	_ = w.Flush()

	if len(failed) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FAILED REGION\tKIND\tERROR")
	for _, r := range failed {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Region, r.ErrorKind, r.Error)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
