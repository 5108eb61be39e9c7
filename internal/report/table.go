package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/isoreach/internal/model"
)

// WriteSummaryTable prints the inside/outside table for the completed
// regions, followed by any region failures.
func WriteSummaryTable(out io.Writer, run *model.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tINSIDE\tOUTSIDE\tTOTAL\tPROPORTION INSIDE")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t-----\t-----------------")
	for _, row := range run.Summary() {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", row.Region, row.Inside, row.Outside, row.Total, row.ProportionLabel())
	}
	_ = w.Flush()

	failed := run.Failed()
	if len(failed) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FAILED REGION\tKIND\tERROR")
	for _, e := range failed {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Region, e.Kind, msg)
	}
	_ = w.Flush()
}
