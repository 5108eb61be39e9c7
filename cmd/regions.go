package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/isoreach/internal/model"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the configured regions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatRegions(os.Stdout, cfg.RegionModels())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}

// formatRegions writes a table of regions to out.
func formatRegions(out io.Writer, regions []model.Region) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tQUERY\tBBOX\tBUILDINGS\tEPSG\tEXCLUDED")
	_, _ = fmt.Fprintln(w, "----\t-----\t----\t---------\t----\t--------")
	for _, r := range regions {
		box := "geocode"
		if r.BBox != nil {
			box = fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", r.BBox.MinLon, r.BBox.MinLat, r.BBox.MaxLon, r.BBox.MaxLat)
		}
		epsg := "prj"
		if r.SourceEPSG != 0 {
			epsg = fmt.Sprintf("%d", r.SourceEPSG)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Query, box, r.Buildings, epsg, strings.Join(r.ExcludedStations, "; "))
	}
	_ = w.Flush()
}
