package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/pipeline"
	"github.com/sells-group/isoreach/internal/stations"
)

var stationsRegion string

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Resolve a region and print its filtered railway stations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		region, err := findRegion(stationsRegion)
		if err != nil {
			return err
		}

		exclusions, err := stations.LoadExclusionFile(cfg.Stations.ExclusionsFile)
		if err != nil {
			return err
		}

		runner := pipeline.NewRunner(pipeline.Deps{
			Resolver:   newGeocoder(),
			Stations:   newStationSource(),
			Exclusions: exclusions,
		})
		box, res, err := runner.Stations(ctx, region)
		if err != nil {
			return eris.Wrap(err, "stations")
		}

		fmt.Fprintf(os.Stderr, "bbox %.4f,%.4f,%.4f,%.4f: %d stations, %d unnamed, %d excluded\n",
			box.MinLon, box.MinLat, box.MaxLon, box.MaxLat, len(res.Stations), res.Unnamed, len(res.Excluded))
		formatStations(os.Stdout, res.Stations)
		return nil
	},
}

func init() {
	stationsCmd.Flags().StringVar(&stationsRegion, "region", "", "configured region name")
	_ = stationsCmd.MarkFlagRequired("region")
	rootCmd.AddCommand(stationsCmd)
}

// formatStations writes a table of stations to out.
func formatStations(out io.Writer, list []model.Station) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OSM_ID\tNAME\tLON\tLAT")
	_, _ = fmt.Fprintln(w, "------\t----\t---\t---")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.6f\t%.6f\n", s.ID, s.Name, s.Location.Lon(), s.Location.Lat())
	}
	_ = w.Flush()
}
