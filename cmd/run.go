package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/report"
)

var (
	runRegions  []string
	runOutput   string
	runNoStore  bool
	runFailFast bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for the configured regions",
	Long: "Resolves every region, fetches its stations and isochrones, loads the cadastre, " +
		"classifies buildings and measures station distances. Prints the summary table and " +
		"writes the export artifacts. Exits non-zero if any region failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		regions, err := selectRegions(cfg.RegionModels(), runRegions)
		if err != nil {
			return err
		}

		env, err := initRunEnv(ctx, !runNoStore, runFailFast)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Runner.Run(ctx, regions)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		report.WriteSummaryTable(os.Stdout, result)

		dir := runOutput
		if dir == "" {
			dir = cfg.Output.Dir
		}
		exporter := &report.Exporter{
			Dir:            dir,
			Formats:        cfg.Output.Formats,
			HistogramBinKm: cfg.Output.HistogramBinKm,
		}
		files, err := exporter.Export(result)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		zap.L().Info("artifacts written", zap.String("run_id", result.ID), zap.Int("files", len(files)))
		for _, f := range files {
			fmt.Fprintln(os.Stderr, f)
		}

		if failed := result.Failed(); len(failed) > 0 {
			return eris.Errorf("%d of %d regions failed", len(failed), len(result.Order))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runRegions, "regions", nil, "comma-separated region names (default all configured)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output directory (default from config)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "do not persist the run")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "stop after the first failed region")
	rootCmd.AddCommand(runCmd)
}
