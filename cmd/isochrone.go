package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/pkg/isochrone"
)

var (
	isoLon     float64
	isoLat     float64
	isoMinutes int
)

var isochroneCmd = &cobra.Command{
	Use:   "isochrone",
	Short: "Request one isochrone and print it as GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		provider, err := newProvider()
		if err != nil {
			return err
		}

		minutes := isoMinutes
		if minutes == 0 {
			minutes = cfg.Isochrone.Minutes
		}

		start := time.Now()
		mp, err := provider.Isochrone(ctx, isochrone.Request{
			Location: orb.Point{isoLon, isoLat},
			Minutes:  minutes,
			Mode:     model.TravelMode(cfg.Isochrone.Mode),
		})
		if err != nil {
			return eris.Wrap(err, "isochrone")
		}
		zap.L().Info("isochrone received",
			zap.String("provider", provider.Name()),
			zap.Int("polygons", len(mp)),
			zap.Duration("elapsed", time.Since(start)),
		)

		f := geojson.NewFeature(mp)
		f.Properties["minutes"] = minutes
		f.Properties["provider"] = provider.Name()
		data, err := f.MarshalJSON()
		if err != nil {
			return eris.Wrap(err, "isochrone: encode")
		}
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	},
}

func init() {
	isochroneCmd.Flags().Float64Var(&isoLon, "lon", 0, "longitude (WGS84)")
	isochroneCmd.Flags().Float64Var(&isoLat, "lat", 0, "latitude (WGS84)")
	isochroneCmd.Flags().IntVar(&isoMinutes, "minutes", 0, "travel time in minutes (default from config)")
	_ = isochroneCmd.MarkFlagRequired("lon")
	_ = isochroneCmd.MarkFlagRequired("lat")
	rootCmd.AddCommand(isochroneCmd)
}
