package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "isoreach",
	Short: "Railway station isochrone coverage for building footprints",
	Long: "Fetches railway stations per region, requests 15-minute driving isochrones, " +
		"classifies cadastre buildings inside or outside their union and measures " +
		"the distance from every building to its nearest station.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
