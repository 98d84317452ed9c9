package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arikscherm/map-trail-miles/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trailmap",
	Short: "Trail mileage maps from OpenStreetMap data",
	Long: "Builds a styled map of an area of interest and measures the unpaved trail\n" +
		"mileage inside it, using a state-plane or UTM projection chosen for the area.",
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
