package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/arikscherm/map-trail-miles/internal/trail"
)

var (
	milesBBox   string
	milesPlace  string
	milesLayers string
	milesSource string
)

// milesOutput is the JSON document the miles command prints.
type milesOutput struct {
	Area string `json:"area"`
	trail.Mileage
	Found bool `json:"trails_found"`
}

var milesCmd = &cobra.Command{
	Use:   "miles",
	Short: "Compute trail mileage for an area, JSON to stdout",
	Example: `  trailmap miles --bbox 37.335,37.25,-107.81,-107.915
  trailmap miles --place "Durango, Colorado"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if milesSource != "" {
			cfg.Source.Driver = milesSource
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a, err := parseArea(milesBBox, milesPlace)
		if err != nil {
			return err
		}

		p, cleanup, err := initPipeline(cmd.Context(), milesSource, milesLayers, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := p.Measure(cmd.Context(), a)
		if err != nil {
			return err
		}

		out := milesOutput{Area: a.String(), Found: res.Mileage != nil}
		if res.Mileage != nil {
			out.Mileage = *res.Mileage
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	milesCmd.Flags().StringVar(&milesBBox, "bbox", "", "area bounds as north,south,east,west")
	milesCmd.Flags().StringVar(&milesPlace, "place", "", "area placename, geocoded to its boundary")
	milesCmd.Flags().StringVar(&milesLayers, "layers", "", "layer definition file (YAML)")
	milesCmd.Flags().StringVar(&milesSource, "source", "", "feature backend: overpass, postgis, shapefile")
	rootCmd.AddCommand(milesCmd)
}
