package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arikscherm/map-trail-miles/internal/render"
)

var (
	mapBBox   string
	mapPlace  string
	mapLayers string
	mapOut    string
	mapFormat string
	mapSource string
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Render a trail map for an area of interest",
	Long: "Fetches the configured feature layers for the area, clips them to its\n" +
		"boundary, measures the unpaved trail mileage, and writes a styled map image.",
	Example: `  trailmap map --bbox 37.335,37.25,-107.81,-107.915
  trailmap map --place "Durango, Colorado" --format svg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mapSource != "" {
			cfg.Source.Driver = mapSource
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a, err := parseArea(mapBBox, mapPlace)
		if err != nil {
			return err
		}

		outDir := mapOut
		if outDir == "" {
			outDir = cfg.Output.Dir
		}
		format := mapFormat
		if format == "" {
			format = cfg.Output.Format
		}

		p, cleanup, err := initPipeline(cmd.Context(), mapSource, mapLayers, render.New())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := p.Run(cmd.Context(), a, outDir, format)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), res.Title)
		fmt.Fprintln(cmd.OutOrStdout(), res.MapPath)
		return nil
	},
}

func init() {
	mapCmd.Flags().StringVar(&mapBBox, "bbox", "", "area bounds as north,south,east,west")
	mapCmd.Flags().StringVar(&mapPlace, "place", "", "area placename, geocoded to its boundary")
	mapCmd.Flags().StringVar(&mapLayers, "layers", "", "layer definition file (YAML)")
	mapCmd.Flags().StringVar(&mapOut, "out", "", "output directory (default from config)")
	mapCmd.Flags().StringVar(&mapFormat, "format", "", "output format: png, svg, pdf, jpg")
	mapCmd.Flags().StringVar(&mapSource, "source", "", "feature backend: overpass, postgis, shapefile")
	rootCmd.AddCommand(mapCmd)
}
