package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"

	"github.com/arikscherm/map-trail-miles/internal/projection"
)

var projectionsPoint string

var projectionsCmd = &cobra.Command{
	Use:   "projections",
	Short: "List projection candidates, or show the selection for a point",
	Example: `  trailmap projections
  trailmap projections --point -107.88,37.27`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := projection.LoadTable()
		if err != nil {
			return err
		}

		if projectionsPoint == "" {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME")
			for _, c := range table.Candidates() {
				fmt.Fprintf(w, "%s\t%s\n", c.Code, c.Name)
			}
			return w.Flush()
		}

		lon, lat, err := parsePoint(projectionsPoint)
		if err != nil {
			return err
		}
		point := geom.NewPolygonFlat(geom.XY, []float64{
			lon, lat, lon, lat, lon, lat, lon, lat,
		}, []int{8}).SetSRID(4326)

		chosen, err := table.Select(point)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", chosen.Code, chosen.Name)
		return nil
	},
}

func parsePoint(s string) (lon, lat float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("expected --point lon,lat, got %q", s)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "parse longitude")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "parse latitude")
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return 0, 0, eris.Errorf("point %q outside valid lon/lat range", s)
	}
	return lon, lat, nil
}

func init() {
	projectionsCmd.Flags().StringVar(&projectionsPoint, "point", "", "lon,lat to run the selector for")
	rootCmd.AddCommand(projectionsCmd)
}
