package trail

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/arikscherm/map-trail-miles/internal/geomath"
	"github.com/arikscherm/map-trail-miles/internal/layer"
	"github.com/arikscherm/map-trail-miles/internal/projection"
)

// ErrEmptyTrailSet means no trail segments survived classification. Callers
// treat this as "no trail miles found" and degrade the map title rather than
// aborting the run.
var ErrEmptyTrailSet = eris.New("trail: no trail segments to measure")

const (
	metersPerMile   = 1609.344
	sqMetersPerSqMi = 2589990.0
)

// Mileage is the per-run computation result.
type Mileage struct {
	ProjectionCode string  `json:"projection_code"`
	TrailMiles     float64 `json:"trail_miles"`
	// DensityPerSqMile is nil when the mask is a multi-polygon, where a
	// single enclosed area is ambiguous. That is an expected outcome, not
	// a failure.
	DensityPerSqMile *float64 `json:"trail_density_per_square_mile,omitempty"`
}

// ComputeMileage selects the projection for the mask, reprojects the trail
// segments into it, and sums their planar lengths in statute miles. Density
// per square mile is included only for single-polygon masks.
func ComputeMileage(table *projection.Table, mask geom.T, trails layer.FeatureLayer) (Mileage, error) {
	if trails.Empty() {
		return Mileage{}, ErrEmptyTrailSet
	}

	chosen, err := table.Select(mask)
	if err != nil {
		return Mileage{}, err
	}

	meters := 0.0
	for _, f := range trails.Features {
		meters += projectedLength(chosen, f.Geom)
	}
	miles := round3(meters / metersPerMile)

	result := Mileage{
		ProjectionCode: chosen.Code,
		TrailMiles:     miles,
	}

	if poly, ok := mask.(*geom.Polygon); ok && poly.NumLinearRings() > 0 {
		sqMiles := maskSquareMiles(chosen, poly)
		if sqMiles > 0 {
			d := round3(miles / sqMiles)
			result.DensityPerSqMile = &d
		}
	}
	return result, nil
}

// projectedLength projects every vertex of a line geometry into the chosen
// CRS and sums segment lengths in meters. Non-line geometries contribute
// nothing.
func projectedLength(c *projection.Candidate, g geom.T) float64 {
	switch t := g.(type) {
	case *geom.LineString:
		return projectedFlatLength(c, t.FlatCoords())
	case *geom.MultiLineString:
		total := 0.0
		for i := 0; i < t.NumLineStrings(); i++ {
			total += projectedFlatLength(c, t.LineString(i).FlatCoords())
		}
		return total
	default:
		return 0
	}
}

func projectedFlatLength(c *projection.Candidate, flat []float64) float64 {
	var total float64
	var px, py float64
	for i := 0; i+1 < len(flat); i += 2 {
		x, y := c.Forward(flat[i], flat[i+1])
		if i > 0 {
			total += math.Hypot(x-px, y-py)
		}
		px, py = x, y
	}
	return total
}

// maskSquareMiles projects the mask's exterior ring and returns the enclosed
// planar area in square miles.
func maskSquareMiles(c *projection.Candidate, mask *geom.Polygon) float64 {
	flat := mask.LinearRing(0).FlatCoords()
	projected := make([]float64, 0, len(flat))
	for i := 0; i+1 < len(flat); i += 2 {
		x, y := c.Forward(flat[i], flat[i+1])
		projected = append(projected, x, y)
	}
	ring := geom.NewLinearRingFlat(geom.XY, projected)
	return geomath.RingArea(ring) / sqMetersPerSqMi
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
