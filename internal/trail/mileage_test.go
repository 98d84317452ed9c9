package trail

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/arikscherm/map-trail-miles/internal/layer"
	"github.com/arikscherm/map-trail-miles/internal/projection"
)

func durangoMask() *geom.Polygon {
	// north 37.335, south 37.25, east -107.81, west -107.915
	return geom.NewPolygonFlat(geom.XY, []float64{
		-107.915, 37.25,
		-107.915, 37.335,
		-107.81, 37.335,
		-107.81, 37.25,
		-107.915, 37.25,
	}, []int{10})
}

func loadTable(t *testing.T) *projection.Table {
	t.Helper()
	table, err := projection.LoadTable()
	require.NoError(t, err)
	return table
}

func TestComputeMileageEmptySet(t *testing.T) {
	table := loadTable(t)

	_, err := ComputeMileage(table, durangoMask(), layer.FeatureLayer{Name: "trails"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyTrailSet))
}

func TestComputeMileageOneMileSegment(t *testing.T) {
	table := loadTable(t)
	chosen := table.Find("EPSG:2774")
	require.NotNil(t, chosen)

	// Bisect an eastern endpoint so the projected segment measures exactly
	// one statute mile (1609.344 m) in the chosen system.
	const lat = 37.29
	const west = -107.88
	x0, y0 := chosen.Forward(west, lat)
	lo, hi := west, west+0.05
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		x1, y1 := chosen.Forward(mid, lat)
		if math.Hypot(x1-x0, y1-y0) < 1609.344 {
			lo = mid
		} else {
			hi = mid
		}
	}
	east := (lo + hi) / 2

	trails := layer.FeatureLayer{Name: "trails", Features: []layer.Feature{{
		Geom: geom.NewLineStringFlat(geom.XY, []float64{west, lat, east, lat}),
		Tags: map[string]string{"highway": "path"},
	}}}

	got, err := ComputeMileage(table, durangoMask(), trails)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2774", got.ProjectionCode)
	assert.Equal(t, 1.0, got.TrailMiles, "1609.344 projected meters is exactly one mile after rounding")
}

func TestComputeMileageSumsSegments(t *testing.T) {
	table := loadTable(t)
	chosen := table.Find("EPSG:2774")
	require.NotNil(t, chosen)

	segs := [][]float64{
		{-107.90, 37.26, -107.88, 37.27, -107.87, 37.29},
		{-107.85, 37.30, -107.84, 37.31},
	}
	expected := 0.0
	trails := layer.FeatureLayer{Name: "trails"}
	for _, flat := range segs {
		for i := 0; i+3 < len(flat); i += 2 {
			x0, y0 := chosen.Forward(flat[i], flat[i+1])
			x1, y1 := chosen.Forward(flat[i+2], flat[i+3])
			expected += math.Hypot(x1-x0, y1-y0)
		}
		trails.Features = append(trails.Features, layer.Feature{
			Geom: geom.NewLineStringFlat(geom.XY, flat),
			Tags: map[string]string{"highway": "path"},
		})
	}

	got, err := ComputeMileage(table, durangoMask(), trails)
	require.NoError(t, err)
	assert.InDelta(t, expected/1609.344, got.TrailMiles, 0.001)
}

func TestComputeMileageDensity(t *testing.T) {
	table := loadTable(t)

	trails := layer.FeatureLayer{Name: "trails", Features: []layer.Feature{{
		Geom: geom.NewLineStringFlat(geom.XY, []float64{-107.90, 37.26, -107.82, 37.33}),
	}}}

	got, err := ComputeMileage(table, durangoMask(), trails)
	require.NoError(t, err)
	require.NotNil(t, got.DensityPerSqMile, "single-polygon mask carries density")

	// The Durango box is roughly 5.8 x 5.9 miles; density must equal
	// miles over that area to rounding precision.
	assert.Greater(t, *got.DensityPerSqMile, 0.0)
	assert.Less(t, *got.DensityPerSqMile, got.TrailMiles,
		"mask area is well over one square mile")
}

func TestComputeMileageMultiPolygonMaskOmitsDensity(t *testing.T) {
	table := loadTable(t)

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(durangoMask()))
	require.NoError(t, mp.Push(geom.NewPolygonFlat(geom.XY, []float64{
		-107.70, 37.25, -107.70, 37.30, -107.65, 37.30, -107.65, 37.25, -107.70, 37.25,
	}, []int{10})))

	trails := layer.FeatureLayer{Name: "trails", Features: []layer.Feature{{
		Geom: geom.NewLineStringFlat(geom.XY, []float64{-107.90, 37.26, -107.82, 37.33}),
	}}}

	got, err := ComputeMileage(table, mp, trails)
	require.NoError(t, err)
	assert.Nil(t, got.DensityPerSqMile, "multi-polygon area is ambiguous, density omitted")
	assert.Greater(t, got.TrailMiles, 0.0)
}

func TestComputeMileageMultiLineString(t *testing.T) {
	table := loadTable(t)

	mls := geom.NewMultiLineString(geom.XY)
	require.NoError(t, mls.Push(geom.NewLineStringFlat(geom.XY, []float64{-107.90, 37.26, -107.89, 37.27})))
	require.NoError(t, mls.Push(geom.NewLineStringFlat(geom.XY, []float64{-107.87, 37.28, -107.86, 37.29})))

	trails := layer.FeatureLayer{Name: "trails", Features: []layer.Feature{{Geom: mls}}}
	got, err := ComputeMileage(table, durangoMask(), trails)
	require.NoError(t, err)
	assert.Greater(t, got.TrailMiles, 0.0)
}
