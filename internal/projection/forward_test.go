package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransverseMercatorOrigin(t *testing.T) {
	utm13, err := newProjector(params{
		Type: "tmerc", Ellps: "WGS84", Lon0: -105, K0: 0.9996, X0: 500000,
	})
	require.NoError(t, err)

	// On the central meridian the easting is exactly the false easting.
	x, y := utm13.forward(-105, 0)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, _ = utm13.forward(-105, 40)
	assert.InDelta(t, 500000, x, 1e-6)

	// East of the meridian means larger easting, west means smaller.
	xe, _ := utm13.forward(-104, 40)
	xw, _ := utm13.forward(-106, 40)
	assert.Greater(t, xe, 500000.0)
	assert.Less(t, xw, 500000.0)

	// One degree of latitude along the meridian is roughly 111 km, scaled
	// by k0.
	_, y40 := utm13.forward(-105, 40)
	_, y41 := utm13.forward(-105, 41)
	assert.InDelta(t, 111000, y41-y40, 500)
}

func TestLambertConformalConicOrigin(t *testing.T) {
	// Colorado South parameters.
	lcc, err := newProjector(params{
		Type: "lcc", Ellps: "GRS80",
		Lat0: 36.6666666666667, Lon0: -105.5,
		Lat1: 38.4333333333333, Lat2: 37.2333333333333,
		X0: 914401.8289, Y0: 304800.6096,
	})
	require.NoError(t, err)

	// The grid origin projects to the false easting/northing.
	x, y := lcc.forward(-105.5, 36.6666666666667)
	assert.InDelta(t, 914401.8289, x, 1e-3)
	assert.InDelta(t, 304800.6096, y, 1e-3)

	// Scale along a standard parallel is true: a short east-west step at
	// lat_2 measures close to its ellipsoidal ground length.
	lat := 37.2333333333333
	x1, y1 := lcc.forward(-106.0, lat)
	x2, y2 := lcc.forward(-105.0, lat)
	dist := math.Hypot(x2-x1, y2-y1)
	phi := lat * math.Pi / 180
	e2 := 0.00669438002290079
	parallelRadius := 6378137 / math.Sqrt(1-e2*math.Sin(phi)*math.Sin(phi)) * math.Cos(phi)
	groundPerDeg := math.Pi / 180 * parallelRadius
	assert.InDelta(t, groundPerDeg, dist, groundPerDeg*0.001)
}

func TestMercatorEquator(t *testing.T) {
	m, err := newProjector(params{Type: "merc", Ellps: "WGS84"})
	require.NoError(t, err)

	x, y := m.forward(0, 0)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	// 90 degrees of longitude at the equator is a quarter of the equator.
	x, _ = m.forward(90, 0)
	assert.InDelta(t, math.Pi/2*6378137, x, 1e-3)

	// Northern hemisphere is positive, symmetric with southern.
	_, yn := m.forward(0, 45)
	_, ys := m.forward(0, -45)
	assert.Greater(t, yn, 0.0)
	assert.InDelta(t, yn, -ys, 1e-6)
}

func TestCylindricalEqualAreaPreservesArea(t *testing.T) {
	cea, err := newProjector(params{Type: "cea", Ellps: "WGS84", LatTS: 30})
	require.NoError(t, err)

	x0, y0 := cea.forward(0, 0)
	assert.InDelta(t, 0, x0, 1e-9)
	assert.InDelta(t, 0, y0, 1e-9)

	// Two one-degree-wide cells at very different latitudes enclose nearly
	// equal projected areas; that is the defining property.
	cellArea := func(lon, lat float64) float64 {
		x1, y1 := cea.forward(lon, lat)
		x2, _ := cea.forward(lon+1, lat)
		_, y2 := cea.forward(lon, lat+1)
		return math.Abs((x2 - x1) * (y2 - y1))
	}
	low := cellArea(10, 0)
	high := cellArea(10, 60)
	ratio := high / low
	assert.InDelta(t, math.Cos(60.5*math.Pi/180)/math.Cos(0.5*math.Pi/180), ratio, 0.01,
		"projected cell area tracks true ground area as latitude climbs")
}

func TestNewProjectorErrors(t *testing.T) {
	_, err := newProjector(params{Type: "tmerc", Ellps: "MARS"})
	assert.Error(t, err)

	_, err = newProjector(params{Type: "stereographic", Ellps: "WGS84"})
	assert.Error(t, err)
}
