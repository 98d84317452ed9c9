package projection

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func bboxMask(w, s, e, n float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{w, s, w, n, e, n, e, s, w, s}, []int{10})
}

func TestLoadTable(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)

	codes := make([]string, 0, len(table.Candidates()))
	for _, c := range table.Candidates() {
		codes = append(codes, c.Code)
	}
	assert.Contains(t, codes, "EPSG:2774")
	assert.Contains(t, codes, "EPSG:6933", "global fallback must be present")

	require.NotNil(t, table.Find("EPSG:32613"))
	assert.Nil(t, table.Find("EPSG:99999"))
}

func TestLoadTableRejectsMissingFallback(t *testing.T) {
	// A single regional candidate and no whole-world entry.
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"code": "EPSG:32613", "name": "UTM 13N", "type": "tmerc", "ellps": "WGS84", "lon_0": -105, "k_0": 0.9996, "x_0": 500000},
			"geometry": {"type": "Polygon", "coordinates": [[[-108, 0], [-108, 84], [-102, 84], [-102, 0], [-108, 0]]]}
		}]
	}`)
	_, err := loadTableFrom(data)
	require.Error(t, err)
}

func TestSelectSouthwestColorado(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)

	// north 37.335, south 37.25, east -107.81, west -107.915
	mask := bboxMask(-107.915, 37.25, -107.81, 37.335)
	chosen, err := table.Select(mask)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2774", chosen.Code,
		"Colorado South state plane beats UTM 13N and the global fallback on zone area")
}

func TestSelectSingleLocalCandidate(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)

	// Inside UTM zone 12N only (plus the fallback, which always matches but
	// is never smaller than a 6-degree zone).
	mask := bboxMask(-112.5, 19.5, -111.5, 20.5)
	chosen, err := table.Select(mask)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32612", chosen.Code)

	// Deterministic across calls.
	again, err := table.Select(mask)
	require.NoError(t, err)
	assert.Equal(t, chosen.Code, again.Code)
}

func TestSelectFallsBackToGlobal(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)

	tests := []struct {
		name string
		mask *geom.Polygon
	}{
		{"near south pole", bboxMask(170, -89, 179, -85)},
		{"near antimeridian", bboxMask(175, -45, 179.9, -40)},
		{"mid atlantic", bboxMask(-30, 10, -25, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, err := table.Select(tt.mask)
			require.NoError(t, err, "a populated table never raises")
			assert.Equal(t, "EPSG:6933", chosen.Code)
		})
	}
}

func TestSelectTieKeepsTableOrder(t *testing.T) {
	// Two candidates with identical validity regions: exact area tie, the
	// earlier entry wins.
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"code": "EPSG:FIRST", "name": "first", "type": "tmerc", "ellps": "WGS84", "lon_0": -105, "k_0": 0.9996, "x_0": 500000},
				"geometry": {"type": "Polygon", "coordinates": [[[-108, 30], [-108, 45], [-102, 45], [-102, 30], [-108, 30]]]}
			},
			{
				"type": "Feature",
				"properties": {"code": "EPSG:SECOND", "name": "second", "type": "tmerc", "ellps": "WGS84", "lon_0": -105, "k_0": 0.9996, "x_0": 500000},
				"geometry": {"type": "Polygon", "coordinates": [[[-108, 30], [-108, 45], [-102, 45], [-102, 30], [-108, 30]]]}
			},
			{
				"type": "Feature",
				"properties": {"code": "EPSG:6933", "name": "fallback", "type": "cea", "ellps": "WGS84", "lat_ts": 30},
				"geometry": {"type": "Polygon", "coordinates": [[[-180, -90], [-180, 90], [180, 90], [180, -90], [-180, -90]]]}
			}
		]
	}`)
	table, err := loadTableFrom(data)
	require.NoError(t, err)

	chosen, err := table.Select(bboxMask(-106, 36, -104, 38))
	require.NoError(t, err)
	assert.Equal(t, "EPSG:FIRST", chosen.Code)
}

func TestSelectMultiPolygonMask(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(bboxMask(-107.9, 37.2, -107.8, 37.3)))
	require.NoError(t, mp.Push(bboxMask(-107.7, 37.2, -107.6, 37.3)))

	chosen, err := table.Select(mp)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2774", chosen.Code)
}

func TestSelectCentroidError(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)

	_, err = table.Select(geom.NewPointFlat(geom.XY, []float64{0, 0}))
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrNoProjectionFound))
}
