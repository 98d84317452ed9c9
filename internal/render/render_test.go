package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/arikscherm/map-trail-miles/internal/layer"
)

func testLayers() layer.Set {
	mask := geom.NewPolygonFlat(geom.XY,
		[]float64{-107.92, 37.24, -107.92, 37.35, -107.84, 37.35, -107.84, 37.24, -107.92, 37.24},
		[]int{10}).SetSRID(4326)

	return layer.Set{
		layer.MaskName: {Name: layer.MaskName, Features: []layer.Feature{{Geom: mask}}},
		"trails": {Name: "trails", Features: []layer.Feature{
			{
				Geom: geom.NewLineStringFlat(geom.XY, []float64{-107.9, 37.3, -107.88, 37.31, -107.86, 37.3}),
				Tags: map[string]string{"highway": "path"},
			},
		}},
		"water": {Name: "water", Features: []layer.Feature{
			{
				Geom: geom.NewPolygonFlat(geom.XY,
					[]float64{-107.9, 37.25, -107.89, 37.25, -107.89, 37.26, -107.9, 37.26, -107.9, 37.25},
					[]int{10}),
				Tags: map[string]string{"natural": "water"},
			},
		}},
	}
}

func TestRenderWritesImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maps", "durango-trails.png")

	err := New().Render(testLayers(), "Total trail miles: 42.0", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRenderSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.svg")

	err := New().Render(testLayers(), "trails", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestRenderRequiresMask(t *testing.T) {
	layers := testLayers()
	delete(layers, layer.MaskName)

	err := New().Render(layers, "trails", filepath.Join(t.TempDir(), "map.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mask")
}

func TestPaintOrder(t *testing.T) {
	layers := testLayers()
	layers["railways"] = layer.FeatureLayer{Name: "railways"}
	layers["aeroways"] = layer.FeatureLayer{Name: "aeroways"}

	order := paintOrder(layers)
	require.Equal(t, []string{layer.MaskName, "water", "aeroways", "railways", "trails"}, order)
}

func TestHeightForAspectRatio(t *testing.T) {
	r := New()

	square := geom.NewBounds(geom.XY)
	square.Set(-108, 37, -107, 38)
	tall := geom.NewBounds(geom.XY)
	tall.Set(-108, 36, -107.5, 39)

	// One degree of latitude spans more ground than one of longitude at 37°N,
	// so even a square degree box renders taller than wide.
	assert.Greater(t, float64(r.heightFor(square)), float64(r.width))
	assert.Greater(t, float64(r.heightFor(tall)), float64(r.heightFor(square)))
}
