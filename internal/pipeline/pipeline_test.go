package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
	"github.com/arikscherm/map-trail-miles/internal/projection"
	"github.com/arikscherm/map-trail-miles/internal/source"
)

// durangoBBox is the documented example area in southwest Colorado.
var durangoBBox = area.BoundingBox{North: 37.335, South: 37.25, East: -107.81, West: -107.915}

type fakeSource struct {
	features map[string][]layer.Feature
	fail     map[string]bool
}

func (f *fakeSource) Fetch(_ context.Context, name string, _ area.BoundingBox, _ source.LayerSpec) ([]layer.Feature, error) {
	if f.fail[name] {
		return nil, eris.Errorf("fetch %s: synthetic failure", name)
	}
	return f.features[name], nil
}

type fakeRenderer struct {
	layers layer.Set
	title  string
	path   string
	calls  int
}

func (f *fakeRenderer) Render(layers layer.Set, title, path string) error {
	f.layers, f.title, f.path = layers, title, path
	f.calls++
	return nil
}

func dirtPath(flat ...float64) layer.Feature {
	return layer.Feature{
		Geom: geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326),
		Tags: map[string]string{"highway": "path", "surface": "dirt"},
	}
}

func newTestPipeline(t *testing.T, src source.Source, r Renderer) *Pipeline {
	t.Helper()
	table, err := projection.LoadTable()
	require.NoError(t, err)
	return New(Options{
		Builder:  area.Builder{},
		Source:   src,
		Table:    table,
		Renderer: r,
		Layers: source.Layers{
			"trails": {{Key: "highway", Values: []string{"path", "footway"}}},
			"water":  {{Key: "natural", Values: []string{"water"}}},
		},
		Parallel: 2,
	})
}

func TestRunProducesArtifact(t *testing.T) {
	src := &fakeSource{features: map[string][]layer.Feature{
		"trails": {dirtPath(-107.9, 37.3, -107.88, 37.31, -107.86, 37.3)},
	}}
	r := &fakeRenderer{}
	p := newTestPipeline(t, src, r)

	res, err := p.Run(context.Background(), area.Area{BBox: &durangoBBox}, t.TempDir(), "png")
	require.NoError(t, err)

	require.NotNil(t, res.Mileage)
	assert.Equal(t, "EPSG:2774", res.Mileage.ProjectionCode)
	assert.Positive(t, res.Mileage.TrailMiles)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, 1, r.calls)
	assert.Contains(t, r.title, "Miles of Trail Within Area of Interest Based on EPSG:2774 Projection")
	assert.Equal(t, res.MapPath, r.path)
	assert.Equal(t, "37.335_37.25_-107.81_-107.915-trails.png", filepath.Base(res.MapPath))

	// The renderer gets the mask plus the fetched layers.
	assert.NotNil(t, r.layers.Mask())
	assert.NotEmpty(t, r.layers["trails"].Features)
}

func TestRunNoTrailsDegradesTitle(t *testing.T) {
	src := &fakeSource{features: map[string][]layer.Feature{
		"trails": {
			{
				Geom: geom.NewLineStringFlat(geom.XY, []float64{-107.9, 37.3, -107.88, 37.31}),
				Tags: map[string]string{"highway": "path", "surface": "concrete"},
			},
		},
	}}
	r := &fakeRenderer{}
	p := newTestPipeline(t, src, r)

	res, err := p.Run(context.Background(), area.Area{BBox: &durangoBBox}, t.TempDir(), "png")
	require.NoError(t, err)

	assert.Nil(t, res.Mileage)
	assert.Equal(t, "No trail miles found", res.Title)
	assert.Equal(t, 1, r.calls, "map still renders without trails")
}

func TestRunOmitsFailedLayers(t *testing.T) {
	src := &fakeSource{
		features: map[string][]layer.Feature{
			"trails": {dirtPath(-107.9, 37.3, -107.88, 37.31)},
		},
		fail: map[string]bool{"water": true},
	}
	r := &fakeRenderer{}
	p := newTestPipeline(t, src, r)

	res, err := p.Run(context.Background(), area.Area{BBox: &durangoBBox}, t.TempDir(), "png")
	require.NoError(t, err)
	require.NotNil(t, res.Mileage)

	_, hasWater := r.layers["water"]
	assert.False(t, hasWater, "failed layer must be omitted, not aborted on")
}

func TestRunMaskFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{}, &fakeRenderer{})

	_, err := p.Run(context.Background(), area.Area{BBox: &area.BoundingBox{
		North: 10, South: 20, East: -107, West: -108, // inverted
	}}, t.TempDir(), "png")
	require.Error(t, err)
	assert.True(t, eris.Is(err, area.ErrInvalidArea))
}

func TestMeasureSkipsRendering(t *testing.T) {
	src := &fakeSource{features: map[string][]layer.Feature{
		"trails": {dirtPath(-107.9, 37.3, -107.88, 37.31)},
	}}
	r := &fakeRenderer{}
	p := newTestPipeline(t, src, r)

	res, err := p.Measure(context.Background(), area.Area{BBox: &durangoBBox})
	require.NoError(t, err)
	require.NotNil(t, res.Mileage)
	assert.Empty(t, res.MapPath)
	assert.Zero(t, r.calls)
}

func TestMeasureEmptyTrailsIsNotAnError(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{}, nil)

	res, err := p.Measure(context.Background(), area.Area{BBox: &durangoBBox})
	require.NoError(t, err)
	assert.Nil(t, res.Mileage)
	assert.Equal(t, "No trail miles found", res.Title)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Durango, Colorado", "durango-colorado"},
		{"37.335_37.25_-107.81_-107.915", "37.335_37.25_-107.81_-107.915"},
		{"  Weird  //  Name!  ", "weird-name"},
		{"", "area"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), tt.in)
	}
}
