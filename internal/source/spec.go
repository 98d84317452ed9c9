// Package source fetches tagged feature collections for a bounding region
// from a geometry backend: the Overpass API, a PostGIS table, or local
// shapefiles. Backends share the Source interface; per-layer fetch failures
// are the caller's to recover.
package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
)

// TagFilter accepts features carrying the key with one of the listed values.
// An empty value list accepts any value for the key.
type TagFilter struct {
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
}

// LayerSpec is the tag query for one feature layer; filters are OR-ed.
type LayerSpec []TagFilter

// Layers maps layer name to its tag query.
type Layers map[string]LayerSpec

// Source supplies raw, unclipped features for one named layer over a
// bounding region.
type Source interface {
	Fetch(ctx context.Context, name string, bbox area.BoundingBox, spec LayerSpec) ([]layer.Feature, error)
}

// DefaultLayers is the built-in layer payload used when no layers file is
// given: the categories the map draws, with trails split out for mileage.
func DefaultLayers() Layers {
	return Layers{
		"highways": {{Key: "highway", Values: []string{"motorway", "trunk"}}},
		"roads":    {{Key: "highway", Values: []string{"primary", "secondary", "tertiary"}}},
		"streets":  {{Key: "highway", Values: []string{"residential", "unclassified"}}},
		"trails":   {{Key: "highway", Values: []string{"path", "footway"}}},
		"parks": {
			{Key: "leisure", Values: []string{"park", "nature_reserve"}},
			{Key: "boundary", Values: []string{"protected_area"}},
			{Key: "landuse", Values: []string{"grass"}},
			{Key: "natural", Values: []string{"wood"}},
		},
		"water": {
			{Key: "water", Values: []string{"river", "pond", "lake", "reservoir"}},
			{Key: "waterway", Values: []string{"river", "canal"}},
			{Key: "natural", Values: []string{"water"}},
		},
		"buildings": {{Key: "building"}},
	}
}

// LoadLayers reads a layer definition file. The format mirrors the built-in
// payload:
//
//	trails:
//	  - key: highway
//	    values: [path, footway]
//
// Definitions are validated at load time, not at fetch time.
func LoadLayers(path string) (Layers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read layers file %s", path)
	}
	var layers Layers
	if err := yaml.Unmarshal(data, &layers); err != nil {
		return nil, eris.Wrapf(err, "source: parse layers file %s", path)
	}
	if err := layers.Validate(); err != nil {
		return nil, err
	}
	return layers, nil
}

// Validate rejects empty or malformed layer definitions.
func (l Layers) Validate() error {
	if len(l) == 0 {
		return eris.New("source: no layers defined")
	}
	for name, spec := range l {
		if name == "" {
			return eris.New("source: layer with empty name")
		}
		if name == layer.MaskName {
			return eris.Errorf("source: layer name %q is reserved", layer.MaskName)
		}
		if len(spec) == 0 {
			return eris.Errorf("source: layer %q has no tag filters", name)
		}
		for _, f := range spec {
			if f.Key == "" {
				return eris.Errorf("source: layer %q has a filter with an empty key", name)
			}
		}
	}
	return nil
}

// Matches reports whether a tag map satisfies any filter in the spec.
func (s LayerSpec) Matches(tags map[string]string) bool {
	for _, f := range s {
		v, ok := tags[f.Key]
		if !ok {
			continue
		}
		if len(f.Values) == 0 {
			return true
		}
		for _, want := range f.Values {
			if v == want {
				return true
			}
		}
	}
	return false
}
