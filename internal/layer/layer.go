// Package layer defines the feature-layer data model shared by the fetch,
// clip, classify, and render stages, plus the clipper that cuts layers to
// the boundary mask.
package layer

import (
	"github.com/twpayne/go-geom"
)

// MaskName is the reserved layer-set key under which the boundary mask is
// stored so the renderer can draw the area outline.
const MaskName = "mask"

// Feature is one geometry record with its OSM-style key-value tags.
type Feature struct {
	Geom geom.T
	Tags map[string]string
}

// Tag returns the value for key, or "" when unset.
func (f Feature) Tag(key string) string {
	return f.Tags[key]
}

// FeatureLayer is a named collection of features belonging to one semantic
// category (trails, water, buildings, ...).
type FeatureLayer struct {
	Name     string
	Features []Feature
}

// Empty reports whether the layer has no features.
func (l FeatureLayer) Empty() bool {
	return len(l.Features) == 0
}

// Set maps layer name to layer. The mask lives under MaskName.
type Set map[string]FeatureLayer

// Mask returns the boundary mask geometry stored in the set, or nil.
func (s Set) Mask() geom.T {
	ml, ok := s[MaskName]
	if !ok || len(ml.Features) == 0 {
		return nil
	}
	return ml.Features[0].Geom
}
