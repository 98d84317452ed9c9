// Package trail classifies raw path and footway features into the trail set
// and computes trail mileage and density for an area of interest.
package trail

import (
	"github.com/arikscherm/map-trail-miles/internal/layer"
)

// Surfaces a footway must carry to count as a trail. Footways with unset or
// paved surfaces are sidewalks, not trails.
var trailSurfaces = map[string]bool{
	"gravel":    true,
	"dirt":      true,
	"grass":     true,
	"compacted": true,
	"earth":     true,
	"ground":    true,
	"rock":      true,
}

// Classify filters the trails feature layer down to genuine trail segments:
// highway=path unless surfaced with concrete, and highway=footway only on a
// natural surface. Records with neither highway value are dropped. An empty
// or missing layer yields an empty result; the caller decides how to report
// "no trails found".
func Classify(trails layer.FeatureLayer) layer.FeatureLayer {
	out := layer.FeatureLayer{Name: trails.Name}
	for _, f := range trails.Features {
		switch f.Tag("highway") {
		case "path":
			if f.Tag("surface") == "concrete" {
				continue
			}
			out.Features = append(out.Features, f)
		case "footway":
			if trailSurfaces[f.Tag("surface")] {
				out.Features = append(out.Features, f)
			}
		}
	}
	return out
}
