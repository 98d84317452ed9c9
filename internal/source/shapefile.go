package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
)

// Shapefiles reads features from local shapefiles for fully offline runs:
// layer "trails" comes from <dir>/trails.shp, and DBF attributes become
// tags. Geometries are expected in WGS84.
type Shapefiles struct {
	dir string
}

// NewShapefiles creates a shapefile source rooted at dir.
func NewShapefiles(dir string) (*Shapefiles, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, eris.Wrapf(err, "shapefile: source directory %s", dir)
	}
	return &Shapefiles{dir: dir}, nil
}

// Fetch implements Source. The bounding box is applied as a coarse filter on
// each shape's bounding box; precise cutting is the clipper's job. Records
// not matching the layer's tag filters are skipped.
func (s *Shapefiles) Fetch(_ context.Context, name string, bbox area.BoundingBox, spec LayerSpec) ([]layer.Feature, error) {
	path := filepath.Join(s.dir, name+".shp")
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var features []layer.Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}

		tags := make(map[string]string, len(fieldNames))
		for i := range fieldNames {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				tags[fieldNames[i]] = val
			}
		}
		if !spec.Matches(tags) {
			continue
		}

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}
		if !boxOverlaps(g, bbox) {
			continue
		}
		features = append(features, layer.Feature{Geom: g, Tags: tags})
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped records",
			zap.String("layer", name),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// shapeGeometry converts a go-shp shape into a go-geom geometry.
func shapeGeometry(shape shp.Shape) geom.T {
	switch t := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y}).SetSRID(4326)

	case *shp.PolyLine:
		mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
		for _, flat := range partFlats(t.NumParts, t.Parts, t.Points) {
			if len(flat) < 4 {
				continue
			}
			_ = mls.Push(geom.NewLineStringFlat(geom.XY, flat))
		}
		if mls.NumLineStrings() == 0 {
			return nil
		}
		if mls.NumLineStrings() == 1 {
			return mls.LineString(0)
		}
		return mls

	case *shp.Polygon:
		mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
		for _, flat := range partFlats(t.NumParts, t.Parts, t.Points) {
			if len(flat) < 8 {
				continue
			}
			poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
			if err := mp.Push(poly); err != nil {
				continue
			}
		}
		if mp.NumPolygons() == 0 {
			return nil
		}
		if mp.NumPolygons() == 1 {
			return mp.Polygon(0)
		}
		return mp

	default:
		return nil
	}
}

// partFlats splits a multi-part shape's point array into per-part flat
// coordinate slices.
func partFlats(numParts int32, parts []int32, points []shp.Point) [][]float64 {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	var out [][]float64
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = parts[i+1]
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		out = append(out, flat)
	}
	return out
}

func boxOverlaps(g geom.T, bbox area.BoundingBox) bool {
	b := g.Bounds()
	return b.Min(0) <= bbox.East && b.Max(0) >= bbox.West &&
		b.Min(1) <= bbox.North && b.Max(1) >= bbox.South
}
