// Package area turns an area-of-interest specification, a bounding box or a
// free-text placename, into a boundary mask polygon carried in WGS84.
package area

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Sentinel errors for mask construction. Mask failures are fatal to a run;
// there is no meaningful map without a boundary.
var (
	ErrInvalidArea     = eris.New("area: invalid bounding box")
	ErrInvalidAreaType = eris.New("area: area must be a bounding box or a placename")
	ErrGeocode         = eris.New("area: geocode failed")
)

// BoundingBox holds WGS84 bounds in degrees.
type BoundingBox struct {
	North float64
	South float64
	East  float64
	West  float64
}

// Area is a tagged variant: exactly one of BBox or Place is set.
type Area struct {
	BBox  *BoundingBox
	Place string
}

// String returns a label for the area, used for artifact naming and logs.
func (a Area) String() string {
	switch {
	case a.BBox != nil:
		b := a.BBox
		return strings.Join([]string{
			strconv.FormatFloat(b.North, 'f', -1, 64),
			strconv.FormatFloat(b.South, 'f', -1, 64),
			strconv.FormatFloat(b.East, 'f', -1, 64),
			strconv.FormatFloat(b.West, 'f', -1, 64),
		}, "_")
	case a.Place != "":
		return a.Place
	default:
		return "unspecified"
	}
}

// ParseBBox parses the CLI "north,south,east,west" form. Anything other than
// four numeric fields is ErrInvalidArea.
func ParseBBox(s string) (*BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, eris.Wrapf(ErrInvalidArea, "expected four comma-separated bounds, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidArea, "bound %q is not numeric", strings.TrimSpace(p))
		}
		vals[i] = v
	}
	return &BoundingBox{North: vals[0], South: vals[1], East: vals[2], West: vals[3]}, nil
}

// Geocoder resolves a placename to a boundary polygon or multi-polygon.
type Geocoder interface {
	Search(ctx context.Context, place string) (geom.T, error)
}

// Builder constructs boundary masks. The zero value handles bounding boxes;
// a Geocoder is required only for placename areas.
type Builder struct {
	Geocoder Geocoder
}

// Build returns the boundary mask for the area in WGS84. Bounding boxes are
// validated and turned into a rectangular ring; placenames are resolved
// through the geocoder with failures wrapped in ErrGeocode.
func (b Builder) Build(ctx context.Context, a Area) (geom.T, error) {
	switch {
	case a.BBox != nil:
		return buildBBoxMask(*a.BBox)
	case a.Place != "":
		return b.buildPlaceMask(ctx, a.Place)
	default:
		return nil, ErrInvalidAreaType
	}
}

// buildBBoxMask builds the closed rectangular ring (w,s) (w,n) (e,n) (e,s).
func buildBBoxMask(bb BoundingBox) (geom.T, error) {
	if err := validateBounds(bb); err != nil {
		return nil, err
	}
	flat := []float64{
		bb.West, bb.South,
		bb.West, bb.North,
		bb.East, bb.North,
		bb.East, bb.South,
		bb.West, bb.South,
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326), nil
}

func validateBounds(bb BoundingBox) error {
	for _, v := range []float64{bb.North, bb.South, bb.East, bb.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Wrap(ErrInvalidArea, "bounds must be finite")
		}
	}
	if bb.North <= bb.South {
		return eris.Wrapf(ErrInvalidArea, "north %v must be greater than south %v", bb.North, bb.South)
	}
	if bb.East == bb.West {
		return eris.Wrap(ErrInvalidArea, "east and west bounds are equal")
	}
	if bb.North > 90 || bb.South < -90 {
		return eris.Wrap(ErrInvalidArea, "latitude bounds outside [-90, 90]")
	}
	if bb.East > 180 || bb.East < -180 || bb.West > 180 || bb.West < -180 {
		return eris.Wrap(ErrInvalidArea, "longitude bounds outside [-180, 180]")
	}
	return nil
}

func (b Builder) buildPlaceMask(ctx context.Context, place string) (geom.T, error) {
	if b.Geocoder == nil {
		return nil, eris.Wrap(ErrGeocode, "no geocoder configured")
	}
	g, err := b.Geocoder.Search(ctx, place)
	if err != nil {
		return nil, eris.Wrapf(ErrGeocode, "lookup %q: %v", place, err)
	}
	if g == nil || len(g.FlatCoords()) == 0 {
		return nil, eris.Wrapf(ErrGeocode, "lookup %q returned an empty boundary", place)
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, eris.Wrapf(ErrGeocode, "lookup %q returned %T, want a polygon", place, g)
	}
}
