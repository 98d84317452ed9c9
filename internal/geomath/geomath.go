// Package geomath provides planar geometry primitives over go-geom types:
// point-in-polygon tests, shoelace areas, segment lengths, and centroids.
// All functions are pure and operate on raw coordinates; callers decide
// whether those coordinates are degrees or projected meters.
package geomath

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// PointInRing reports whether c falls inside the ring using an even-odd
// ray cast. Points exactly on an edge count as inside.
func PointInRing(ring *geom.LinearRing, c geom.Coord) bool {
	return coordInRing(ring.FlatCoords(), c)
}

func coordInRing(flat []float64, c geom.Coord) bool {
	n := len(flat) / 2
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		if onSegment(xi, yi, xj, yj, c[0], c[1]) {
			return true
		}
		if (yi > c[1]) != (yj > c[1]) {
			x := (xj-xi)*(c[1]-yi)/(yj-yi) + xi
			if c[0] < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// onSegment reports whether (px,py) lies on the segment (x1,y1)-(x2,y2)
// within a small tolerance.
func onSegment(x1, y1, x2, y2, px, py float64) bool {
	const eps = 1e-12
	cross := (x2-x1)*(py-y1) - (y2-y1)*(px-x1)
	if math.Abs(cross) > eps*math.Max(1, math.Abs(x2-x1)+math.Abs(y2-y1)) {
		return false
	}
	return px >= math.Min(x1, x2)-eps && px <= math.Max(x1, x2)+eps &&
		py >= math.Min(y1, y2)-eps && py <= math.Max(y1, y2)+eps
}

// PolygonContains reports whether c is inside the polygon's exterior ring
// and outside all of its holes.
func PolygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !PointInRing(p.LinearRing(0), c) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if PointInRing(p.LinearRing(i), c) {
			return false
		}
	}
	return true
}

// MaskContains reports whether c is inside a polygon or multi-polygon mask.
// Any other geometry type is never a container.
func MaskContains(mask geom.T, c geom.Coord) bool {
	switch m := mask.(type) {
	case *geom.Polygon:
		return PolygonContains(m, c)
	case *geom.MultiPolygon:
		for i := 0; i < m.NumPolygons(); i++ {
			if PolygonContains(m.Polygon(i), c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RingArea returns the absolute shoelace area of a linear ring in the
// square of its coordinate unit.
func RingArea(ring *geom.LinearRing) float64 {
	return math.Abs(signedArea(ring.FlatCoords()))
}

func signedArea(flat []float64) float64 {
	n := len(flat) / 2
	if n < 3 {
		return 0
	}
	sum := 0.0
	j := n - 1
	for i := 0; i < n; i++ {
		sum += flat[2*j]*flat[2*i+1] - flat[2*i]*flat[2*j+1]
		j = i
	}
	return sum / 2
}

// PolygonArea returns the area of a polygon, exterior ring minus holes.
func PolygonArea(p *geom.Polygon) float64 {
	if p.NumLinearRings() == 0 {
		return 0
	}
	area := RingArea(p.LinearRing(0))
	for i := 1; i < p.NumLinearRings(); i++ {
		area -= RingArea(p.LinearRing(i))
	}
	if area < 0 {
		return 0
	}
	return area
}

// LineLength returns the summed segment length of a linestring.
func LineLength(ls *geom.LineString) float64 {
	return flatLength(ls.FlatCoords())
}

func flatLength(flat []float64) float64 {
	total := 0.0
	for i := 2; i < len(flat); i += 2 {
		total += math.Hypot(flat[i]-flat[i-2], flat[i+1]-flat[i-1])
	}
	return total
}

// Centroid returns the centroid of a polygon or multi-polygon. Polygon
// centroids are area-weighted over the exterior ring; a degenerate
// (zero-area) ring falls back to the vertex mean. Multi-polygon centroids
// weight each member by its area.
func Centroid(g geom.T) (geom.Coord, error) {
	switch m := g.(type) {
	case *geom.Polygon:
		if m.NumLinearRings() == 0 {
			return nil, eris.New("geomath: centroid of empty polygon")
		}
		x, y := ringCentroid(m.LinearRing(0).FlatCoords())
		return geom.Coord{x, y}, nil
	case *geom.MultiPolygon:
		if m.NumPolygons() == 0 {
			return nil, eris.New("geomath: centroid of empty multi-polygon")
		}
		var sx, sy, sw float64
		for i := 0; i < m.NumPolygons(); i++ {
			p := m.Polygon(i)
			if p.NumLinearRings() == 0 {
				continue
			}
			x, y := ringCentroid(p.LinearRing(0).FlatCoords())
			w := PolygonArea(p)
			if w == 0 {
				w = 1e-12
			}
			sx += x * w
			sy += y * w
			sw += w
		}
		if sw == 0 {
			return nil, eris.New("geomath: centroid of degenerate multi-polygon")
		}
		return geom.Coord{sx / sw, sy / sw}, nil
	default:
		return nil, eris.Errorf("geomath: centroid unsupported for %T", g)
	}
}

// ringCentroid computes the area-weighted centroid of a closed ring,
// falling back to the vertex mean when the ring has no area.
func ringCentroid(flat []float64) (float64, float64) {
	n := len(flat) / 2
	a := signedArea(flat)
	if math.Abs(a) < 1e-12 {
		var sx, sy float64
		for i := 0; i < n; i++ {
			sx += flat[2*i]
			sy += flat[2*i+1]
		}
		return sx / float64(n), sy / float64(n)
	}
	var cx, cy float64
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		cross := xj*yi - xi*yj
		cx += (xj + xi) * cross
		cy += (yj + yi) * cross
		j = i
	}
	return cx / (6 * a), cy / (6 * a)
}
