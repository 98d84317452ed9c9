package layer

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/arikscherm/map-trail-miles/internal/geomath"
)

// Clip intersects every layer with the mask and inserts the mask itself
// under MaskName. Features entirely outside the mask are dropped; features
// straddling the boundary are truncated to the part inside. Empty input is
// fine: the result then carries only the mask.
//
// Lines are clipped exactly against any simple-polygon mask by parametric
// edge splitting. Polygon features are clipped with Sutherland-Hodgman
// against the mask's exterior ring, which is exact for convex masks (every
// bounding-box mask) and a boundary approximation for concave geocoded ones.
func Clip(mask geom.T, layers Set) Set {
	out := make(Set, len(layers)+1)
	for name, l := range layers {
		if name == MaskName {
			continue
		}
		clipped := FeatureLayer{Name: l.Name}
		for _, f := range l.Features {
			g := clipGeom(mask, f.Geom)
			if g == nil {
				continue
			}
			clipped.Features = append(clipped.Features, Feature{Geom: g, Tags: f.Tags})
		}
		if len(l.Features) > 0 && len(clipped.Features) == 0 {
			zap.L().Debug("layer clipped to nothing", zap.String("layer", name))
		}
		out[name] = clipped
	}
	out[MaskName] = FeatureLayer{
		Name:     MaskName,
		Features: []Feature{{Geom: mask}},
	}
	return out
}

// clipGeom clips a single geometry, returning nil when nothing is left.
func clipGeom(mask geom.T, g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		if geomath.MaskContains(mask, t.Coords()) {
			return t
		}
		return nil
	case *geom.LineString:
		return clipLine(mask, t)
	case *geom.MultiLineString:
		out := geom.NewMultiLineString(geom.XY)
		for i := 0; i < t.NumLineStrings(); i++ {
			appendClipped(out, clipLine(mask, t.LineString(i)))
		}
		return collapseMultiLine(out)
	case *geom.Polygon:
		return clipPolygon(mask, t)
	case *geom.MultiPolygon:
		out := geom.NewMultiPolygon(geom.XY)
		for i := 0; i < t.NumPolygons(); i++ {
			c := clipPolygon(mask, t.Polygon(i))
			if c == nil {
				continue
			}
			switch cc := c.(type) {
			case *geom.Polygon:
				_ = out.Push(cc)
			case *geom.MultiPolygon:
				for j := 0; j < cc.NumPolygons(); j++ {
					_ = out.Push(cc.Polygon(j))
				}
			}
		}
		if out.NumPolygons() == 0 {
			return nil
		}
		if out.NumPolygons() == 1 {
			return out.Polygon(0)
		}
		return out
	default:
		// Unknown geometry types pass through untouched rather than being
		// silently discarded.
		return g
	}
}

func appendClipped(dst *geom.MultiLineString, g geom.T) {
	switch c := g.(type) {
	case *geom.LineString:
		_ = dst.Push(c)
	case *geom.MultiLineString:
		for i := 0; i < c.NumLineStrings(); i++ {
			_ = dst.Push(c.LineString(i))
		}
	}
}

func collapseMultiLine(mls *geom.MultiLineString) geom.T {
	switch mls.NumLineStrings() {
	case 0:
		return nil
	case 1:
		return mls.LineString(0)
	default:
		return mls
	}
}

// clipLine keeps the in-mask portions of a linestring. Each segment is split
// at its intersections with the mask boundary; sub-segments whose midpoint
// is inside survive. Contiguous surviving pieces are stitched back together.
func clipLine(mask geom.T, ls *geom.LineString) geom.T {
	flat := ls.FlatCoords()
	n := len(flat) / 2
	if n < 2 {
		return nil
	}

	edges := maskEdges(mask)
	out := geom.NewMultiLineString(geom.XY)
	var current []float64

	flush := func() {
		if len(current) >= 4 {
			_ = out.Push(geom.NewLineStringFlat(geom.XY, current))
		}
		current = nil
	}

	for i := 0; i < n-1; i++ {
		x0, y0 := flat[2*i], flat[2*i+1]
		x1, y1 := flat[2*i+2], flat[2*i+3]

		ts := segmentSplits(x0, y0, x1, y1, edges)
		for j := 0; j < len(ts)-1; j++ {
			a, b := ts[j], ts[j+1]
			if b-a < 1e-12 {
				continue
			}
			mx := x0 + (x1-x0)*(a+b)/2
			my := y0 + (y1-y0)*(a+b)/2
			ax, ay := x0+(x1-x0)*a, y0+(y1-y0)*a
			bx, by := x0+(x1-x0)*b, y0+(y1-y0)*b

			if geomath.MaskContains(mask, geom.Coord{mx, my}) {
				if len(current) == 0 {
					current = append(current, ax, ay)
				} else {
					// Continue only when contiguous with the previous piece.
					px, py := current[len(current)-2], current[len(current)-1]
					if math.Abs(px-ax) > 1e-12 || math.Abs(py-ay) > 1e-12 {
						flush()
						current = append(current, ax, ay)
					}
				}
				current = append(current, bx, by)
			} else {
				flush()
			}
		}
	}
	flush()

	return collapseMultiLine(out)
}

// segmentSplits returns sorted parametric positions [0..1] where the segment
// crosses any mask edge, always including the endpoints.
func segmentSplits(x0, y0, x1, y1 float64, edges [][4]float64) []float64 {
	ts := []float64{0, 1}
	for _, e := range edges {
		t, ok := segmentIntersection(x0, y0, x1, y1, e[0], e[1], e[2], e[3])
		if ok && t > 0 && t < 1 {
			ts = append(ts, t)
		}
	}
	sortFloats(ts)
	return ts
}

// segmentIntersection returns the parameter t on segment p where p and q
// properly intersect.
func segmentIntersection(px0, py0, px1, py1, qx0, qy0, qx1, qy1 float64) (float64, bool) {
	rx, ry := px1-px0, py1-py0
	sx, sy := qx1-qx0, qy1-qy0
	denom := rx*sy - ry*sx
	if math.Abs(denom) < 1e-15 {
		return 0, false
	}
	t := ((qx0-px0)*sy - (qy0-py0)*sx) / denom
	u := ((qx0-px0)*ry - (qy0-py0)*rx) / denom
	if u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// maskEdges flattens every ring of the mask into line segments.
func maskEdges(mask geom.T) [][4]float64 {
	var edges [][4]float64
	addRing := func(flat []float64) {
		n := len(flat) / 2
		for i := 0; i < n-1; i++ {
			edges = append(edges, [4]float64{flat[2*i], flat[2*i+1], flat[2*i+2], flat[2*i+3]})
		}
	}
	switch m := mask.(type) {
	case *geom.Polygon:
		for i := 0; i < m.NumLinearRings(); i++ {
			addRing(m.LinearRing(i).FlatCoords())
		}
	case *geom.MultiPolygon:
		for i := 0; i < m.NumPolygons(); i++ {
			p := m.Polygon(i)
			for j := 0; j < p.NumLinearRings(); j++ {
				addRing(p.LinearRing(j).FlatCoords())
			}
		}
	}
	return edges
}

// clipPolygon cuts a polygon feature to the mask. Multi-polygon masks clip
// against each member and collect the pieces.
func clipPolygon(mask geom.T, p *geom.Polygon) geom.T {
	switch m := mask.(type) {
	case *geom.Polygon:
		return clipPolygonAgainst(m, p)
	case *geom.MultiPolygon:
		out := geom.NewMultiPolygon(geom.XY)
		for i := 0; i < m.NumPolygons(); i++ {
			if c := clipPolygonAgainst(m.Polygon(i), p); c != nil {
				if poly, ok := c.(*geom.Polygon); ok {
					_ = out.Push(poly)
				}
			}
		}
		if out.NumPolygons() == 0 {
			return nil
		}
		if out.NumPolygons() == 1 {
			return out.Polygon(0)
		}
		return out
	default:
		return nil
	}
}

// clipPolygonAgainst runs Sutherland-Hodgman on the subject's exterior ring
// against the clip polygon's exterior ring. Holes in the subject are dropped
// once clipping actually cuts something.
func clipPolygonAgainst(clip *geom.Polygon, subject *geom.Polygon) geom.T {
	if clip.NumLinearRings() == 0 || subject.NumLinearRings() == 0 {
		return nil
	}

	// Fast path: subject entirely inside the clip ring survives untouched,
	// holes included.
	if allInside(clip, subject.LinearRing(0).FlatCoords()) {
		return subject
	}

	clipFlat := ccwRing(clip.LinearRing(0).FlatCoords())
	outFlat := ringCopy(subject.LinearRing(0).FlatCoords())

	cn := len(clipFlat) / 2
	for i := 0; i < cn-1 && len(outFlat) >= 6; i++ {
		ax, ay := clipFlat[2*i], clipFlat[2*i+1]
		bx, by := clipFlat[2*i+2], clipFlat[2*i+3]
		outFlat = clipRingByEdge(outFlat, ax, ay, bx, by)
	}
	if len(outFlat) < 6 {
		return nil
	}

	// Close the ring.
	if outFlat[0] != outFlat[len(outFlat)-2] || outFlat[1] != outFlat[len(outFlat)-1] {
		outFlat = append(outFlat, outFlat[0], outFlat[1])
	}
	return geom.NewPolygonFlat(geom.XY, outFlat, []int{len(outFlat)})
}

func allInside(clip *geom.Polygon, flat []float64) bool {
	for i := 0; i+1 < len(flat); i += 2 {
		if !geomath.PolygonContains(clip, geom.Coord{flat[i], flat[i+1]}) {
			return false
		}
	}
	return true
}

// clipRingByEdge keeps the part of an open ring on the left of edge a->b.
func clipRingByEdge(flat []float64, ax, ay, bx, by float64) []float64 {
	inside := func(x, y float64) bool {
		return (bx-ax)*(y-ay)-(by-ay)*(x-ax) >= 0
	}
	intersect := func(x0, y0, x1, y1 float64) (float64, float64) {
		dx, dy := x1-x0, y1-y0
		ex, ey := bx-ax, by-ay
		denom := dx*ey - dy*ex
		if math.Abs(denom) < 1e-15 {
			return x1, y1
		}
		t := ((ax-x0)*ey - (ay-y0)*ex) / denom
		return x0 + t*dx, y0 + t*dy
	}

	n := len(flat) / 2
	var out []float64
	for i := 0; i < n; i++ {
		cx, cy := flat[2*i], flat[2*i+1]
		px, py := flat[2*((i+n-1)%n)], flat[2*((i+n-1)%n)+1]
		cIn, pIn := inside(cx, cy), inside(px, py)
		switch {
		case cIn && pIn:
			out = append(out, cx, cy)
		case cIn && !pIn:
			ix, iy := intersect(px, py, cx, cy)
			out = append(out, ix, iy, cx, cy)
		case !cIn && pIn:
			ix, iy := intersect(px, py, cx, cy)
			out = append(out, ix, iy)
		}
	}
	return out
}

// ccwRing returns the ring in counter-clockwise order so that the interior
// is to the left of each directed edge.
func ccwRing(flat []float64) []float64 {
	if signedAreaFlat(flat) >= 0 {
		return ringCopy(flat)
	}
	n := len(flat) / 2
	rev := make([]float64, 0, len(flat))
	for i := n - 1; i >= 0; i-- {
		rev = append(rev, flat[2*i], flat[2*i+1])
	}
	return rev
}

// ringCopy returns the ring without its closing coordinate, as an open ring.
func ringCopy(flat []float64) []float64 {
	n := len(flat) / 2
	if n > 1 && flat[0] == flat[2*(n-1)] && flat[1] == flat[2*(n-1)+1] {
		flat = flat[:2*(n-1)]
	}
	out := make([]float64, len(flat))
	copy(out, flat)
	return out
}

func signedAreaFlat(flat []float64) float64 {
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
