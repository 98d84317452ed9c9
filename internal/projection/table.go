package projection

import (
	_ "embed"
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/arikscherm/map-trail-miles/internal/geomath"
)

// ErrNoProjectionFound means the mask centroid fell outside every candidate's
// validity region, including the global fallback. With a correctly populated
// table this is unreachable; it is surfaced as fatal if it occurs.
var ErrNoProjectionFound = eris.New("projection: no candidate contains the area centroid")

//go:embed projections.geojson
var projectionsGeoJSON []byte

// Candidate is one projected CRS with its zone of minimal distortion.
type Candidate struct {
	Code   string
	Name   string
	Region *geom.Polygon
	proj   projector
}

// Forward projects a WGS84 coordinate into the candidate's planar system,
// in meters.
func (c *Candidate) Forward(lonDeg, latDeg float64) (x, y float64) {
	return c.proj.forward(lonDeg, latDeg)
}

// Table is the immutable projection reference table, loaded once at startup
// and passed by reference. Concurrent reads are safe.
type Table struct {
	candidates []Candidate
	compare    projector // EPSG:3395, used only for region-area comparison
}

// LoadTable parses the embedded reference table. The table ships with at
// least one globally valid fallback entry so selection is total.
func LoadTable() (*Table, error) {
	return loadTableFrom(projectionsGeoJSON)
}

func loadTableFrom(data []byte) (*Table, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "projection: parse reference table")
	}

	t := &Table{
		compare: mercator{ell: ellipsoids["WGS84"]},
	}

	hasGlobal := false
	for _, f := range fc.Features {
		region, ok := f.Geometry.(*geom.Polygon)
		if !ok {
			return nil, eris.Errorf("projection: candidate region must be a polygon, got %T", f.Geometry)
		}
		p, code, name, err := parseParams(f.Properties)
		if err != nil {
			return nil, err
		}
		proj, err := newProjector(p)
		if err != nil {
			return nil, eris.Wrapf(err, "projection: candidate %s", code)
		}
		t.candidates = append(t.candidates, Candidate{
			Code:   code,
			Name:   name,
			Region: region,
			proj:   proj,
		})
		b := region.Bounds()
		if b.Min(0) <= -180 && b.Max(0) >= 180 && b.Min(1) <= -90 && b.Max(1) >= 90 {
			hasGlobal = true
		}
	}

	if len(t.candidates) == 0 {
		return nil, eris.New("projection: reference table is empty")
	}
	if !hasGlobal {
		return nil, eris.New("projection: reference table lacks a global fallback entry")
	}
	return t, nil
}

func parseParams(props map[string]interface{}) (params, string, string, error) {
	str := func(key string) string {
		s, _ := props[key].(string)
		return s
	}
	num := func(key string) float64 {
		f, _ := props[key].(float64)
		return f
	}

	code := str("code")
	if code == "" {
		return params{}, "", "", eris.New("projection: candidate missing code")
	}
	p := params{
		Type:  str("type"),
		Ellps: str("ellps"),
		Lon0:  num("lon_0"),
		Lat0:  num("lat_0"),
		Lat1:  num("lat_1"),
		Lat2:  num("lat_2"),
		LatTS: num("lat_ts"),
		K0:    num("k_0"),
		X0:    num("x_0"),
		Y0:    num("y_0"),
	}
	return p, code, str("name"), nil
}

// Candidates returns the table entries in load order.
func (t *Table) Candidates() []Candidate {
	return t.candidates
}

// Find returns the candidate with the given code, or nil.
func (t *Table) Find(code string) *Candidate {
	for i := range t.candidates {
		if t.candidates[i].Code == code {
			return &t.candidates[i]
		}
	}
	return nil
}

// Select picks the projected CRS for the mask: candidates whose validity
// region contains the mask centroid, narrowed to the one whose region has
// the smallest area when reprojected into World Mercator. Smaller zone means
// more locally specific, less distorting. Exact area ties keep the earliest
// table entry. Pure: depends only on the table and the mask.
func (t *Table) Select(mask geom.T) (*Candidate, error) {
	centroid, err := geomath.Centroid(mask)
	if err != nil {
		return nil, eris.Wrap(err, "projection: mask centroid")
	}

	var best *Candidate
	bestArea := math.Inf(1)
	for i := range t.candidates {
		c := &t.candidates[i]
		if !geomath.PolygonContains(c.Region, centroid) {
			continue
		}
		a := t.regionCompareArea(c.Region)
		if a < bestArea {
			best = c
			bestArea = a
		}
	}
	if best == nil {
		return nil, ErrNoProjectionFound
	}
	return best, nil
}

// regionCompareArea reprojects a validity region's exterior ring into the
// fixed comparison system and returns its planar area. Latitudes are clamped
// to Mercator's usable band so the whole-world fallback region stays finite
// (and maximal).
func (t *Table) regionCompareArea(region *geom.Polygon) float64 {
	const latLimit = 85.0
	flat := region.LinearRing(0).FlatCoords()
	projected := make([]float64, 0, len(flat))
	for i := 0; i+1 < len(flat); i += 2 {
		lat := math.Max(-latLimit, math.Min(latLimit, flat[i+1]))
		x, y := t.compare.forward(flat[i], lat)
		projected = append(projected, x, y)
	}
	ring := geom.NewLinearRingFlat(geom.XY, projected)
	return geomath.RingArea(ring)
}
