// Package projection holds the static projected-CRS reference table and the
// selector that picks the least-distorting system for an area of interest.
// Forward projection math covers the projection families the table uses:
// transverse Mercator, Lambert conformal conic, Mercator, and cylindrical
// equal-area, all ellipsoidal.
package projection

import (
	"math"

	"github.com/rotisserie/eris"
)

type ellipsoid struct {
	a  float64 // semi-major axis, meters
	e2 float64 // first eccentricity squared
}

var ellipsoids = map[string]ellipsoid{
	"WGS84": {a: 6378137.0, e2: 0.00669437999014132},
	"GRS80": {a: 6378137.0, e2: 0.00669438002290079},
}

// projector maps WGS84 degrees to planar meters.
type projector interface {
	forward(lonDeg, latDeg float64) (x, y float64)
}

// params carries proj-style parameters decoded from the reference table.
type params struct {
	Type  string  // tmerc | lcc | merc | cea
	Ellps string  // WGS84 | GRS80
	Lon0  float64 // central meridian
	Lat0  float64 // latitude of origin
	Lat1  float64 // first standard parallel (lcc)
	Lat2  float64 // second standard parallel (lcc)
	LatTS float64 // latitude of true scale (cea)
	K0    float64 // scale factor (tmerc)
	X0    float64 // false easting
	Y0    float64 // false northing
}

func newProjector(p params) (projector, error) {
	ell, ok := ellipsoids[p.Ellps]
	if !ok {
		return nil, eris.Errorf("projection: unknown ellipsoid %q", p.Ellps)
	}
	switch p.Type {
	case "tmerc":
		return newTransverseMercator(ell, p), nil
	case "lcc":
		return newLambertConformalConic(ell, p), nil
	case "merc":
		return mercator{ell: ell, lon0: rad(p.Lon0)}, nil
	case "cea":
		return newCylindricalEqualArea(ell, p), nil
	default:
		return nil, eris.Errorf("projection: unknown projection type %q", p.Type)
	}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// tsfn is the isometric latitude function t(phi) shared by the conformal
// projections.
func tsfn(phi, e float64) float64 {
	s := e * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-s)/(1+s), e/2)
}

// msfn is m(phi) = cos(phi)/sqrt(1 - e^2 sin^2 phi).
func msfn(phi, e2 float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-e2*s*s)
}

// transverseMercator implements the ellipsoidal series expansion.
type transverseMercator struct {
	ell      ellipsoid
	lon0     float64
	k0       float64
	x0, y0   float64
	m0       float64
	ep2      float64
	mc1, mc2 float64
	mc3, mc4 float64
}

func newTransverseMercator(ell ellipsoid, p params) *transverseMercator {
	e2 := ell.e2
	e4 := e2 * e2
	e6 := e4 * e2
	t := &transverseMercator{
		ell:  ell,
		lon0: rad(p.Lon0),
		k0:   p.K0,
		x0:   p.X0,
		y0:   p.Y0,
		ep2:  e2 / (1 - e2),
		mc1:  1 - e2/4 - 3*e4/64 - 5*e6/256,
		mc2:  3*e2/8 + 3*e4/32 + 45*e6/1024,
		mc3:  15*e4/256 + 45*e6/1024,
		mc4:  35 * e6 / 3072,
	}
	if t.k0 == 0 {
		t.k0 = 1
	}
	t.m0 = t.meridianArc(rad(p.Lat0))
	return t
}

func (t *transverseMercator) meridianArc(phi float64) float64 {
	return t.ell.a * (t.mc1*phi - t.mc2*math.Sin(2*phi) + t.mc3*math.Sin(4*phi) - t.mc4*math.Sin(6*phi))
}

func (t *transverseMercator) forward(lonDeg, latDeg float64) (float64, float64) {
	phi := rad(latDeg)
	lam := rad(lonDeg)

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := t.ell.a / math.Sqrt(1-t.ell.e2*sinPhi*sinPhi)
	tt := tanPhi * tanPhi
	c := t.ep2 * cosPhi * cosPhi
	a := (lam - t.lon0) * cosPhi
	m := t.meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := t.k0*n*(a+(1-tt+c)*a3/6+(5-18*tt+tt*tt+72*c-58*t.ep2)*a5/120) + t.x0
	y := t.k0*(m-t.m0+n*tanPhi*(a2/2+(5-tt+9*c+4*c*c)*a4/24+
		(61-58*tt+tt*tt+600*c-330*t.ep2)*a6/720)) + t.y0
	return x, y
}

// lambertConformalConic implements the two-standard-parallel form.
type lambertConformalConic struct {
	ell    ellipsoid
	lon0   float64
	x0, y0 float64
	n      float64
	f      float64
	rho0   float64
}

func newLambertConformalConic(ell ellipsoid, p params) *lambertConformalConic {
	e := math.Sqrt(ell.e2)
	phi0 := rad(p.Lat0)
	phi1 := rad(p.Lat1)
	phi2 := rad(p.Lat2)

	m1 := msfn(phi1, ell.e2)
	m2 := msfn(phi2, ell.e2)
	t0 := tsfn(phi0, e)
	t1 := tsfn(phi1, e)
	t2 := tsfn(phi2, e)

	var n float64
	if phi1 == phi2 {
		n = math.Sin(phi1)
	} else {
		n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	}
	f := m1 / (n * math.Pow(t1, n))

	return &lambertConformalConic{
		ell:  ell,
		lon0: rad(p.Lon0),
		x0:   p.X0,
		y0:   p.Y0,
		n:    n,
		f:    f,
		rho0: ell.a * f * math.Pow(t0, n),
	}
}

func (l *lambertConformalConic) forward(lonDeg, latDeg float64) (float64, float64) {
	e := math.Sqrt(l.ell.e2)
	phi := rad(latDeg)
	lam := rad(lonDeg)

	rho := l.ell.a * l.f * math.Pow(tsfn(phi, e), l.n)
	theta := l.n * (lam - l.lon0)

	x := l.x0 + rho*math.Sin(theta)
	y := l.y0 + l.rho0 - rho*math.Cos(theta)
	return x, y
}

// mercator is the ellipsoidal Mercator used only for validity-region area
// comparison (EPSG:3395).
type mercator struct {
	ell  ellipsoid
	lon0 float64
}

func (m mercator) forward(lonDeg, latDeg float64) (float64, float64) {
	e := math.Sqrt(m.ell.e2)
	phi := rad(latDeg)
	lam := rad(lonDeg)

	s := e * math.Sin(phi)
	x := m.ell.a * (lam - m.lon0)
	y := m.ell.a * math.Log(math.Tan(math.Pi/4+phi/2)*math.Pow((1-s)/(1+s), e/2))
	return x, y
}

// cylindricalEqualArea implements the ellipsoidal equal-area cylindrical
// projection (the EPSG:6933 global fallback).
type cylindricalEqualArea struct {
	ell    ellipsoid
	lon0   float64
	k0     float64
	x0, y0 float64
}

func newCylindricalEqualArea(ell ellipsoid, p params) cylindricalEqualArea {
	phiTS := rad(p.LatTS)
	s := math.Sin(phiTS)
	return cylindricalEqualArea{
		ell:  ell,
		lon0: rad(p.Lon0),
		k0:   math.Cos(phiTS) / math.Sqrt(1-ell.e2*s*s),
		x0:   p.X0,
		y0:   p.Y0,
	}
}

// authalicQ is Snyder's q function used by equal-area projections.
func authalicQ(phi, e2 float64) float64 {
	e := math.Sqrt(e2)
	s := math.Sin(phi)
	return (1 - e2) * (s/(1-e2*s*s) - (1/(2*e))*math.Log((1-e*s)/(1+e*s)))
}

func (c cylindricalEqualArea) forward(lonDeg, latDeg float64) (float64, float64) {
	phi := rad(latDeg)
	lam := rad(lonDeg)

	x := c.x0 + c.ell.a*c.k0*(lam-c.lon0)
	y := c.y0 + c.ell.a*authalicQ(phi, c.ell.e2)/(2*c.k0)
	return x, y
}
