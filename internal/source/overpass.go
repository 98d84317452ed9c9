package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
	"github.com/arikscherm/map-trail-miles/internal/resilience"
)

// arealKeys mark tags whose closed ways represent areas rather than rings
// of a route.
var arealKeys = map[string]bool{
	"building": true,
	"landuse":  true,
	"leisure":  true,
	"natural":  true,
	"water":    true,
	"boundary": true,
}

// Overpass fetches features from an Overpass API endpoint.
type Overpass struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeoutSec int
	retry      resilience.RetryConfig
}

// OverpassOption configures the Overpass client.
type OverpassOption func(*Overpass)

// WithOverpassHTTPClient replaces the underlying HTTP client.
func WithOverpassHTTPClient(c *http.Client) OverpassOption {
	return func(o *Overpass) { o.httpClient = c }
}

// WithOverpassRateLimit sets the request rate in requests per second.
func WithOverpassRateLimit(rps float64) OverpassOption {
	return func(o *Overpass) {
		if rps > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithOverpassTimeout sets the server-side query timeout in seconds.
func WithOverpassTimeout(sec int) OverpassOption {
	return func(o *Overpass) {
		if sec > 0 {
			o.timeoutSec = sec
		}
	}
}

// WithOverpassRetry overrides the retry policy.
func WithOverpassRetry(cfg resilience.RetryConfig) OverpassOption {
	return func(o *Overpass) { o.retry = cfg }
}

// NewOverpass creates an Overpass client against the given interpreter URL.
func NewOverpass(baseURL, userAgent string, opts ...OverpassOption) *Overpass {
	o := &Overpass{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 1), // public endpoint etiquette
		timeoutSec: 25,
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// overpassElement is one element of an Overpass JSON response.
type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
	Members []struct {
		Type     string `json:"type"`
		Role     string `json:"role"`
		Geometry []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"geometry"`
	} `json:"members"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// Fetch implements Source: it runs one Overpass query for the layer's tag
// filters over the bounding box and converts the response elements into
// features. An empty result is not an error; the classifier and the mileage
// stage decide what emptiness means.
func (o *Overpass) Fetch(ctx context.Context, name string, bbox area.BoundingBox, spec LayerSpec) ([]layer.Feature, error) {
	query := o.buildQuery(bbox, spec)

	retryCfg := o.retry
	retryCfg.OnRetry = resilience.RetryLogger("overpass", name)
	parsed, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*overpassResponse, error) {
		return o.query(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	return elementsToFeatures(parsed.Elements), nil
}

func (o *Overpass) query(ctx context.Context, query string) (*overpassResponse, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := eris.Errorf("overpass: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}
	return &parsed, nil
}

// buildQuery renders the OverpassQL union for the layer's tag filters.
func (o *Overpass) buildQuery(bbox area.BoundingBox, spec LayerSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", o.timeoutSec)
	box := fmt.Sprintf("(%g,%g,%g,%g)", bbox.South, bbox.West, bbox.North, bbox.East)
	for _, f := range spec {
		if len(f.Values) == 0 {
			fmt.Fprintf(&b, "  nwr[%q]%s;\n", f.Key, box)
			continue
		}
		fmt.Fprintf(&b, "  nwr[%q~\"^(%s)$\"]%s;\n", f.Key, strings.Join(f.Values, "|"), box)
	}
	b.WriteString(");\nout geom;")
	return b.String()
}

func elementsToFeatures(elements []overpassElement) []layer.Feature {
	var features []layer.Feature
	for _, el := range elements {
		g := elementGeometry(el)
		if g == nil {
			continue
		}
		features = append(features, layer.Feature{Geom: g, Tags: el.Tags})
	}
	return features
}

func elementGeometry(el overpassElement) geom.T {
	switch el.Type {
	case "node":
		if len(el.Tags) == 0 {
			return nil // untagged way vertices arrive as bare nodes
		}
		return geom.NewPointFlat(geom.XY, []float64{el.Lon, el.Lat}).SetSRID(4326)

	case "way":
		flat := make([]float64, 0, len(el.Geometry)*2)
		for _, c := range el.Geometry {
			flat = append(flat, c.Lon, c.Lat)
		}
		return wayGeometry(flat, el.Tags)

	case "relation":
		// Multipolygon relations: assemble the outer rings that arrive with
		// inline geometry.
		mp := geom.NewMultiPolygon(geom.XY)
		for _, m := range el.Members {
			if m.Type != "way" || m.Role == "inner" || len(m.Geometry) < 4 {
				continue
			}
			flat := make([]float64, 0, len(m.Geometry)*2)
			for _, c := range m.Geometry {
				flat = append(flat, c.Lon, c.Lat)
			}
			if !isClosed(flat) {
				continue
			}
			poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
			if err := mp.Push(poly); err != nil {
				zap.L().Debug("overpass: skipping malformed relation ring", zap.Int64("relation", el.ID), zap.Error(err))
			}
		}
		if mp.NumPolygons() == 0 {
			return nil
		}
		if mp.NumPolygons() == 1 {
			return mp.Polygon(0)
		}
		return mp.SetSRID(4326)

	default:
		return nil
	}
}

// wayGeometry decides whether a way is a line or an area: closed ways with
// an areal tag become polygons, everything else stays a linestring.
func wayGeometry(flat []float64, tags map[string]string) geom.T {
	if len(flat) < 4 {
		return nil
	}
	if isClosed(flat) && isAreal(tags) {
		return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
	}
	return geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326)
}

func isClosed(flat []float64) bool {
	n := len(flat)
	return n >= 8 && flat[0] == flat[n-2] && flat[1] == flat[n-1]
}

func isAreal(tags map[string]string) bool {
	if tags["area"] == "yes" {
		return true
	}
	for k := range tags {
		if arealKeys[k] {
			return true
		}
	}
	return false
}
