// Package nominatim looks up place-name boundary polygons via the Nominatim
// search API.
package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/time/rate"

	"github.com/arikscherm/map-trail-miles/internal/resilience"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client queries Nominatim for place boundary geometry.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a Nominatim client. The user agent is mandatory per the
// public instance's usage policy.
func NewClient(userAgent string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 1), // public instance: max 1 req/s
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResult is one entry of a Nominatim search response.
type searchResult struct {
	DisplayName string          `json:"display_name"`
	OSMType     string          `json:"osm_type"`
	GeoJSON     json.RawMessage `json:"geojson"`
}

// Search returns the boundary geometry for a place name. The best match is
// taken; its geometry is whatever Nominatim has for the feature, so callers
// must be prepared for points and lines, not just polygons.
func (c *Client) Search(ctx context.Context, place string) (geom.T, error) {
	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("nominatim", "search")
	results, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]searchResult, error) {
		return c.search(ctx, place)
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil // no match; the caller decides what that means
	}

	match := results[0]
	if len(match.GeoJSON) == 0 {
		return nil, eris.Errorf("nominatim: match %q has no geometry", match.DisplayName)
	}

	var g geom.T
	if err := geojson.Unmarshal(match.GeoJSON, &g); err != nil {
		return nil, eris.Wrapf(err, "nominatim: decode geometry for %q", match.DisplayName)
	}
	return g, nil
}

func (c *Client) search(ctx context.Context, place string) ([]searchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit")
	}

	params := url.Values{
		"q":               {place},
		"format":          {"json"},
		"polygon_geojson": {"1"},
		"limit":           {"1"},
	}
	reqURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := eris.Errorf("nominatim: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, eris.Wrap(err, "nominatim: decode response")
	}
	return results, nil
}
