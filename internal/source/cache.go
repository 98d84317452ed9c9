package source

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
)

// Cache wraps a Source with an on-disk SQLite response cache so repeated
// runs over the same area do not hammer the upstream endpoint. Entries are
// keyed by layer name, bounding box, and tag filters, and expire after the
// TTL. Cache failures are logged and fall through to the inner source.
type Cache struct {
	db    *sql.DB
	inner Source
	ttl   time.Duration
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	key        TEXT PRIMARY KEY,
	layer      TEXT NOT NULL,
	body       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL DEFAULT (unixepoch()),
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`

// NewCache opens (or creates) the cache database at path and wraps inner.
func NewCache(path string, inner Source, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}
	return &Cache{db: db, inner: inner, ttl: ttl}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fetch implements Source with read-through caching.
func (c *Cache) Fetch(ctx context.Context, name string, bbox area.BoundingBox, spec LayerSpec) ([]layer.Feature, error) {
	key := cacheKey(name, bbox, spec)

	if features, ok := c.lookup(ctx, key); ok {
		zap.L().Debug("fetch cache hit", zap.String("layer", name))
		return features, nil
	}

	features, err := c.inner.Fetch(ctx, name, bbox, spec)
	if err != nil {
		return nil, err
	}
	if storeErr := c.store(ctx, key, name, features); storeErr != nil {
		zap.L().Debug("fetch cache store failed", zap.String("layer", name), zap.Error(storeErr))
	}
	return features, nil
}

func cacheKey(name string, bbox area.BoundingBox, spec LayerSpec) string {
	specJSON, _ := json.Marshal(spec)
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%.6f,%.6f,%.6f,%.6f|%s",
		name, bbox.North, bbox.South, bbox.East, bbox.West, specJSON))
	return hex.EncodeToString(h[:])
}

func (c *Cache) lookup(ctx context.Context, key string) ([]layer.Feature, bool) {
	var body []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT body FROM fetch_cache WHERE key = ? AND expires_at > unixepoch()`,
		key,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		zap.L().Debug("fetch cache lookup failed", zap.Error(err))
		return nil, false
	}

	features, err := decodeFeatures(body)
	if err != nil {
		zap.L().Debug("fetch cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return features, true
}

func (c *Cache) store(ctx context.Context, key, name string, features []layer.Feature) error {
	body, err := encodeFeatures(features)
	if err != nil {
		return err
	}
	expires := time.Now().Add(c.ttl).Unix()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (key, layer, body, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET body = excluded.body, cached_at = unixepoch(), expires_at = excluded.expires_at`,
		key, name, body, expires,
	)
	return eris.Wrap(err, "cache: store entry")
}

// DeleteExpired removes stale cache rows and returns how many went away.
func (c *Cache) DeleteExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM fetch_cache WHERE expires_at <= unixepoch()`)
	if err != nil {
		return 0, eris.Wrap(err, "cache: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "cache: rows affected")
}

// encodeFeatures serializes features as a GeoJSON feature collection with
// the tags carried in properties.
func encodeFeatures(features []layer.Feature) ([]byte, error) {
	fc := geojson.FeatureCollection{}
	for _, f := range features {
		props := make(map[string]interface{}, len(f.Tags))
		for k, v := range f.Tags {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Geom,
			Properties: props,
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "cache: encode features")
	}
	return data, nil
}

func decodeFeatures(data []byte) ([]layer.Feature, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "cache: decode features")
	}
	var features []layer.Feature
	for _, f := range fc.Features {
		tags := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if s, ok := v.(string); ok {
				tags[k] = s
			}
		}
		features = append(features, layer.Feature{Geom: f.Geometry, Tags: tags})
	}
	return features, nil
}
