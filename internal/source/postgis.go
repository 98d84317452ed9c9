package source

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
)

// Querier is the subset of a pgx pool the PostGIS source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// identPattern allows schema-qualified identifiers only, preventing SQL
// injection through the table name.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// PostGIS reads tagged features from a PostGIS table with a `geom` geometry
// column (SRID 4326) and a `tags` jsonb column, for deployments that mirror
// OSM extracts locally.
type PostGIS struct {
	pool  Querier
	table string
}

// NewPostGIS creates a PostGIS source over the given table.
func NewPostGIS(pool Querier, table string) (*PostGIS, error) {
	if !identPattern.MatchString(table) {
		return nil, eris.Errorf("postgis: invalid table name %q", table)
	}
	return &PostGIS{pool: pool, table: table}, nil
}

// Fetch implements Source with a bounding-box index scan plus tag predicates.
func (p *PostGIS) Fetch(ctx context.Context, _ string, bbox area.BoundingBox, spec LayerSpec) ([]layer.Feature, error) {
	where, args := tagPredicates(spec, 5)
	sql := fmt.Sprintf(
		`SELECT tags, ST_AsBinary(geom) FROM %s
		 WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326) AND (%s)`,
		p.table, where,
	)
	queryArgs := append([]any{bbox.West, bbox.South, bbox.East, bbox.North}, args...)

	rows, err := p.pool.Query(ctx, sql, queryArgs...)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: query features")
	}
	defer rows.Close()

	var features []layer.Feature
	for rows.Next() {
		var tagsJSON []byte
		var wkbData []byte
		if err := rows.Scan(&tagsJSON, &wkbData); err != nil {
			return nil, eris.Wrap(err, "postgis: scan feature row")
		}

		var tags map[string]string
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &tags); err != nil {
				return nil, eris.Wrap(err, "postgis: decode tags")
			}
		}

		g, err := wkb.Unmarshal(wkbData)
		if err != nil {
			return nil, eris.Wrap(err, "postgis: decode geometry")
		}
		features = append(features, layer.Feature{Geom: g, Tags: tags})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate feature rows")
	}
	return features, nil
}

// tagPredicates renders the OR-ed tag filters as jsonb predicates starting
// at the given placeholder ordinal.
func tagPredicates(spec LayerSpec, firstArg int) (string, []any) {
	var clauses []string
	var args []any
	n := firstArg
	for _, f := range spec {
		if len(f.Values) == 0 {
			clauses = append(clauses, fmt.Sprintf("tags ? $%d", n))
			args = append(args, f.Key)
			n++
			continue
		}
		clauses = append(clauses, fmt.Sprintf("tags->>$%d = ANY($%d)", n, n+1))
		args = append(args, f.Key, f.Values)
		n += 2
	}
	if len(clauses) == 0 {
		return "FALSE", nil
	}
	return strings.Join(clauses, " OR "), args
}
