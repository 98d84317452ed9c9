// Package pipeline runs the end-to-end map build: mask, fetch, clip,
// classify, measure, render.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/layer"
	"github.com/arikscherm/map-trail-miles/internal/projection"
	"github.com/arikscherm/map-trail-miles/internal/source"
	"github.com/arikscherm/map-trail-miles/internal/trail"
)

// TrailsLayer is the layer name the classifier and mileage stages read.
const TrailsLayer = "trails"

// Renderer is the drawing stage; satisfied by render.Renderer.
type Renderer interface {
	Render(layers layer.Set, title, path string) error
}

// Pipeline wires the stages together. It holds no per-run state, so one
// Pipeline may serve many runs.
type Pipeline struct {
	builder  area.Builder
	src      source.Source
	table    *projection.Table
	renderer Renderer
	layers   source.Layers
	parallel int
}

// Options configures a Pipeline.
type Options struct {
	Builder  area.Builder
	Source   source.Source
	Table    *projection.Table
	Renderer Renderer
	Layers   source.Layers // nil means source.DefaultLayers()
	Parallel int           // concurrent layer fetches; 0 means 4
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		builder:  opts.Builder,
		src:      opts.Source,
		table:    opts.Table,
		renderer: opts.Renderer,
		layers:   opts.Layers,
		parallel: opts.Parallel,
	}
	if p.layers == nil {
		p.layers = source.DefaultLayers()
	}
	if p.parallel <= 0 {
		p.parallel = 4
	}
	return p
}

// Result is what a run produces.
type Result struct {
	RunID   string
	Mileage *trail.Mileage // nil when no qualifying trails were found
	Title   string
	MapPath string // empty for measure-only runs
}

// Measure computes trail mileage for an area without rendering a map.
func (p *Pipeline) Measure(ctx context.Context, a area.Area) (*Result, error) {
	return p.run(ctx, a, "", "")
}

// Run builds the full map artifact under outDir and returns its path.
func (p *Pipeline) Run(ctx context.Context, a area.Area, outDir, format string) (*Result, error) {
	if p.renderer == nil {
		return nil, eris.New("pipeline: no renderer configured")
	}
	return p.run(ctx, a, outDir, format)
}

func (p *Pipeline) run(ctx context.Context, a area.Area, outDir, format string) (*Result, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID), zap.String("area", a.String()))

	mask, err := p.builder.Build(ctx, a)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build area mask")
	}
	bbox := maskBBox(mask)
	log.Info("area mask built",
		zap.Float64("north", bbox.North), zap.Float64("south", bbox.South),
		zap.Float64("east", bbox.East), zap.Float64("west", bbox.West),
	)

	raw := p.fetchLayers(ctx, log, bbox)
	clipped := layer.Clip(mask, raw) // inserts the mask under layer.MaskName
	trails := trail.Classify(clipped[TrailsLayer])
	trails.Name = TrailsLayer
	clipped[TrailsLayer] = trails

	result := &Result{RunID: runID}
	mileage, err := trail.ComputeMileage(p.table, mask, clipped[TrailsLayer])
	switch {
	case err == nil:
		result.Mileage = &mileage
		result.Title = successTitle(mileage)
		log.Info("trail mileage computed",
			zap.String("projection", mileage.ProjectionCode),
			zap.Float64("miles", mileage.TrailMiles),
		)
	case eris.Is(err, trail.ErrEmptyTrailSet):
		result.Title = "No trail miles found"
		log.Warn("no qualifying trails in area")
	default:
		return nil, eris.Wrap(err, "pipeline: compute mileage")
	}

	if outDir == "" {
		return result, nil
	}

	path := filepath.Join(outDir, slugify(a.String())+"-trails."+format)
	if err := p.renderer.Render(clipped, result.Title, path); err != nil {
		return nil, eris.Wrap(err, "pipeline: render map")
	}
	result.MapPath = path
	log.Info("map rendered", zap.String("path", path))
	return result, nil
}

// fetchLayers pulls every configured layer concurrently. A failed layer is
// logged and omitted; it never aborts the run.
func (p *Pipeline) fetchLayers(ctx context.Context, log *zap.Logger, bbox area.BoundingBox) layer.Set {
	var mu sync.Mutex
	fetched := make(layer.Set, len(p.layers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for name, spec := range p.layers {
		name, spec := name, spec
		g.Go(func() error {
			features, err := p.src.Fetch(gCtx, name, bbox, spec)
			if err != nil {
				log.Error("layer fetch failed, omitting layer",
					zap.String("layer", name),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			fetched[name] = layer.FeatureLayer{Name: name, Features: features}
			mu.Unlock()
			log.Debug("layer fetched",
				zap.String("layer", name),
				zap.Int("features", len(features)),
			)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return fetched
}

func successTitle(m trail.Mileage) string {
	return fmt.Sprintf("%.3f Miles of Trail Within Area of Interest Based on %s Projection",
		m.TrailMiles, m.ProjectionCode)
}

func maskBBox(mask geom.T) area.BoundingBox {
	b := mask.Bounds()
	return area.BoundingBox{
		North: b.Max(1),
		South: b.Min(1),
		East:  b.Max(0),
		West:  b.Min(0),
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9._-]+`)

// slugify turns an area label into a filesystem-friendly artifact name.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "area"
	}
	return s
}
