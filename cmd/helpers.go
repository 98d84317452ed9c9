package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arikscherm/map-trail-miles/internal/area"
	"github.com/arikscherm/map-trail-miles/internal/pipeline"
	"github.com/arikscherm/map-trail-miles/internal/projection"
	"github.com/arikscherm/map-trail-miles/internal/source"
	"github.com/arikscherm/map-trail-miles/pkg/nominatim"
)

// parseArea turns the --bbox/--place flag pair into an Area. Exactly one of
// the two must be given.
func parseArea(bboxFlag, placeFlag string) (area.Area, error) {
	switch {
	case bboxFlag != "" && placeFlag != "":
		return area.Area{}, eris.Wrap(area.ErrInvalidAreaType, "--bbox and --place are mutually exclusive")
	case bboxFlag != "":
		bb, err := area.ParseBBox(bboxFlag)
		if err != nil {
			return area.Area{}, err
		}
		return area.Area{BBox: bb}, nil
	case placeFlag != "":
		return area.Area{Place: placeFlag}, nil
	default:
		return area.Area{}, eris.Wrap(area.ErrInvalidAreaType, "one of --bbox or --place is required")
	}
}

// initSource builds the configured feature backend, wrapped in the fetch
// cache unless disabled. The returned cleanup releases backend resources.
func initSource(ctx context.Context, driver string) (source.Source, func(), error) {
	var src source.Source
	cleanup := func() {}

	switch driver {
	case "overpass":
		src = source.NewOverpass(cfg.Overpass.URL, cfg.Overpass.UserAgent,
			source.WithOverpassRateLimit(cfg.Overpass.RateLimit),
			source.WithOverpassTimeout(cfg.Overpass.TimeoutSecs),
		)
	case "postgis":
		pool, err := pgxpool.New(ctx, cfg.PostGIS.DatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "connect postgis")
		}
		src, err = source.NewPostGIS(pool, cfg.PostGIS.Table)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		cleanup = pool.Close
	case "shapefile":
		var err error
		src, err = source.NewShapefiles(cfg.Source.ShapefileDir)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, eris.Errorf("unknown source driver %q", driver)
	}

	if cfg.Cache.Disabled {
		return src, cleanup, nil
	}
	cached, err := source.NewCache(cfg.Cache.Path, src, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	if err != nil {
		zap.L().Warn("fetch cache unavailable, continuing without it", zap.Error(err))
		return src, cleanup, nil
	}
	inner := cleanup
	return cached, func() {
		_ = cached.Close()
		inner()
	}, nil
}

// initPipeline assembles the pipeline from config and flags.
func initPipeline(ctx context.Context, driver, layersFile string, renderer pipeline.Renderer) (*pipeline.Pipeline, func(), error) {
	if driver == "" {
		driver = cfg.Source.Driver
	}
	if layersFile == "" {
		layersFile = cfg.Source.LayersFile
	}

	layers := source.DefaultLayers()
	if layersFile != "" {
		var err error
		layers, err = source.LoadLayers(layersFile)
		if err != nil {
			return nil, nil, err
		}
	}

	table, err := projection.LoadTable()
	if err != nil {
		return nil, nil, err
	}

	src, cleanup, err := initSource(ctx, driver)
	if err != nil {
		return nil, nil, err
	}

	geocoder := nominatim.NewClient(cfg.Nominatim.UserAgent,
		nominatim.WithBaseURL(cfg.Nominatim.URL),
		nominatim.WithRateLimit(cfg.Nominatim.RateLimit),
	)

	p := pipeline.New(pipeline.Options{
		Builder:  area.Builder{Geocoder: geocoder},
		Source:   src,
		Table:    table,
		Renderer: renderer,
		Layers:   layers,
		Parallel: cfg.Source.FetchParallel,
	})
	return p, cleanup, nil
}
