package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"choropleth/internal/app"
	"choropleth/internal/config"
	"choropleth/internal/logger"
	"choropleth/internal/tile_renderer"
)

func main() {
	layer := flag.String("layer", "", "layer id (default layer when empty)")
	styleName := flag.String("style", "", "style name (layer default when empty)")
	minZoom := flag.Int("min-zoom", 0, "first zoom level to render")
	maxZoom := flag.Int("max-zoom", 4, "last zoom level to render")
	bbox := flag.String("bbox", "", "lon/lat bounds as minLon,minLat,maxLon,maxLat (whole world when empty)")
	workers := flag.Int("workers", 4, "concurrent renders")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	bound, err := parseBBox(*bbox)
	if err != nil {
		log.Fatal("Invalid bbox", zap.Error(err))
	}
	if *minZoom < 0 || *maxZoom < *minZoom || *maxZoom > cfg.MaxZoom {
		log.Fatal("Invalid zoom range", zap.Int("min_zoom", *minZoom), zap.Int("max_zoom", *maxZoom), zap.Int("limit", cfg.MaxZoom))
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total := tile_renderer.CountTiles(bound, *minZoom, *maxZoom)
	log.Info("Seeding tiles",
		zap.String("layer", *layer),
		zap.Int("min_zoom", *minZoom),
		zap.Int("max_zoom", *maxZoom),
		zap.Int64("tiles", total),
	)

	bar := progressbar.Default(total, "seeding")
	stats := a.Renderer.Seed(ctx, tile_renderer.SeedOptions{
		Layer:   *layer,
		Style:   *styleName,
		MinZoom: *minZoom,
		MaxZoom: *maxZoom,
		Bound:   bound,
		Workers: *workers,
	}, func() { bar.Add(1) })
	bar.Finish()

	log.Info("Seeding finished",
		zap.Int64("rendered", stats.Rendered),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
	)
	if stats.Failed > 0 {
		a.Close()
		log.Sync()
		os.Exit(1)
	}
}

func parseBBox(raw string) (orb.Bound, error) {
	if raw == "" {
		return orb.Bound{}, nil
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("expected 4 comma separated numbers, got %d", len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min must be below max")
	}

	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
