package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"choropleth/internal/app"
	"choropleth/internal/config"
	httphandlers "choropleth/internal/http"
	"choropleth/internal/logger"
	"choropleth/internal/telemetry"
	"choropleth/internal/tile_renderer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	shutdownTracer, err := telemetry.InitTracer(context.Background(), telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	log.Info("Starting choropleth server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
	)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	handlers := httphandlers.New(cfg, log, a.Layers, a.Renderer)

	warmupCtx, stopWarmup := context.WithCancel(context.Background())
	defer stopWarmup()
	if cfg.WarmupLevels > 0 {
		go warmupTiles(warmupCtx, cfg.WarmupLevels, cfg.MaxZoom, cfg.WarmupWorkers, a, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopWarmup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracer(ctx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	log.Info("Server stopped")
}

// warmupTiles renders zooms 0..levels of every layer in its default style.
func warmupTiles(ctx context.Context, levels, maxZoom, workerLimit int, a *app.App, log *zap.Logger) {
	layers := a.Layers.GetLayers()
	if len(layers) == 0 {
		return
	}

	if levels > maxZoom {
		levels = maxZoom
	}

	log.Info("Starting tile warmup", zap.Int("levels", levels), zap.Int("layers", len(layers)))

	for _, layer := range layers {
		stats := a.Renderer.Seed(ctx, tile_renderer.SeedOptions{
			Layer:   layer.ID,
			MinZoom: 0,
			MaxZoom: levels,
			Workers: workerLimit,
		}, nil)

		log.Info("Layer warmup finished",
			zap.String("layer", layer.ID),
			zap.Int64("rendered", stats.Rendered),
			zap.Int64("skipped", stats.Skipped),
			zap.Int64("failed", stats.Failed),
		)
	}

	log.Info("Tile warmup completed")
}
