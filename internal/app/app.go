package app

import (
	"fmt"
	"io"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"choropleth/internal/cache"
	"choropleth/internal/config"
	"choropleth/internal/encoder"
	"choropleth/internal/layer_list"
	"choropleth/internal/tile_renderer"
)

// App holds the components shared by the server and the seed command.
type App struct {
	Layers   *layer_list.Scanner
	Cache    cache.Cache
	Renderer *tile_renderer.Renderer

	log      *zap.Logger
	shutdown []func()
}

// New scans the data directory and builds the cache, encoder and renderer
// from cfg. Close releases whatever New started.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{log: log}

	if cfg.Encoder.Name == "vips" {
		a.startVips(cfg)
	}

	a.Layers = layer_list.New(cfg.DataDir, cfg.DefaultLayer, log)
	if err := a.Layers.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	tileCache, err := cache.NewCache(cache.Options{
		Type:        cfg.Cache.Type,
		MemoryTiles: cfg.Cache.MemoryTiles,
		FileDir:     cfg.Cache.FileDir,
		SQLitePath:  cfg.Cache.SQLitePath,
		Redis: cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		},
	}, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.Cache = tileCache
	if closer, ok := tileCache.(io.Closer); ok {
		a.shutdown = append(a.shutdown, func() {
			if err := closer.Close(); err != nil {
				log.Warn("Failed to close cache", zap.Error(err))
			}
		})
	}

	enc, err := encoder.New(cfg.Encoder.Name, encoder.Options{
		Compression: cfg.Encoder.Compression,
		Palette:     cfg.Vips.Palette,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	log.Info("Using encoder", zap.String("encoder", enc.Name()), zap.String("compression", cfg.Encoder.Compression))

	a.Renderer = tile_renderer.New(a.Layers, tileCache, enc, log)
	return a, nil
}

func (a *App) startVips(cfg *config.Config) {
	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.Vips.Concurrency,
		MaxCacheMem:      cfg.Vips.MaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                 // Disable disk cache
		MaxCacheSize:     0,                                 // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	log := a.log
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	a.shutdown = append(a.shutdown, vips.Shutdown)

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.Vips.MaxCacheMB),
		zap.Int("concurrency", cfg.Vips.Concurrency),
	)
}

// Close shuts components down in reverse start order.
func (a *App) Close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	a.shutdown = nil
}
