package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		Port          int    `env:"PORT" envDefault:"8080"`
		DataDir       string `env:"DATA_DIR" envDefault:"/data"`
		DefaultLayer  string `env:"DEFAULT_LAYER" envDefault:"countries"`
		MaxZoom       int    `env:"MAX_ZOOM" envDefault:"20"`
		WarmupLevels  int    `env:"WARMUP_LEVELS" envDefault:"1"`
		WarmupWorkers int    `env:"WARMUP_WORKERS" envDefault:"1"`
		LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
		AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:""`

		Cache     Cache
		Redis     Redis     `envPrefix:"REDIS_"`
		Encoder   Encoder
		Vips      Vips      `envPrefix:"VIPS_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
	}

	Cache struct {
		Type        string `env:"CACHE" envDefault:"memory"`
		MemoryTiles int    `env:"CACHE_MEMORY_TILES" envDefault:"2000"`
		FileDir     string `env:"CACHE_FILE_DIR"`
		SQLitePath  string `env:"SQLITE_PATH"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Encoder struct {
		Name        string `env:"ENCODER" envDefault:"png"`
		Compression string `env:"PNG_COMPRESSION" envDefault:"default"`
	}

	Vips struct {
		MaxCacheMB  int  `env:"MAX_CACHE_MB" envDefault:"256"`
		Concurrency int  `env:"CONCURRENCY" envDefault:"1"`
		Palette     bool `env:"PALETTE" envDefault:"false"`
	}

	Telemetry struct {
		Enabled      bool   `env:"ENABLED" envDefault:"false"`
		ServiceName  string `env:"SERVICE_NAME" envDefault:"choropleth"`
		OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}
)

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Cache.FileDir == "" {
		cfg.Cache.FileDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = filepath.Join(cfg.DataDir, "tiles.db")
	}

	return &cfg, nil
}
