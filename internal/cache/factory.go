package cache

import (
	"fmt"

	"go.uber.org/zap"
)

type Options struct {
	Type        string
	MemoryTiles int
	FileDir     string
	SQLitePath  string
	Redis       RedisConfig
}

// NewCache creates a cache instance based on the cache type
func NewCache(opts Options, log *zap.Logger) (Cache, error) {
	switch opts.Type {
	case "memory":
		log.Info("Using memory cache", zap.Int("max_tiles", opts.MemoryTiles))
		return NewMemoryCache(opts.MemoryTiles), nil
	case "file":
		log.Info("Using file cache", zap.String("cache_dir", opts.FileDir))
		return NewFileCache(opts.FileDir, log)
	case "sqlite":
		log.Info("Using sqlite cache", zap.String("path", opts.SQLitePath))
		return NewSQLiteCache(opts.SQLitePath, log)
	case "redis":
		log.Info("Using redis cache", zap.String("addr", opts.Redis.Addr), zap.Duration("ttl", opts.Redis.TTL))
		return NewRedisCache(opts.Redis, log)
	case "disabled":
		log.Info("Cache disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, file, sqlite, redis, disabled)", opts.Type)
	}
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*FileCache)(nil)
	_ Cache = (*SQLiteCache)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*NoopCache)(nil)
)
