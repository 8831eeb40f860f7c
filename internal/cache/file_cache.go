package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// FileCache stores tiles on disk.
// Structure: {cacheDir}/{layer}/{style}/{z}/{x}_{y}.png
type FileCache struct {
	mu       sync.RWMutex
	cacheDir string
	logger   *zap.Logger
}

func NewFileCache(cacheDir string, logger *zap.Logger) (*FileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		cacheDir: cacheDir,
		logger:   logger,
	}, nil
}

func (c *FileCache) buildFilePath(key TileKey) string {
	dir := filepath.Join(c.cacheDir, key.Layer, key.Style, strconv.Itoa(key.Z))
	return filepath.Join(dir, fmt.Sprintf("%d_%d.png", key.X, key.Y))
}

func (c *FileCache) Has(key TileKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := os.Stat(c.buildFilePath(key))
	return err == nil
}

func (c *FileCache) Get(key TileKey) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.buildFilePath(key))
	if err != nil {
		return nil, false
	}

	return data, true
}

func (c *FileCache) Set(key TileKey, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.buildFilePath(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		c.logger.Warn("Failed to create tile directory", zap.String("path", filePath), zap.Error(err))
		return
	}

	// Write atomically
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0644); err != nil {
		c.logger.Warn("Failed to write tile", zap.String("path", tmpPath), zap.Error(err))
		return
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		c.logger.Warn("Failed to move tile into place", zap.String("path", filePath), zap.Error(err))
	}
}

func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.cacheDir); err != nil {
		c.logger.Warn("Failed to clear file cache", zap.String("cache_dir", c.cacheDir), zap.Error(err))
		return
	}

	os.MkdirAll(c.cacheDir, 0755)
}
