package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATA_DIR", "/srv/maps")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "countries", cfg.DefaultLayer)
	assert.Equal(t, 20, cfg.MaxZoom)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 2000, cfg.Cache.MemoryTiles)
	assert.Equal(t, filepath.Join("/srv/maps", "cache"), cfg.Cache.FileDir)
	assert.Equal(t, filepath.Join("/srv/maps", "tiles.db"), cfg.Cache.SQLitePath)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "png", cfg.Encoder.Name)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("VIPS_PALETTE", "true")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.True(t, cfg.Vips.Palette)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEFAULT_LAYER=provinces\n"), 0644))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("DEFAULT_LAYER") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "provinces", cfg.DefaultLayer)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MAX_ZOOM", "deep")

	_, err := Load()
	assert.Error(t, err)
}
