package cache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteCache keeps tiles in a single sqlite database file, which survives
// restarts and can be copied between hosts.
type SQLiteCache struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteCache(path string, logger *zap.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}

	c := &SQLiteCache{
		db:     db,
		logger: logger,
	}

	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite cache: %w", err)
	}

	return c, nil
}

func (c *SQLiteCache) runMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{c.logger.Sugar()})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.Up(c.db, "migrations")
}

func (c *SQLiteCache) Has(key TileKey) bool {
	query := `SELECT 1 FROM tile_cache
	WHERE layer = ? AND style = ? AND z = ? AND x = ? AND y = ?`

	var one int
	err := c.db.QueryRow(query, key.Layer, key.Style, key.Z, key.X, key.Y).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.logger.Warn("sqlite cache lookup failed", zap.String("key", key.String()), zap.Error(err))
	}
	return err == nil
}

func (c *SQLiteCache) Get(key TileKey) ([]byte, bool) {
	query := `SELECT tile_data FROM tile_cache
	WHERE layer = ? AND style = ? AND z = ? AND x = ? AND y = ?`

	var data []byte
	err := c.db.QueryRow(query, key.Layer, key.Style, key.Z, key.X, key.Y).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("sqlite cache get failed", zap.String("key", key.String()), zap.Error(err))
		}
		return nil, false
	}

	return data, true
}

func (c *SQLiteCache) Set(key TileKey, value []byte) {
	query := `INSERT INTO tile_cache (layer, style, z, x, y, tile_data)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(layer, style, z, x, y) DO UPDATE SET tile_data = excluded.tile_data`

	if _, err := c.db.Exec(query, key.Layer, key.Style, key.Z, key.X, key.Y, value); err != nil {
		c.logger.Warn("sqlite cache set failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (c *SQLiteCache) Clear() {
	if _, err := c.db.Exec(`DELETE FROM tile_cache`); err != nil {
		c.logger.Warn("sqlite cache clear failed", zap.Error(err))
	}
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.s.Fatalf(format, v...)
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.s.Debugf(format, v...)
}
