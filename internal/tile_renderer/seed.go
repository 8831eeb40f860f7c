package tile_renderer

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	"choropleth/internal/cache"
	"choropleth/internal/mercator"
)

// World is the lon/lat extent covered by the tile grid.
var World = orb.Bound{
	Min: orb.Point{-180, -mercator.MaxLatitude},
	Max: orb.Point{180, mercator.MaxLatitude},
}

type SeedOptions struct {
	Layer   string
	Style   string
	MinZoom int
	MaxZoom int
	Bound   orb.Bound // lon/lat, World when empty
	Workers int
}

type SeedStats struct {
	Rendered int64
	Skipped  int64
	Failed   int64
}

// EachTile calls fn for every tile touching bound on zooms minZoom..maxZoom,
// stopping early when fn returns false.
func EachTile(bound orb.Bound, minZoom, maxZoom int, fn func(maptile.Tile) bool) {
	if bound.IsZero() {
		bound = World
	}
	nw := orb.Point{
		math.Max(-180, bound.Min.Lon()),
		math.Min(mercator.MaxLatitude, bound.Max.Lat()),
	}
	se := orb.Point{
		math.Min(180-1e-9, bound.Max.Lon()),
		math.Max(-mercator.MaxLatitude, bound.Min.Lat()),
	}

	for z := minZoom; z <= maxZoom; z++ {
		zoom := maptile.Zoom(z)
		minTile := maptile.At(nw, zoom)
		maxTile := maptile.At(se, zoom)
		last := uint32(1)<<uint32(z) - 1

		for x := minTile.X; x <= maxTile.X && x <= last; x++ {
			for y := minTile.Y; y <= maxTile.Y && y <= last; y++ {
				if !fn(maptile.New(x, y, zoom)) {
					return
				}
			}
		}
	}
}

// CountTiles is the number of tiles EachTile visits.
func CountTiles(bound orb.Bound, minZoom, maxZoom int) int64 {
	var n int64
	EachTile(bound, minZoom, maxZoom, func(maptile.Tile) bool {
		n++
		return true
	})
	return n
}

// Seed renders every tile of opts into the cache using a bounded worker
// pool. Tiles already cached are skipped. progress, when set, is called once
// per tile from the worker goroutines.
func (r *Renderer) Seed(ctx context.Context, opts SeedOptions, progress func()) SeedStats {
	workerLimit := opts.Workers
	if workerLimit <= 0 {
		workerLimit = 1
	}

	var stats SeedStats
	info, _, err := r.layers.Resolve(opts.Layer)
	if err != nil {
		r.logger.Warn("Seed layer not found", zap.String("layer", opts.Layer), zap.Error(err))
		return stats
	}
	styleName := opts.Style
	if styleName == "" {
		styleName = info.DefaultStyle
	}

	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup

	EachTile(opts.Bound, opts.MinZoom, opts.MaxZoom, func(t maptile.Tile) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case workerChan <- struct{}{}: // Acquire worker slot
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-workerChan }() // Release worker slot
			if progress != nil {
				defer progress()
			}

			key := cache.TileKey{Layer: info.ID, Style: styleName, Z: int(t.Z), X: int(t.X), Y: int(t.Y)}
			if r.tileCache.Has(key) {
				atomic.AddInt64(&stats.Skipped, 1)
				return
			}

			res, err := r.RenderTile(ctx, Request{Layer: info.ID, Style: styleName, Z: key.Z, X: key.X, Y: key.Y})
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				r.logger.Debug("Seed tile failed", zap.String("key", key.String()), zap.Error(err))
				return
			}
			// filled by a concurrent request after the Has check
			if res.Cached {
				atomic.AddInt64(&stats.Skipped, 1)
				return
			}
			atomic.AddInt64(&stats.Rendered, 1)
		}()
		return true
	})

	wg.Wait()
	return stats
}
