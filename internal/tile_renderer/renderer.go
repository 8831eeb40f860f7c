package tile_renderer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"choropleth/internal/cache"
	"choropleth/internal/dataset"
	"choropleth/internal/encoder"
	"choropleth/internal/layer_list"
	"choropleth/internal/mercator"
	"choropleth/internal/metrics"
	"choropleth/internal/style"
)

const (
	TileSize = 256

	tracerName = "choropleth/internal/tile_renderer"
)

// ErrDataIntegrity aborts a tile when a feature's attributes cannot be read.
// Nothing is drawn or cached for that tile.
var ErrDataIntegrity = errors.New("data integrity error")

// LayerSource resolves layer ids to loaded datasets.
type LayerSource interface {
	Resolve(id string) (layer_list.LayerInfo, *dataset.Layer, error)
}

type Request struct {
	Layer string
	Style string
	Z     int
	X     int
	Y     int
}

type TileResult struct {
	Key    cache.TileKey
	Data   []byte
	ETag   string
	Size   int
	Cached bool
}

type Renderer struct {
	layers    LayerSource
	tileCache cache.Cache
	encoder   encoder.Encoder
	logger    *zap.Logger
	tracer    trace.Tracer

	group   singleflight.Group
	renders atomic.Int64
}

func New(layers LayerSource, tileCache cache.Cache, enc encoder.Encoder, logger *zap.Logger) *Renderer {
	return &Renderer{
		layers:    layers,
		tileCache: tileCache,
		encoder:   enc,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Renders is the number of tiles rasterized since start. Cache hits and
// collapsed concurrent misses do not count.
func (r *Renderer) Renders() int64 {
	return r.renders.Load()
}

// RenderTile returns the encoded tile for req, from cache when possible.
func (r *Renderer) RenderTile(ctx context.Context, req Request) (*TileResult, error) {
	info, layer, err := r.layers.Resolve(req.Layer)
	if err != nil {
		return nil, err
	}

	styleName := req.Style
	if styleName == "" {
		styleName = info.DefaultStyle
	}
	if styleName == "" {
		styleName = style.DefaultName
	}
	styleFn, err := style.Lookup(styleName)
	if err != nil {
		return nil, err
	}

	key := cache.TileKey{
		Layer: info.ID,
		Style: styleName,
		Z:     req.Z,
		X:     req.X,
		Y:     req.Y,
	}

	if cached, ok := r.tileCache.Get(key); ok {
		metrics.TileCacheHits.Inc()
		return newResult(key, cached, true), nil
	}
	metrics.TileCacheMisses.Inc()

	v, err, shared := r.group.Do(key.String(), func() (interface{}, error) {
		if cached, ok := r.tileCache.Get(key); ok {
			return cached, nil
		}

		// the render is shared with concurrent callers, so one caller going
		// away must not fail it for the others
		data, err := r.render(context.WithoutCancel(ctx), key, layer, styleFn)
		if err != nil {
			return nil, err
		}

		r.tileCache.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("Shared concurrent render", zap.String("key", key.String()))
	}

	return newResult(key, v.([]byte), false), nil
}

func (r *Renderer) render(ctx context.Context, key cache.TileKey, layer *dataset.Layer, styleFn style.Func) ([]byte, error) {
	_, span := r.tracer.Start(ctx, "RenderTile", trace.WithAttributes(
		attribute.String("tile.key", key.String()),
		attribute.Int("tile.z", key.Z),
	))
	defer span.End()

	start := time.Now()
	r.renders.Add(1)
	metrics.TileRenders.WithLabelValues(key.Layer).Inc()

	bound := mercator.TileToMercatorAtZoom(key.X, key.Y, key.Z)
	mapScale := mercator.MetersPerPixel(bound, TileSize)

	dc := gg.NewContext(TileSize, TileSize)
	canvas := newCanvas(dc, bound)

	features := layer.Intersecting(bound)
	span.SetAttributes(attribute.Int("tile.features", len(features)))

	for _, f := range features {
		st, err := styleFn(f.Attributes(), mapScale)
		if err != nil {
			metrics.TileRenderErrors.WithLabelValues("data").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad feature attributes")
			return nil, fmt.Errorf("%w: layer %s feature %d: %w", ErrDataIntegrity, key.Layer, f.Index, err)
		}

		canvas.draw(clipToTile(f, bound, mapScale, st), st)
	}

	data, err := r.encoder.Encode(dc.Image())
	if err != nil {
		metrics.TileRenderErrors.WithLabelValues("encode").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.TileRenderLatency.Observe(elapsed.Seconds())
	metrics.TileBytes.Observe(float64(len(data)))

	r.logger.Debug("Rendered tile",
		zap.String("key", key.String()),
		zap.Int("features", len(features)),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", elapsed))

	return data, nil
}

// clipToTile cuts geometries that reach far past the tile so the
// rasterizer's fixed-point coordinates stay in range at high zooms. The cut
// edges lie outside the canvas, further out than the outline reaches.
func clipToTile(f dataset.Feature, bound orb.Bound, mapScale float64, st style.Style) orb.Geometry {
	padded := bound.Pad(float64(st.OutlineWidth+2*TileSize) * mapScale)
	if padded.Union(f.Bound) == padded {
		return f.Geometry
	}
	return clip.Geometry(padded, orb.Clone(f.Geometry))
}

func newResult(key cache.TileKey, data []byte, cached bool) *TileResult {
	return &TileResult{
		Key:    key,
		Data:   data,
		ETag:   generateETag(data),
		Size:   len(data),
		Cached: cached,
	}
}

func generateETag(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])[:16]
}
