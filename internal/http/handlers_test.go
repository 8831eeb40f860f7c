package http

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"choropleth/internal/cache"
	"choropleth/internal/config"
	"choropleth/internal/dataset"
	"choropleth/internal/encoder"
	"choropleth/internal/layer_list"
	"choropleth/internal/metrics"
	"choropleth/internal/tile_renderer"
)

const worldGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"POP2005": 4900, "AREA": 1},
      "geometry": {"type": "Polygon", "coordinates": [[[-170,-80],[-170,80],[170,80],[170,-80],[-170,-80]]]}
    }
  ]
}`

const brokenGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"POP2005": true, "AREA": 1},
      "geometry": {"type": "Polygon", "coordinates": [[[-10,-10],[-10,10],[10,10],[10,-10],[-10,-10]]]}
    }
  ]
}`

type testServer struct {
	handler  http.Handler
	renderer *tile_renderer.Renderer
}

func loadLayer(t *testing.T, dir, name, content string) *dataset.Layer {
	t.Helper()
	path := filepath.Join(dir, name+".geojson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	layer, err := dataset.Load(path, dataset.Schema{PopulationField: "POP2005", AreaField: "AREA"})
	require.NoError(t, err)
	return layer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	layers := layer_list.New(dir, "world", zap.NewNop())
	layers.Add(layer_list.LayerInfo{ID: "world", Name: "World"}, loadLayer(t, dir, "world", worldGeoJSON))
	layers.Add(layer_list.LayerInfo{ID: "broken"}, loadLayer(t, dir, "broken", brokenGeoJSON))

	renderer := tile_renderer.New(layers, cache.NewMemoryCache(100), encoder.NewPNG(png.BestSpeed), zap.NewNop())
	cfg := &config.Config{MaxZoom: 20}

	return &testServer{
		handler:  New(cfg, zap.NewNop(), layers, renderer).Routes(),
		renderer: renderer,
	}
}

func (s *testServer) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleTile_RendersThenServesFromCache(t *testing.T) {
	s := newTestServer(t)
	hitsBefore := testutil.ToFloat64(metrics.TileCacheHits)

	first := s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0", nil)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "image/png", first.Header().Get("Content-Type"))
	assert.Equal(t, "miss", first.Header().Get("X-Tile-Cache"))
	assert.NotEmpty(t, first.Header().Get("ETag"))
	assert.NotEmpty(t, first.Header().Get("X-Request-Id"))

	img, err := png.Decode(first.Body)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())

	second := s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Tile-Cache"))
	assert.Equal(t, first.Header().Get("ETag"), second.Header().Get("ETag"))

	assert.Equal(t, int64(1), s.renderer.Renders())
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(metrics.TileCacheHits))
}

func TestHandleTile_FormParameters(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"x": {"1"}, "y": {"0"}, "z": {"1"}, "layer": {"world"}}
	req := httptest.NewRequest(http.MethodPost, "/tile", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandleTile_BadParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"non-integer x", "x=abc&y=0&z=0"},
		{"missing y", "x=0&z=0"},
		{"missing everything", ""},
		{"negative x", "x=-1&y=0&z=1"},
		{"negative z", "x=0&y=0&z=-1"},
		{"x beyond grid", "x=2&y=0&z=1"},
		{"y beyond grid", "x=0&y=4&z=2"},
		{"zoom too deep", "x=0&y=0&z=21"},
		{"float zoom", "x=0&y=0&z=1.5"},
		{"bad style name", "x=0&y=0&z=0&style=../x"},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/tile?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, int64(0), s.renderer.Renders(), "nothing renders for rejected requests")
}

func TestHandleTile_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"unknown layer", "x=0&y=0&z=0&layer=rivers", http.StatusNotFound},
		{"unknown style", "x=0&y=0&z=0&style=heatmap", http.StatusNotFound},
		{"bad attribute", "x=0&y=0&z=0&layer=broken", http.StatusUnprocessableEntity},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/tile?"+tt.query, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	// a failed tile is not cached, so asking again renders again
	s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0&layer=broken", nil)
	assert.Equal(t, int64(2), s.renderer.Renders())
}

type failingRenderer struct{}

func (failingRenderer) RenderTile(context.Context, tile_renderer.Request) (*tile_renderer.TileResult, error) {
	return nil, errors.New("encoder exploded")
}

func TestHandleTile_InternalError(t *testing.T) {
	handler := New(&config.Config{MaxZoom: 20}, zap.NewNop(), layer_list.New("", "", zap.NewNop()), failingRenderer{}).Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tile?x=0&y=0&z=0", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleTile_NotModified(t *testing.T) {
	s := newTestServer(t)

	first := s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0", nil)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec := s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0", http.Header{"If-None-Match": {`"stale"`}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTile_Head(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodHead, "/tile?x=0&y=0&z=0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestHandleTilePath(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/tiles/world/outline/1/0/1.png", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodGet, "/tiles/world/density/1/0/1.jpg", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/tiles/world/density/1/x/1.png", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/tiles/lakes/density/1/0/1.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLayers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/layers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Layers []layer_list.LayerInfo `json:"layers"`
		Styles []string               `json:"styles"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Layers, 2)
	assert.Equal(t, "world", body.Layers[0].ID)
	assert.Equal(t, 1, body.Layers[0].Features)
	assert.Equal(t, []string{"density", "outline"}, body.Styles)
}

func TestHandleHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	s.do(t, http.MethodGet, "/tile?x=0&y=0&z=0", nil)
	rec = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tiles_requests_total")
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodOptions, "/tile", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	handler := New(&config.Config{AllowedOrigin: "https://maps.example.org"}, zap.NewNop(), nil, nil).Routes()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "https://maps.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
