package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"choropleth/internal/config"
	"choropleth/internal/layer_list"
	"choropleth/internal/metrics"
	"choropleth/internal/style"
	"choropleth/internal/telemetry"
	"choropleth/internal/tile_renderer"
)

type TileRenderer interface {
	RenderTile(ctx context.Context, req tile_renderer.Request) (*tile_renderer.TileResult, error)
}

type LayerLister interface {
	GetLayers() []layer_list.LayerInfo
}

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	layers   LayerLister
	renderer TileRenderer
	validate *validator.Validate
}

func New(config *config.Config, logger *zap.Logger, layers LayerLister, renderer TileRenderer) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		layers:   layers,
		renderer: renderer,
		validate: validator.New(),
	}
}

// Routes wires every endpoint and the middleware chain.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/tile", h.HandleTile)
	mux.HandleFunc("GET /tiles/{layer}/{style}/{z}/{x}/{y}", h.HandleTilePath)
	mux.HandleFunc("/api/layers", h.HandleLayers)
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return h.CORSMiddleware(h.RequestLoggingMiddleware(telemetry.Middleware(mux)))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		w.Header().Set("X-Request-Id", requestID)
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Tile-Cache")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleLayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"layers": h.layers.GetLayers(),
		"styles": style.Names(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleTile serves /tile?x=&y=&z=[&layer=][&style=]. Parameters may come
// from the query string or a POSTed form.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.serveTile(w, r, tileQuery{
		Layer: r.FormValue("layer"),
		Style: r.FormValue("style"),
		Z:     r.FormValue("z"),
		X:     r.FormValue("x"),
		Y:     r.FormValue("y"),
	})
}

// HandleTilePath serves /tiles/{layer}/{style}/{z}/{x}/{y}.png.
func (h *Handlers) HandleTilePath(w http.ResponseWriter, r *http.Request) {
	y, ok := strings.CutSuffix(r.PathValue("y"), ".png")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid format")
		return
	}

	h.serveTile(w, r, tileQuery{
		Layer: r.PathValue("layer"),
		Style: r.PathValue("style"),
		Z:     r.PathValue("z"),
		X:     r.PathValue("x"),
		Y:     y,
	})
}

func (h *Handlers) serveTile(w http.ResponseWriter, r *http.Request, q tileQuery) {
	params, err := h.parseTileParams(q)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.renderer.RenderTile(r.Context(), tile_renderer.Request{
		Layer: params.Layer,
		Style: params.Style,
		Z:     params.Z,
		X:     params.X,
		Y:     params.Y,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to render tile", zap.Error(err))
		} else {
			h.logger.Warn("Tile request rejected", zap.Int("status", status), zap.Error(err))
		}
		h.writeError(w, status, err.Error())
		return
	}

	etag := `"` + result.ETag + `"`
	cacheStatus := "miss"
	if result.Cached {
		cacheStatus = "hit"
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Tile-Cache", cacheStatus)

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		metrics.TileRequests.WithLabelValues(strconv.Itoa(http.StatusNotModified)).Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(result.Size))
	metrics.TileRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	metrics.TileRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	http.Error(w, message, status)
}

// statusFor maps renderer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, layer_list.ErrUnknownLayer), errors.Is(err, style.ErrUnknownStyle):
		return http.StatusNotFound
	case errors.Is(err, tile_renderer.ErrDataIntegrity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
