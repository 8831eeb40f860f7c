package layer_list

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"choropleth/internal/dataset"
	"choropleth/internal/style"
)

const (
	sidecarSuffix = ".layer.json"

	DefaultPopulationField = "POP2005"
	DefaultAreaField       = "AREA"
)

var ErrUnknownLayer = errors.New("unknown layer")

// extensions are the dataset files a scan picks up. Plain .json files are
// left out so sidecars are never mistaken for datasets.
var extensions = map[string]bool{
	".shp":     true,
	".geojson": true,
}

// LayerInfo is the sidecar metadata of one dataset file. It is created with
// defaults the first time a dataset is scanned and can be edited by hand.
type LayerInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Filename        string `json:"filename"`
	PopulationField string `json:"population_field"`
	AreaField       string `json:"area_field"`
	DefaultStyle    string `json:"default_style"`
	Features        int    `json:"features"`
	Bytes           int64  `json:"bytes"`
}

func (i LayerInfo) schema() dataset.Schema {
	return dataset.Schema{
		PopulationField: i.PopulationField,
		AreaField:       i.AreaField,
	}
}

type Scanner struct {
	dataDir      string
	defaultLayer string
	logger       *zap.Logger

	mu     sync.RWMutex
	layers []LayerInfo
	data   map[string]*dataset.Layer
}

func New(dataDir, defaultLayer string, logger *zap.Logger) *Scanner {
	return &Scanner{
		dataDir:      dataDir,
		defaultLayer: defaultLayer,
		logger:       logger,
		data:         map[string]*dataset.Layer{},
	}
}

// Scan loads every dataset in the data directory. A dataset that fails to
// load is logged and left out; the previous catalog is replaced as a whole.
func (s *Scanner) Scan() error {
	if err := s.cleanupOrphanedSidecars(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	var layers []LayerInfo
	data := map[string]*dataset.Layer{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := s.getFilePath(entry.Name())
		ext := strings.ToLower(filepath.Ext(path))
		if !extensions[ext] {
			continue
		}

		fileInfo, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		basename := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		info := s.loadOrCreateSidecar(basename, entry.Name())

		layer, err := dataset.Load(path, info.schema())
		if err != nil {
			s.logger.Warn("Failed to load dataset", zap.String("path", path), zap.Error(err))
			continue
		}

		if _, dup := data[info.ID]; dup {
			s.logger.Warn("Duplicate layer id, skipping", zap.String("id", info.ID), zap.String("path", path))
			continue
		}

		info.Features = len(layer.Features)
		info.Bytes = fileInfo.Size()

		layers = append(layers, info)
		data[info.ID] = layer

		s.logger.Info("Loaded layer",
			zap.String("id", info.ID),
			zap.String("path", path),
			zap.Int("features", info.Features))
	}

	sort.Slice(layers, func(i, j int) bool { return layers[i].ID < layers[j].ID })

	s.mu.Lock()
	s.layers = layers
	s.data = data
	s.mu.Unlock()

	return nil
}

// loadOrCreateSidecar returns the metadata for a dataset, writing a default
// sidecar when none exists or the existing one cannot be parsed.
func (s *Scanner) loadOrCreateSidecar(basename, filename string) LayerInfo {
	sidecarPath := s.getFilePath(basename + sidecarSuffix)

	if _, err := os.Stat(sidecarPath); err == nil {
		info, err := s.loadMetadata(sidecarPath)
		if err == nil {
			info.Filename = filename
			return s.withDefaults(*info, basename)
		}
		s.logger.Warn("Invalid layer metadata, rewriting", zap.String("json_path", sidecarPath), zap.Error(err))
	}

	info := s.withDefaults(LayerInfo{Filename: filename, AreaField: DefaultAreaField}, basename)
	if err := s.saveMetadata(sidecarPath, &info); err != nil {
		s.logger.Warn("Failed to save metadata", zap.String("json_path", sidecarPath), zap.Error(err))
	} else {
		s.logger.Info("Created metadata file", zap.String("json_path", sidecarPath))
	}
	return info
}

func (s *Scanner) withDefaults(info LayerInfo, basename string) LayerInfo {
	if info.ID == "" {
		info.ID = strings.ToLower(basename)
	}
	if info.Name == "" {
		info.Name = basename
	}
	if info.PopulationField == "" {
		info.PopulationField = DefaultPopulationField
	}
	if info.DefaultStyle == "" {
		info.DefaultStyle = style.DefaultName
	}
	return info
}

// cleanupOrphanedSidecars removes sidecars whose dataset file is gone.
func (s *Scanner) cleanupOrphanedSidecars() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sidecarSuffix) {
			continue
		}

		path := s.getFilePath(entry.Name())
		meta, err := s.loadMetadata(path)
		if err != nil || meta.Filename == "" {
			// rewritten by the scan if its dataset still exists
			continue
		}

		if _, err := os.Stat(s.getFilePath(meta.Filename)); err != nil {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("Failed to delete orphaned metadata", zap.String("path", path), zap.Error(err))
			} else {
				s.logger.Info("Deleted orphaned metadata", zap.String("path", path))
			}
		}
	}

	return nil
}

func (s *Scanner) GetLayers() []LayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]LayerInfo, len(s.layers))
	copy(out, s.layers)
	return out
}

// Resolve looks up a layer by id. The empty id selects the configured
// default layer, or the first layer when the default is not loaded.
func (s *Scanner) Resolve(id string) (LayerInfo, *dataset.Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		id = s.defaultLayer
		if _, ok := s.data[id]; !ok && len(s.layers) > 0 {
			id = s.layers[0].ID
		}
	}

	for _, info := range s.layers {
		if info.ID == id {
			return info, s.data[id], nil
		}
	}
	return LayerInfo{}, nil, fmt.Errorf("%w: %q", ErrUnknownLayer, id)
}

// Add registers an already loaded layer without touching the data directory.
func (s *Scanner) Add(info LayerInfo, layer *dataset.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info = s.withDefaults(info, info.ID)
	info.Features = len(layer.Features)

	for i, existing := range s.layers {
		if existing.ID == info.ID {
			s.layers[i] = info
			s.data[info.ID] = layer
			return
		}
	}
	s.layers = append(s.layers, info)
	s.data[info.ID] = layer
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

func (s *Scanner) loadMetadata(path string) (*LayerInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta LayerInfo
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

func (s *Scanner) saveMetadata(path string, meta *LayerInfo) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}
