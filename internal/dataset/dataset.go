package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"choropleth/internal/mercator"
	"choropleth/internal/style"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrMissingField      = errors.New("attribute field not found")
)

// Schema names the attribute fields a layer is styled from. An empty
// AreaField makes the loader derive area from the source geometry, in the
// source's coordinate units.
type Schema struct {
	PopulationField string
	AreaField       string
}

// Feature is one polygon feature with its geometry already projected.
// Index is its position in the source file.
type Feature struct {
	Index      int
	Geometry   orb.Geometry
	Bound      orb.Bound
	Population any
	Area       any
}

func (f Feature) Attributes() style.Attributes {
	return style.Attributes{Population: f.Population, Area: f.Area}
}

// Layer is an immutable set of projected features.
type Layer struct {
	Path     string
	Features []Feature
	bound    orb.Bound
}

// Load reads a polygon dataset and projects it into tile space.
func Load(path string, schema Schema) (*Layer, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		features []Feature
		err      error
	)
	switch ext {
	case ".shp":
		features, err = loadShapefile(path, schema)
	case ".geojson", ".json":
		features, err = loadGeoJSON(path, schema)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	layer := &Layer{Path: path, Features: features}
	for i, f := range features {
		if i == 0 {
			layer.bound = f.Bound
			continue
		}
		layer.bound = layer.bound.Union(f.Bound)
	}
	return layer, nil
}

// Intersecting returns the features whose bounding box touches b.
func (l *Layer) Intersecting(b orb.Bound) []Feature {
	var out []Feature
	for _, f := range l.Features {
		if f.Bound.Intersects(b) {
			out = append(out, f)
		}
	}
	return out
}

// Bound is the projected extent of all features.
func (l *Layer) Bound() orb.Bound {
	return l.bound
}

// newFeature projects g. When the schema has no area field, the area is
// taken from g before projection.
func newFeature(index int, g orb.Geometry, population, area any, schema Schema) Feature {
	if schema.AreaField == "" {
		area = planar.Area(g)
	}
	projected := mercator.Geometry(g)
	return Feature{
		Index:      index,
		Geometry:   projected,
		Bound:      projected.Bound(),
		Population: population,
		Area:       area,
	}
}
