package dataset

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func loadGeoJSON(path string, schema Schema) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	seenPop, seenArea := false, schema.AreaField == ""
	var features []Feature
	for i, f := range fc.Features {
		var g orb.Geometry
		switch geom := f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			g = geom
		default:
			continue
		}

		population, ok := f.Properties[schema.PopulationField]
		seenPop = seenPop || ok

		var area any
		if schema.AreaField != "" {
			var ok bool
			area, ok = f.Properties[schema.AreaField]
			seenArea = seenArea || ok
		}

		features = append(features, newFeature(i, g, population, area, schema))
	}

	if len(features) > 0 && !seenPop {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, schema.PopulationField)
	}
	if len(features) > 0 && !seenArea {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, schema.AreaField)
	}

	return features, nil
}
