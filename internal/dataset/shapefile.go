package dataset

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

func loadShapefile(path string, schema Schema) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer reader.Close()

	fields := reader.Fields()
	popIdx, err := fieldIndex(fields, schema.PopulationField)
	if err != nil {
		return nil, err
	}
	areaIdx := -1
	if schema.AreaField != "" {
		if areaIdx, err = fieldIndex(fields, schema.AreaField); err != nil {
			return nil, err
		}
	}

	var features []Feature
	for reader.Next() {
		row, shape := reader.Shape()

		g := shapeToGeometry(shape)
		if g == nil {
			continue
		}

		population := reader.ReadAttribute(row, popIdx)
		var area any
		if areaIdx >= 0 {
			area = reader.ReadAttribute(row, areaIdx)
		}

		features = append(features, newFeature(row, g, population, area, schema))
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile: %w", err)
	}

	return features, nil
}

func fieldIndex(fields []shp.Field, name string) (int, error) {
	for i, f := range fields {
		if strings.EqualFold(f.String(), name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrMissingField, name)
}

func shapeToGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Polygon:
		return ringsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonM:
		return ringsToMultiPolygon(s.Parts, s.Points)
	default:
		return nil
	}
}

// ringsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// start a new polygon and counter-clockwise rings are holes of the previous
// one.
func ringsToMultiPolygon(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	default:
		return mp
	}
}
