package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"choropleth/internal/mercator"
	"choropleth/internal/style"
)

const countriesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"NAME": "West", "POP2005": 1000, "AREA": 10},
      "geometry": {"type": "Polygon", "coordinates": [[[-20,-10],[-20,10],[-10,10],[-10,-10],[-20,-10]]]}
    },
    {
      "type": "Feature",
      "properties": {"NAME": "East", "POP2005": "250"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[100,40],[100,50],[110,50],[110,40],[100,40]]]]}
    },
    {
      "type": "Feature",
      "properties": {"NAME": "Capital"},
      "geometry": {"type": "Point", "coordinates": [0, 0]}
    }
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_GeoJSON(t *testing.T) {
	path := writeFile(t, "countries.geojson", countriesGeoJSON)

	layer, err := Load(path, Schema{PopulationField: "POP2005", AreaField: "AREA"})
	require.NoError(t, err)

	require.Len(t, layer.Features, 2, "point features are skipped")

	west := layer.Features[0]
	assert.Equal(t, 1000.0, west.Population)
	assert.Equal(t, 10.0, west.Area)
	assert.InDelta(t, mercator.Project(orb.Point{-20, 0}).X(), west.Bound.Min.X(), 1e-6)

	east := layer.Features[1]
	assert.Equal(t, "250", east.Population)
	assert.Nil(t, east.Area, "missing area stays absent")
	assert.IsType(t, orb.MultiPolygon{}, east.Geometry)
}

func TestLoad_GeoJSONDerivedArea(t *testing.T) {
	path := writeFile(t, "countries.geojson", countriesGeoJSON)

	layer, err := Load(path, Schema{PopulationField: "POP2005"})
	require.NoError(t, err)

	assert.InDelta(t, 200.0, layer.Features[0].Area, 1e-9)
	assert.InDelta(t, 100.0, layer.Features[1].Area, 1e-9)
}

func TestLoad_GeoJSONMissingField(t *testing.T) {
	path := writeFile(t, "countries.geojson", countriesGeoJSON)

	_, err := Load(path, Schema{PopulationField: "POPULATION", AreaField: "AREA"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load("countries.kml", Schema{PopulationField: "POP2005"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.geojson"), Schema{PopulationField: "POP2005"})
	assert.Error(t, err)
}

func writeShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countries.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("POP2005", 12),
		shp.FloatField("AREA", 12, 3),
	}))

	// clockwise outer ring with a counter-clockwise hole
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	}))
	row := int(w.Write(&poly))
	require.NoError(t, w.WriteAttribute(row, 0, "Holey"))
	require.NoError(t, w.WriteAttribute(row, 1, 5000))
	require.NoError(t, w.WriteAttribute(row, 2, 96.0))

	w.Close()

	// go-shp names the attribute file without the dot
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestLoad_Shapefile(t *testing.T) {
	path := writeShapefile(t)

	layer, err := Load(path, Schema{PopulationField: "pop2005", AreaField: "AREA"})
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)

	f := layer.Features[0]
	pop, ok := f.Population.(string)
	require.True(t, ok)
	assert.Contains(t, pop, "5000")

	population, err := style.Coerce(f.Population)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, population)
	area, err := style.Coerce(f.Area)
	require.NoError(t, err)
	assert.Equal(t, 96.0, area)

	poly, ok := f.Geometry.(orb.Polygon)
	require.True(t, ok, "one outer ring gives a polygon, got %T", f.Geometry)
	assert.Len(t, poly, 2, "hole is attached to its outer ring")

	assert.Equal(t, layer.Bound(), f.Bound)
}

func TestLoad_ShapefileMissingField(t *testing.T) {
	path := writeShapefile(t)

	_, err := Load(path, Schema{PopulationField: "POP2005", AreaField: "SQKM"})
	assert.ErrorIs(t, err, ErrMissingField)
	assert.ErrorContains(t, err, "SQKM")
	assert.NotContains(t, err.Error(), "POP2005", "existing fields resolve")
}

func TestRingsToMultiPolygon(t *testing.T) {
	points := []shp.Point{
		{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
		{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}, {X: 5, Y: 5},
	}

	g := ringsToMultiPolygon([]int32{0, 5}, points)

	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)

	assert.Nil(t, ringsToMultiPolygon([]int32{0}, points[:2]))
}

func TestLayer_Intersecting(t *testing.T) {
	path := writeFile(t, "countries.geojson", countriesGeoJSON)
	layer, err := Load(path, Schema{PopulationField: "POP2005", AreaField: "AREA"})
	require.NoError(t, err)

	world := mercator.TileToMercatorAtZoom(0, 0, 0)
	assert.Len(t, layer.Intersecting(world), 2)

	// zoom 1 north-east quadrant only holds the eastern feature
	ne := mercator.TileToMercatorAtZoom(1, 0, 1)
	got := layer.Intersecting(ne)
	require.Len(t, got, 1)
	assert.Equal(t, "250", got[0].Population)

	sw := mercator.TileToMercatorAtZoom(0, 1, 1)
	assert.Len(t, layer.Intersecting(sw), 1)
}

func TestLoad_FeatureIndexFollowsSource(t *testing.T) {
	path := writeFile(t, "countries.geojson", `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"POP2005":1},"geometry":{"type":"Point","coordinates":[0,0]}},
	  {"type":"Feature","properties":{"POP2005":2},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[0,0]]]}}
	]}`)

	layer, err := Load(path, Schema{PopulationField: "POP2005"})
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)
	assert.Equal(t, 1, layer.Features[0].Index)
}
