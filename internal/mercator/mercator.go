package mercator

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EarthRadius is the sphere radius in meters shared by the tile grid and
// the lon/lat projection. Mixing radii shifts features against the grid.
const EarthRadius = 6371000.0

// MaxLatitude is the latitude at which the square Mercator world ends.
const MaxLatitude = 85.05112877980659

const (
	earthCircumference = 2 * math.Pi * EarthRadius
	halfCircumference  = earthCircumference / 2
)

// HalfCircumference returns the projected extent of the world on either side
// of the origin.
func HalfCircumference() float64 {
	return halfCircumference
}

// TileToMercatorAtZoom returns the projected extent of an XYZ tile. Tile
// (0, 0) is the north-west corner and y grows southward. Indices are not
// validated: values outside [0, 2^zoom) give a box outside the world.
func TileToMercatorAtZoom(tileX, tileY, zoom int) orb.Bound {
	tileSpan := earthCircumference / math.Exp2(float64(zoom))

	return orb.Bound{
		Min: orb.Point{
			float64(tileX)*tileSpan - halfCircumference,
			halfCircumference - float64(tileY+1)*tileSpan,
		},
		Max: orb.Point{
			float64(tileX+1)*tileSpan - halfCircumference,
			halfCircumference - float64(tileY)*tileSpan,
		},
	}
}

// Project maps a lon/lat point to planar meters on the EarthRadius sphere.
func Project(p orb.Point) orb.Point {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, p.Lat()))
	x := EarthRadius * p.Lon() * math.Pi / 180
	y := EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return orb.Point{x, y}
}

// Unproject is the inverse of Project.
func Unproject(p orb.Point) orb.Point {
	lon := p.X() / EarthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p.Y()/EarthRadius)) - math.Pi/2) * 180 / math.Pi
	return orb.Point{lon, lat}
}

// Geometry projects g in place and returns it.
func Geometry(g orb.Geometry) orb.Geometry {
	return project.Geometry(g, Project)
}

// MetersPerPixel is the ground distance covered by one pixel when bound is
// drawn across width pixels.
func MetersPerPixel(bound orb.Bound, width int) float64 {
	return (bound.Max.X() - bound.Min.X()) / float64(width)
}

// ValidTile reports whether x, y, z address a tile that exists in the grid
// and does not exceed maxZoom.
func ValidTile(x, y, z, maxZoom int) error {
	if z < 0 || z > maxZoom {
		return fmt.Errorf("zoom %d out of range [0, %d]", z, maxZoom)
	}
	n := 1 << uint(z)
	if x < 0 || x >= n {
		return fmt.Errorf("x %d out of range [0, %d) at zoom %d", x, n, z)
	}
	if y < 0 || y >= n {
		return fmt.Errorf("y %d out of range [0, %d) at zoom %d", y, n, z)
	}
	return nil
}
