package style

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
)

var (
	ErrAttribute    = errors.New("malformed feature attribute")
	ErrUnknownStyle = errors.New("unknown style")
)

const (
	// FillAlpha is applied to every thematic fill.
	FillAlpha = 180

	// OutlineGroundWidth is the outline width in map units; the pixel width
	// is derived from it at every scale.
	OutlineGroundWidth = 50.0

	DefaultName = "density"
)

// DensityScale normalizes sqrt(population/area) onto the color ramp. Values
// at or above it are drawn fully red. Tune it per dataset.
var DensityScale = 70.0

var (
	Green  = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow = color.NRGBA{R: 255, G: 255, B: 0, A: 255}
	Red    = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	Black  = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

	// NoData marks features with missing or degenerate area.
	NoData = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

// Style is what the rasterizer needs to draw one polygon.
type Style struct {
	OutlineWidth int
	Outline      color.NRGBA
	Fill         color.NRGBA
}

// Attributes carries the raw dataset values a style reads.
type Attributes struct {
	Population any
	Area       any
}

// Func styles one feature at the given map scale (meters per pixel).
type Func func(attrs Attributes, mapScale float64) (Style, error)

var registry = map[string]Func{
	"density": densityFunc,
	"outline": outlineFunc,
}

// Lookup resolves a style name; the empty name selects DefaultName.
func Lookup(name string) (Func, error) {
	if name == "" {
		name = DefaultName
	}
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
	}
	return fn, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Density colors a feature by sqrt(population/area) on a green, yellow, red
// ramp. A non-positive area yields the NoData fill.
func Density(population, area, mapScale float64) Style {
	fill := NoData
	if area > 0 {
		density := math.Sqrt(math.Max(0, population/area))
		fill = Ramp(math.Min(1.0, density/DensityScale))
	}
	fill.A = FillAlpha

	return Style{
		OutlineWidth: OutlineWidth(mapScale),
		Outline:      Black,
		Fill:         fill,
	}
}

// Ramp maps t in [0, 1] linearly through green, yellow and red.
func Ramp(t float64) color.NRGBA {
	if t <= 0 || math.IsNaN(t) {
		return Green
	}
	if t >= 1 {
		return Red
	}
	if t <= 0.5 {
		return lerp(Green, Yellow, t/0.5)
	}
	return lerp(Yellow, Red, (t-0.5)/0.5)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{
		R: mix(a.R, b.R),
		G: mix(a.G, b.G),
		B: mix(a.B, b.B),
		A: mix(a.A, b.A),
	}
}

// OutlineWidth converts OutlineGroundWidth to pixels. Halves round away
// from zero.
func OutlineWidth(mapScale float64) int {
	if !(mapScale > 0) || math.IsInf(mapScale, 1) {
		return 0
	}
	return int(math.Round(OutlineGroundWidth / mapScale))
}

func densityFunc(attrs Attributes, mapScale float64) (Style, error) {
	population, err := Coerce(attrs.Population)
	if err != nil {
		return Style{}, fmt.Errorf("population: %w", err)
	}
	area, err := Coerce(attrs.Area)
	if err != nil {
		return Style{}, fmt.Errorf("area: %w", err)
	}
	return Density(population, area, mapScale), nil
}

func outlineFunc(_ Attributes, mapScale float64) (Style, error) {
	return Style{
		OutlineWidth: OutlineWidth(mapScale),
		Outline:      Black,
		Fill:         color.NRGBA{},
	}, nil
}
