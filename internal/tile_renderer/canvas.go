package tile_renderer

import (
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"choropleth/internal/style"
)

// canvas maps projected meters onto tile pixels, y pointing down.
type canvas struct {
	dc     *gg.Context
	minX   float64
	maxY   float64
	scaleX float64
	scaleY float64
}

func newCanvas(dc *gg.Context, bound orb.Bound) *canvas {
	return &canvas{
		dc:     dc,
		minX:   bound.Min.X(),
		maxY:   bound.Max.Y(),
		scaleX: float64(dc.Width()) / (bound.Max.X() - bound.Min.X()),
		scaleY: float64(dc.Height()) / (bound.Max.Y() - bound.Min.Y()),
	}
}

func (c *canvas) pixel(p orb.Point) (float64, float64) {
	return (p.X() - c.minX) * c.scaleX, (c.maxY - p.Y()) * c.scaleY
}

func (c *canvas) draw(g orb.Geometry, st style.Style) {
	if g == nil {
		return
	}

	switch geom := g.(type) {
	case orb.Polygon:
		c.polygon(geom)
	case orb.MultiPolygon:
		for _, p := range geom {
			c.polygon(p)
		}
	case orb.Collection:
		for _, child := range geom {
			c.draw(child, st)
		}
		return
	default:
		return
	}

	dc := c.dc
	dc.SetFillRuleEvenOdd()
	if st.Fill.A > 0 {
		dc.SetColor(st.Fill)
		dc.FillPreserve()
	}
	if st.OutlineWidth > 0 {
		dc.SetColor(st.Outline)
		dc.SetLineWidth(float64(st.OutlineWidth))
		dc.SetLineJoin(gg.LineJoinRound)
		dc.Stroke()
	}
	dc.ClearPath()
}

func (c *canvas) polygon(p orb.Polygon) {
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		c.dc.NewSubPath()
		for i, pt := range ring {
			x, y := c.pixel(pt)
			if i == 0 {
				c.dc.MoveTo(x, y)
				continue
			}
			c.dc.LineTo(x, y)
		}
		c.dc.ClosePath()
	}
}
