package floorplan

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// OverlayRenderer draws the polygon overlay on its own, for previews and
// exports that do not need the floor plan markup.
type OverlayRenderer struct {
	Polygons         []PolygonVM
	DefaultColor     string
	Opacity          float64
	HighlightBorders bool
	Padding          float64           // Padding in drawing units
	StrokeWidth      float64           // Border width in drawing units
	Resolution       canvas.Resolution // Resolution for PNG output (default: 1 px per unit)
}

// NewOverlayRenderer creates a renderer using the given settings
func NewOverlayRenderer(polys []PolygonVM, settings Settings) *OverlayRenderer {
	return &OverlayRenderer{
		Polygons:         polys,
		DefaultColor:     settings.DefaultColor(),
		Opacity:          settings.Opacity(),
		HighlightBorders: settings.Polygons.HighlightBorders,
		Padding:          10.0,
		StrokeWidth:      1.0,
		Resolution:       canvas.DPMM(1.0),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

type ringPaint struct {
	ring   orb.Ring
	fill   color.RGBA
	stroke color.RGBA
}

// RenderToSVG writes the overlay as an SVG to the provided writer
func (r *OverlayRenderer) RenderToSVG(w io.Writer) error {
	rings, bound := r.prepare()
	width, height := r.size(bound)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, rings, bound, width, height)

	if err := svgRenderer.Close(); err != nil {
		return fmt.Errorf("closing SVG renderer: %w", err)
	}
	return nil
}

// RenderToPNG writes the overlay as a PNG to the provided writer
func (r *OverlayRenderer) RenderToPNG(w io.Writer) error {
	rings, bound := r.prepare()
	width, height := r.size(bound)

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, rings, bound, width, height)

	return png.Encode(w, rast)
}

// prepare parses every polygon and resolves its paint. Polygons with
// invalid points are skipped.
func (r *OverlayRenderer) prepare() ([]ringPaint, orb.Bound) {
	rings := make([]ringPaint, 0, len(r.Polygons))
	var bound orb.Bound
	for _, p := range r.Polygons {
		ring, err := ParsePoints(p.Points)
		if err != nil {
			continue
		}

		fillText := p.ColorValue()
		if fillText == "" {
			fillText = r.DefaultColor
		}
		fill, ok := ParseColor(fillText)
		if !ok {
			fill, _ = ParseColor(DefaultFillColor)
		}
		stroke, _ := ParseColor(neutralStroke)
		if r.HighlightBorders {
			stroke = fill
		}
		fill.A = uint8(math.Round(255 * math.Min(1, math.Max(0, r.Opacity))))

		rings = append(rings, ringPaint{ring: ring, fill: nrgbaToRGBA(fill), stroke: nrgbaToRGBA(stroke)})
		if len(rings) == 1 {
			bound = ring.Bound()
		} else {
			bound = bound.Union(ring.Bound())
		}
	}
	return rings, bound
}

func (r *OverlayRenderer) size(b orb.Bound) (float64, float64) {
	return b.Right() - b.Left() + 2*r.Padding, b.Top() - b.Bottom() + 2*r.Padding
}

// renderToCanvas draws the rings, flipping y so the preview matches the
// markup's top-left origin.
func (r *OverlayRenderer) renderToCanvas(renderer canvasRenderer, rings []ringPaint, b orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0] - b.Left()) + r.Padding, height - ((p[1] - b.Bottom()) + r.Padding)
	}

	for _, rp := range rings {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: rp.fill}
		style.Stroke = canvas.Paint{Color: rp.stroke}
		style.StrokeWidth = r.StrokeWidth

		cp := &canvas.Path{}
		for i, pt := range rp.ring {
			cx, cy := toCanvas(pt)
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, style, canvas.Identity)
	}
}
