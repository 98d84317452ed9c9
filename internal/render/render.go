// Package render draws a layer set as a styled map image with gonum/plot.
// Layers are painted bottom-up in a fixed order so trails always end up on
// top of the base map.
package render

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/arikscherm/map-trail-miles/internal/layer"
)

// Style controls how one layer is painted. A nil Fill draws outlines only.
type Style struct {
	Fill   color.Color
	Stroke color.Color
	Width  vg.Length
	Dashes []vg.Length
}

// drawOrder is the bottom-up paint order for the known layers. Unknown layer
// names are slotted in just before the trails so the trail overlay stays on
// top.
var drawOrder = []string{
	layer.MaskName,
	"parks",
	"water",
	"buildings",
	"streets",
	"roads",
	"highways",
	"trails",
}

// DefaultStyles is the built-in palette.
func DefaultStyles() map[string]Style {
	return map[string]Style{
		layer.MaskName: {Fill: rgb(0xEC, 0xF2, 0xD4)},
		"parks":        {Fill: rgb(0xCE, 0xDF, 0xC2)},
		"water":        {Fill: rgb(0x9F, 0xD9, 0xE9), Stroke: rgb(0x9F, 0xD9, 0xE9), Width: vg.Points(1)},
		"buildings":    {Fill: rgb(0xD4, 0xD1, 0xCB)},
		"streets":      {Stroke: color.White, Width: vg.Points(0.6)},
		"roads":        {Stroke: rgb(0xF9, 0xE9, 0xA0), Width: vg.Points(1.5)},
		"highways":     {Stroke: rgb(0xF3, 0xCD, 0x71), Width: vg.Points(2)},
		"trails": {
			Stroke: rgb(0xBA, 0x64, 0x61),
			Width:  vg.Points(1.2),
			Dashes: []vg.Length{vg.Points(3), vg.Points(2)},
		},
	}
}

var fallbackStyle = Style{Stroke: rgb(0x99, 0x99, 0x99), Width: vg.Points(0.8)}

func rgb(r, g, b uint8) color.Color {
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

// Renderer draws layer sets to image files.
type Renderer struct {
	styles map[string]Style
	width  vg.Length
}

// Option configures the renderer.
type Option func(*Renderer)

// WithStyles replaces the palette.
func WithStyles(styles map[string]Style) Option {
	return func(r *Renderer) { r.styles = styles }
}

// WithWidth sets the output image width; height follows the mask's aspect
// ratio.
func WithWidth(w vg.Length) Option {
	return func(r *Renderer) {
		if w > 0 {
			r.width = w
		}
	}
}

// New creates a renderer with the default palette.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		styles: DefaultStyles(),
		width:  10 * vg.Inch,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render draws the layer set to path. The output format follows the file
// extension (png, svg, pdf, jpg); the plot frame is sized to the mask's
// bounds so the map keeps its shape.
func (r *Renderer) Render(layers layer.Set, title, path string) error {
	mask := layers.Mask()
	if mask == nil {
		return eris.New("render: layer set has no mask")
	}

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	for _, name := range paintOrder(layers) {
		style, ok := r.styles[name]
		if !ok {
			style = fallbackStyle
		}
		for _, f := range layers[name].Features {
			if err := addGeometry(p, f.Geom, style); err != nil {
				zap.L().Debug("render: skipping feature",
					zap.String("layer", name),
					zap.Error(err),
				)
			}
		}
	}

	bounds := mask.Bounds()
	p.X.Min, p.X.Max = bounds.Min(0), bounds.Max(0)
	p.Y.Min, p.Y.Max = bounds.Min(1), bounds.Max(1)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "render: create output directory")
	}
	height := r.heightFor(bounds)
	if err := p.Save(r.width, height, path); err != nil {
		return eris.Wrapf(err, "render: save %s", path)
	}
	return nil
}

// heightFor scales the image height to the mask's shape, correcting for
// longitude compression away from the equator.
func (r *Renderer) heightFor(bounds *geom.Bounds) vg.Length {
	dLon := bounds.Max(0) - bounds.Min(0)
	dLat := bounds.Max(1) - bounds.Min(1)
	if dLon <= 0 || dLat <= 0 {
		return r.width
	}
	midLat := (bounds.Min(1) + bounds.Max(1)) / 2
	ratio := dLat / (dLon * math.Cos(midLat*math.Pi/180))
	// Clamp so degenerate masks still produce a usable image.
	if ratio < 0.2 {
		ratio = 0.2
	}
	if ratio > 5 {
		ratio = 5
	}
	return vg.Length(float64(r.width) * ratio)
}

// paintOrder returns the layer names to draw, bottom-up. Layers outside the
// known order slot in before the trails overlay, alphabetically.
func paintOrder(layers layer.Set) []string {
	known := make(map[string]bool, len(drawOrder))
	for _, name := range drawOrder {
		known[name] = true
	}

	var extra []string
	for name := range layers {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	var order []string
	for _, name := range drawOrder {
		if name == "trails" {
			order = append(order, extra...)
		}
		if _, ok := layers[name]; ok {
			order = append(order, name)
		}
	}
	return order
}

func addGeometry(p *plot.Plot, g geom.T, style Style) error {
	switch t := g.(type) {
	case *geom.Point:
		return addPoint(p, t, style)
	case *geom.LineString:
		return addLine(p, flatToXYs(t.FlatCoords()), style)
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			if err := addLine(p, flatToXYs(t.LineString(i).FlatCoords()), style); err != nil {
				return err
			}
		}
		return nil
	case *geom.Polygon:
		return addPolygon(p, t, style)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := addPolygon(p, t.Polygon(i), style); err != nil {
				return err
			}
		}
		return nil
	default:
		return eris.Errorf("render: unsupported geometry %T", g)
	}
}

func addPoint(p *plot.Plot, pt *geom.Point, style Style) error {
	scatter, err := plotter.NewScatter(plotter.XYs{{X: pt.X(), Y: pt.Y()}})
	if err != nil {
		return eris.Wrap(err, "render: point")
	}
	if style.Stroke != nil {
		scatter.Color = style.Stroke
	} else if style.Fill != nil {
		scatter.Color = style.Fill
	}
	scatter.Radius = vg.Points(1.5)
	p.Add(scatter)
	return nil
}

func addLine(p *plot.Plot, xys plotter.XYs, style Style) error {
	if len(xys) < 2 {
		return nil
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return eris.Wrap(err, "render: line")
	}
	if style.Stroke != nil {
		line.Color = style.Stroke
	}
	if style.Width > 0 {
		line.Width = style.Width
	}
	line.Dashes = style.Dashes
	p.Add(line)
	return nil
}

func addPolygon(p *plot.Plot, poly *geom.Polygon, style Style) error {
	if poly.NumLinearRings() == 0 {
		return nil
	}
	// Outer ring only; interior rings are rare in rendered layers and the
	// palette's fills are close enough to the base color to mask them.
	xys := flatToXYs(poly.LinearRing(0).FlatCoords())
	if len(xys) < 3 {
		return nil
	}
	shape, err := plotter.NewPolygon(xys)
	if err != nil {
		return eris.Wrap(err, "render: polygon")
	}
	if style.Fill != nil {
		shape.Color = style.Fill
	}
	if style.Stroke != nil {
		shape.LineStyle.Color = style.Stroke
		if style.Width > 0 {
			shape.LineStyle.Width = style.Width
		}
	} else {
		shape.LineStyle.Width = 0
	}
	p.Add(shape)
	return nil
}

func flatToXYs(flat []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		xys = append(xys, plotter.XY{X: flat[i], Y: flat[i+1]})
	}
	return xys
}
