// Package visualiser renders bird's-eye views of point clouds and detected
// boxes with gonum/plot.
package visualiser

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/CosmosHua/Open3D-ML/internal/geometry"
)

// BEVOptions control a render.
type BEVOptions struct {
	Title      string
	Width      vg.Length // defaults to 8 inches
	Height     vg.Length // defaults to 8 inches
	NumClasses int       // palette size, defaults to the highest label seen + 1
}

// RenderBEV draws points (x, y taken from the first two channels) and the
// footprints of boxes, and saves the image to path. The format follows the
// extension of path (.png, .svg, .pdf, ...).
func RenderBEV(path string, points [][]float32, boxes []geometry.BoundingBox3D, opts BEVOptions) error {
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	if len(points) > 0 {
		xys := make(plotter.XYs, len(points))
		for i, pt := range points {
			if len(pt) < 2 {
				return fmt.Errorf("render %s: point %d has %d channels", filepath.Base(path), i, len(pt))
			}
			xys[i] = plotter.XY{X: float64(pt[0]), Y: float64(pt[1])}
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("failed to create scatter: %w", err)
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(0.5)
		scatter.GlyphStyle.Color = color.RGBA{R: 90, G: 90, B: 90, A: 255}
		p.Add(scatter)
	}

	numClasses := opts.NumClasses
	for _, b := range boxes {
		numClasses = max(numClasses, b.Label+1)
	}
	colors := generateColors(numClasses)

	for _, b := range boxes {
		corners := b.BEVCorners()
		outline := make(plotter.XYs, 0, 6)
		for _, c := range corners {
			outline = append(outline, plotter.XY{X: c.X, Y: c.Y})
		}
		outline = append(outline, outline[0])
		// heading marker from the centre to the front edge
		front := plotter.XYs{
			{X: b.Center.X, Y: b.Center.Y},
			{X: (corners[0].X + corners[3].X) / 2, Y: (corners[0].Y + corners[3].Y) / 2},
		}

		for _, xy := range []plotter.XYs{outline, front} {
			line, err := plotter.NewLine(xy)
			if err != nil {
				return fmt.Errorf("failed to create box outline: %w", err)
			}
			if b.Label >= 0 && b.Label < len(colors) {
				line.Color = colors[b.Label]
			}
			line.Width = vg.Points(1)
			p.Add(line)
		}
	}

	width, height := opts.Width, opts.Height
	if width == 0 {
		width = 8 * vg.Inch
	}
	if height == 0 {
		height = 8 * vg.Inch
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save render: %w", err)
	}
	return nil
}

// generateColors creates a palette of distinct colors for class labels
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h * 6
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r1, g1, b1 float64
	switch {
	case hp < 1:
		r1, g1, b1 = c, x, 0
	case hp < 2:
		r1, g1, b1 = x, c, 0
	case hp < 3:
		r1, g1, b1 = 0, c, x
	case hp < 4:
		r1, g1, b1 = 0, x, c
	case hp < 5:
		r1, g1, b1 = x, 0, c
	default:
		r1, g1, b1 = c, 0, x
	}
	m := l - c/2
	return uint8(math.Round((r1 + m) * 255)), uint8(math.Round((g1 + m) * 255)), uint8(math.Round((b1 + m) * 255))
}
