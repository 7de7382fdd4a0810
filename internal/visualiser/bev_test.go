package visualiser

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/vg"

	"github.com/CosmosHua/Open3D-ML/internal/geometry"
)

func TestRenderBEV(t *testing.T) {
	dir := t.TempDir()
	points := [][]float32{{1, 1, 0, 0}, {5, -2, 0, 0}, {12, 3, 0, 0}}
	boxes := []geometry.BoundingBox3D{
		{Center: r3.Vec{X: 5, Y: 0}, Size: r3.Vec{X: 3.9, Y: 1.6, Z: 1.5}, Yaw: 0.3, Label: 0},
		{Center: r3.Vec{X: 10, Y: 2}, Size: r3.Vec{X: 0.8, Y: 0.6, Z: 1.7}, Label: 2},
	}

	pngPath := filepath.Join(dir, "000001.png")
	require.NoError(t, RenderBEV(pngPath, points, boxes, BEVOptions{Title: "000001", Width: 3 * vg.Inch, Height: 3 * vg.Inch}))

	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 288, img.Bounds().Dx()) // 3in at the default 96 dpi

	svgPath := filepath.Join(dir, "000001.svg")
	require.NoError(t, RenderBEV(svgPath, points, nil, BEVOptions{}))
	info, err := os.Stat(svgPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRenderBEVRejectsNarrowPoints(t *testing.T) {
	err := RenderBEV(filepath.Join(t.TempDir(), "x.png"), [][]float32{{1}}, nil, BEVOptions{})
	require.Error(t, err)
}

func TestGenerateColors(t *testing.T) {
	assert.Nil(t, generateColors(0))
	colors := generateColors(3)
	require.Len(t, colors, 3)
	assert.Equal(t, color.RGBA{R: 217, G: 38, B: 38, A: 255}, colors[0])
}
