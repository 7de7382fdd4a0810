package pointdet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
)

// Preprocess crops points and ground truth to PointRange and voxel-downsamples
// the points. Its output is what the data loader caches.
func (m *Model) Preprocess(s dataset.Sample, attr dataset.Attributes) (dataset.Sample, error) {
	r := m.cfg.PointRange
	inRange := func(x, y, z float64) bool {
		return x >= r[0] && x < r[3] && y >= r[1] && y < r[4] && z >= r[2] && z < r[5]
	}

	points := make([][]float32, 0, len(s.Point))
	for i, p := range s.Point {
		if len(p) != m.cfg.InChannels {
			return dataset.Sample{}, fmt.Errorf("%s: point %d has %d channels, expected %d", attr.Name, i, len(p), m.cfg.InChannels)
		}
		if inRange(float64(p[0]), float64(p[1]), float64(p[2])) {
			points = append(points, p)
		}
	}

	var boxes []geometry.BoundingBox3D
	for _, b := range s.Boxes {
		if inRange(b.Center.X, b.Center.Y, b.Center.Z) {
			boxes = append(boxes, b)
		}
	}

	return dataset.Sample{Point: VoxelDownsample(points, m.cfg.VoxelSize), Boxes: boxes}, nil
}

// Transform caps the number of points at MaxPoints by uniform striding so the
// result is deterministic.
func (m *Model) Transform(s dataset.Sample, _ dataset.Attributes) (dataset.Sample, error) {
	limit := m.cfg.MaxPoints
	n := len(s.Point)
	if limit <= 0 || n <= limit {
		return s, nil
	}
	kept := make([][]float32, limit)
	for i := range kept {
		kept[i] = s.Point[i*n/limit]
	}
	return dataset.Sample{Point: kept, Boxes: s.Boxes}, nil
}

type voxelKey struct{ x, y, z int64 }

type voxelCell struct {
	sum   r3.Vec
	count int
}

// VoxelDownsample keeps, for every occupied voxel of edge leaf, the point
// closest to the voxel's centroid. Voxels are emitted in order of first
// occupancy. A non-positive leaf returns points unchanged.
func VoxelDownsample(points [][]float32, leaf float64) [][]float32 {
	if leaf <= 0 || len(points) == 0 {
		return points
	}

	key := func(p []float32) voxelKey {
		return voxelKey{
			x: int64(math.Floor(float64(p[0]) / leaf)),
			y: int64(math.Floor(float64(p[1]) / leaf)),
			z: int64(math.Floor(float64(p[2]) / leaf)),
		}
	}
	vec := func(p []float32) r3.Vec {
		return r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
	}

	cells := make(map[voxelKey]*voxelCell)
	var order []voxelKey
	for _, p := range points {
		k := key(p)
		c, ok := cells[k]
		if !ok {
			c = &voxelCell{}
			cells[k] = c
			order = append(order, k)
		}
		c.sum = r3.Add(c.sum, vec(p))
		c.count++
	}

	best := make(map[voxelKey]int, len(cells))
	bestDist := make(map[voxelKey]float64, len(cells))
	for i, p := range points {
		k := key(p)
		c := cells[k]
		centroid := r3.Scale(1/float64(c.count), c.sum)
		d := r3.Norm2(r3.Sub(vec(p), centroid))
		if prev, ok := bestDist[k]; !ok || d < prev {
			best[k], bestDist[k] = i, d
		}
	}

	out := make([][]float32, 0, len(order))
	for _, k := range order {
		out = append(out, points[best[k]])
	}
	return out
}
