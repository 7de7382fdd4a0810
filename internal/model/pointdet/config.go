package pointdet

import (
	"errors"
	"fmt"
)

// Class describes one detectable class and its anchor size (l, w, h).
type Class struct {
	Name   string
	Anchor [3]float64
}

// Config parameterizes a PointDet model.
type Config struct {
	Name       string
	CkptPath   string
	CkptDir    string
	InChannels int
	Hidden     []int
	Classes    []Class

	// PointRange is xmin, ymin, zmin, xmax, ymax, zmax.
	PointRange     [6]float64
	VoxelSize      float64 // 0 disables downsampling
	MaxPoints      int     // 0 keeps every point
	ScoreThreshold float64
	NMSThreshold   float64
	TopK           int
}

// DefaultConfig returns the KITTI car/pedestrian/cyclist setup.
func DefaultConfig() Config {
	return Config{
		Name:       "PointDet",
		InChannels: 4,
		Hidden:     []int{64, 64},
		Classes: []Class{
			{Name: "Car", Anchor: [3]float64{3.9, 1.6, 1.56}},
			{Name: "Pedestrian", Anchor: [3]float64{0.8, 0.6, 1.73}},
			{Name: "Cyclist", Anchor: [3]float64{1.76, 0.6, 1.73}},
		},
		PointRange:     [6]float64{0, -40, -3, 70.4, 40, 1},
		VoxelSize:      0.1,
		MaxPoints:      16384,
		ScoreThreshold: 0.3,
		NMSThreshold:   0.25,
		TopK:           100,
	}
}

// OutputWidth is the per-point head width: objectness, class logits, 7 box terms.
func (c Config) OutputWidth() int {
	return 1 + len(c.Classes) + boxTerms
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.InChannels < 3 {
		errs = append(errs, fmt.Errorf("in_channels must be >= 3 (x, y, z), got %d", c.InChannels))
	}
	if len(c.Classes) == 0 {
		errs = append(errs, errors.New("at least one class is required"))
	}
	for i, h := range c.Hidden {
		if h <= 0 {
			errs = append(errs, fmt.Errorf("hidden[%d] must be positive, got %d", i, h))
		}
	}
	for i := 0; i < 3; i++ {
		if c.PointRange[i] >= c.PointRange[i+3] {
			errs = append(errs, fmt.Errorf("point_range axis %d is empty: [%g, %g]", i, c.PointRange[i], c.PointRange[i+3]))
		}
	}
	if c.VoxelSize < 0 || c.MaxPoints < 0 || c.TopK < 0 {
		errs = append(errs, errors.New("voxel_size, max_points and top_k must be non-negative"))
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 || c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		errs = append(errs, errors.New("score and nms thresholds must be in [0, 1]"))
	}
	return errors.Join(errs...)
}
