// Package dataset defines the split-based dataset contract consumed by the
// detection pipeline and two implementations: an in-memory dataset and a
// directory of KITTI-style binary point clouds.
package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CosmosHua/Open3D-ML/internal/geometry"
)

// Standard split names.
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
	SplitTest       = "test"
	SplitAll        = "all"
)

// ErrUnknownSplit is returned by GetSplit for a split the dataset does not have.
var ErrUnknownSplit = errors.New("unknown split")

// Sample is one raw frame: point rows [N][C] and optional ground truth.
type Sample struct {
	Point [][]float32
	Boxes []geometry.BoundingBox3D
}

// Attributes identify a sample within a split.
type Attributes struct {
	Name  string
	Path  string
	Split string
	Index int
}

var stemReplacer = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

// FileStem returns the sample name made safe for use as a single path element,
// or the zero-padded index when the sample is unnamed.
func (a Attributes) FileStem() string {
	if a.Name == "" {
		return fmt.Sprintf("%06d", a.Index)
	}
	return stemReplacer.Replace(a.Name)
}

// Config is the dataset-level configuration shared with the data loader.
type Config struct {
	Name     string
	Path     string
	UseCache bool
	CacheDir string
}

// Split is an indexable view of one partition of a dataset.
type Split interface {
	Len() int
	Get(idx int) (Sample, error)
	Attr(idx int) Attributes
	Name() string
}

// Dataset provides splits by name.
type Dataset interface {
	GetSplit(name string) (Split, error)
	Config() Config
}

func checkIndex(idx, n int) error {
	if idx < 0 || idx >= n {
		return fmt.Errorf("index %d out of range [0, %d)", idx, n)
	}
	return nil
}
