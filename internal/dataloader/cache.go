package dataloader

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/serialization"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Cache archives hold the preprocessed points as "point" [N, C] float32 and
// ground truth as "boxes" [M, 9] float64 rows of
// cx, cy, cz, l, w, h, yaw, label, confidence. Label class names live in the
// metadata under "label_class.<row>".
const (
	cachePointKey = "point"
	cacheBoxesKey = "boxes"
	boxColumns    = 9
)

func writeCache(path string, s dataset.Sample) error {
	archive := serialization.NewArchive()
	archive.Header.ModelType = "cache"

	if len(s.Point) > 0 {
		batch, err := tensor.FromPoints(s.Point, tensor.CPU)
		if err != nil {
			return fmt.Errorf("failed to cache points: %w", err)
		}
		points, err := batch.Reshape(tensor.Shape{len(s.Point), len(s.Point[0])})
		if err != nil {
			return err
		}
		archive.Put("", cachePointKey, points)
	}

	if len(s.Boxes) > 0 {
		boxes, err := tensor.NewRaw(tensor.Shape{len(s.Boxes), boxColumns}, tensor.Float64, tensor.CPU)
		if err != nil {
			return err
		}
		data := boxes.AsFloat64()
		for i, b := range s.Boxes {
			copy(data[i*boxColumns:], []float64{
				b.Center.X, b.Center.Y, b.Center.Z,
				b.Size.X, b.Size.Y, b.Size.Z,
				b.Yaw, float64(b.Label), b.Confidence,
			})
			if b.LabelClass != "" {
				archive.Header.Metadata["label_class."+strconv.Itoa(i)] = b.LabelClass
			}
		}
		archive.Put("", cacheBoxesKey, boxes)
	}

	return serialization.WriteFile(path, archive)
}

func readCache(path string) (dataset.Sample, error) {
	archive, err := serialization.ReadFile(path, tensor.CPU, serialization.ReaderOptions{})
	if err != nil {
		return dataset.Sample{}, fmt.Errorf("failed to read cache: %w", err)
	}

	var s dataset.Sample
	if points, ok := archive.Tensors[cachePointKey]; ok {
		if s.Point, err = tensor.Rows(points); err != nil {
			return dataset.Sample{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	if boxes, ok := archive.Tensors[cacheBoxesKey]; ok {
		shape := boxes.Shape()
		if len(shape) != 2 || shape[1] != boxColumns || boxes.DType() != tensor.Float64 {
			return dataset.Sample{}, fmt.Errorf("%s: malformed boxes tensor %v %s", path, shape, boxes.DType())
		}
		data := boxes.AsFloat64()
		s.Boxes = make([]geometry.BoundingBox3D, shape[0])
		for i := range s.Boxes {
			row := data[i*boxColumns : (i+1)*boxColumns]
			s.Boxes[i] = geometry.BoundingBox3D{
				Center:     r3.Vec{X: row[0], Y: row[1], Z: row[2]},
				Size:       r3.Vec{X: row[3], Y: row[4], Z: row[5]},
				Yaw:        row[6],
				Label:      int(row[7]),
				LabelClass: archive.Header.Metadata["label_class."+strconv.Itoa(i)],
				Confidence: row[8],
			}
		}
	}
	return s, nil
}
