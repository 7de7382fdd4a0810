package tensor

import "fmt"

// FromFloat32 creates a float32 tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	raw, err := NewRaw(shape, Float32, device)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return raw, nil
}

// FromPoints builds a single-element batch of shape [1, N, C] from point rows.
// Every row must have the same number of channels.
func FromPoints(points [][]float32, device Device) (*RawTensor, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("points: empty point set")
	}
	channels := len(points[0])
	if channels == 0 {
		return nil, fmt.Errorf("points: row 0 has no channels")
	}

	flat := make([]float32, 0, len(points)*channels)
	for i, row := range points {
		if len(row) != channels {
			return nil, fmt.Errorf("points: row %d has %d channels, expected %d", i, len(row), channels)
		}
		flat = append(flat, row...)
	}

	return FromFloat32(flat, Shape{1, len(points), channels}, device)
}

// Rows returns a 2D float32 tensor as a slice of row slices that alias its memory.
func Rows(r *RawTensor) ([][]float32, error) {
	shape := r.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("rows: expected 2D tensor, got shape %v", shape)
	}
	if r.DType() != Float32 {
		return nil, fmt.Errorf("rows: expected float32, got %s", r.DType())
	}
	data := r.AsFloat32()
	n, c := shape[0], shape[1]
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = data[i*c : (i+1)*c : (i+1)*c]
	}
	return rows, nil
}
