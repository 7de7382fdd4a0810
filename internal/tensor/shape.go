package tensor

import (
	"fmt"
	"math"
	"slices"
)

// Shape lists tensor dimensions outermost first. An empty shape is a scalar.
type Shape []int

// NumElements returns the product of the dimensions.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects negative dimensions. Zero-sized dimensions are allowed.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d < 0 }); i >= 0 {
		return fmt.Errorf("shape %v: dimension %d is %d, want >= 0", []int(s), i, s[i])
	}
	return nil
}

// SizeOf returns the bytes needed to store the shape at width bytes per
// element. It fails on an invalid shape or when the count overflows int.
func (s Shape) SizeOf(width int) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	n := width
	for _, d := range s {
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("shape %v at %d bytes per element overflows", []int(s), width)
		}
		n *= d
	}
	return n, nil
}

// ByteSize returns the buffer length of a dtype tensor of this shape.
func (s Shape) ByteSize(dtype DataType) (int, error) { return s.SizeOf(dtype.Size()) }

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// Clone returns an independent copy.
func (s Shape) Clone() Shape { return slices.Clone(s) }

// Rank is the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// ComputeStrides returns row-major element strides.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}
