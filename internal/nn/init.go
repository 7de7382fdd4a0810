package nn

import (
	"math"
	"math/rand/v2"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Xavier returns a float32 tensor drawn from the Glorot uniform distribution
// U(-a, a) with a = sqrt(6 / (fanIn + fanOut)).
func Xavier(fanIn, fanOut int, shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	t := mustFloat32(shape, device)
	a := math.Sqrt(6 / float64(fanIn+fanOut))
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // G404: weight init needs no cryptographic randomness
		data[i] = float32(a * (2*rand.Float64() - 1))
	}
	return t
}

// Zeros returns a zero-filled float32 tensor.
func Zeros(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	return mustFloat32(shape, device)
}

// mustFloat32 allocates a layer tensor. Layer shapes come from constructor
// arguments, so an invalid one is a programming error.
func mustFloat32(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(err)
	}
	return t
}
