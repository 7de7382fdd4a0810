package cpu

import (
	"math"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("relu", x)
	result := x.Clone().To(cpu.device)
	data := result.AsFloat32()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return result
}

// Sigmoid computes 1 / (1 + exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("sigmoid", x)
	result := x.Clone().To(cpu.device)
	data := result.AsFloat32()
	for i, v := range data {
		data[i] = Sigmoid32(v)
	}
	return result
}

// Sigmoid32 is the scalar logistic function.
func Sigmoid32(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}
