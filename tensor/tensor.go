// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the tensor types the detection pipeline exchanges
// with models: a contiguous byte buffer tagged with shape, dtype and device.
//
// Example:
//
//	raw, err := tensor.FromPoints([][]float32{{1, 2, 0, 0.5}}, tensor.CPU)
//	// raw.Shape() is [1 1 4]
package tensor

import (
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// RawTensor is the low-level tensor representation.
type RawTensor = tensor.RawTensor

// Shape is a tensor shape.
type Shape = tensor.Shape

// DataType is a tensor element type.
type DataType = tensor.DataType

// Device is a compute device.
type Device = tensor.Device

// Backend executes raw tensor operations on one device.
type Backend = tensor.Backend

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Supported devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// NewRaw allocates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromFloat32 copies data into a float32 tensor of the given shape.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, device)
}

// FromPoints packs point rows into a single-element batch of shape [1, N, C].
func FromPoints(points [][]float32, device Device) (*RawTensor, error) {
	return tensor.FromPoints(points, device)
}
