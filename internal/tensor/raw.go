package tensor

import (
	"fmt"
	"slices"
	"unsafe"
)

// Device represents the compute device a tensor is placed on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level tensor representation: a contiguous row-major
// byte buffer tagged with shape, dtype and device.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw allocates a zeroed tensor. Dimensions must be non-negative and the
// byte size must fit an int.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	size, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, size),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the dimensions. Callers must not modify it.
func (r *RawTensor) Shape() Shape { return r.shape }

// Strides returns row-major element strides.
func (r *RawTensor) Strides() []int { return r.stride }

// DType returns the element type.
func (r *RawTensor) DType() DataType { return r.dtype }

// Device returns the device the tensor is placed on.
func (r *RawTensor) Device() Device { return r.device }

// NumElements returns the element count.
func (r *RawTensor) NumElements() int { return r.shape.NumElements() }

// ByteSize returns the buffer length in bytes.
func (r *RawTensor) ByteSize() int { return len(r.data) }

// Data returns the backing buffer.
func (r *RawTensor) Data() []byte { return r.data }

// view reinterprets the buffer as a []T without copying. It panics when the
// tensor's dtype is not want.
func view[T any](r *RawTensor, want DataType) []T {
	if r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	//nolint:gosec // G103: length is derived from the shape that sized the buffer
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(r.data))), r.NumElements())
}

// AsFloat32 views a Float32 tensor's elements. Writes go to the tensor.
func (r *RawTensor) AsFloat32() []float32 { return view[float32](r, Float32) }

// AsFloat64 views a Float64 tensor's elements.
func (r *RawTensor) AsFloat64() []float64 { return view[float64](r, Float64) }

// AsInt32 views an Int32 tensor's elements.
func (r *RawTensor) AsInt32() []int32 { return view[int32](r, Int32) }

// AsInt64 views an Int64 tensor's elements.
func (r *RawTensor) AsInt64() []int64 { return view[int64](r, Int64) }

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	return &RawTensor{
		data:   slices.Clone(r.data),
		shape:  r.shape.Clone(),
		stride: slices.Clone(r.stride),
		dtype:  r.dtype,
		device: r.device,
	}
}

// To returns the tensor placed on device. A tensor already on device is
// returned as is; otherwise the data is copied.
func (r *RawTensor) To(device Device) *RawTensor {
	if r.device == device {
		return r
	}
	out := r.Clone()
	out.device = device
	return out
}

// Reshape returns a view with a new shape over the same buffer.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape: cannot view %v (%d elements) as %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}
