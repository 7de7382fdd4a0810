//go:build windows

// Package webgpu implements the GPU backend on WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO bindings.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Backend runs the detector operations as WGSL compute shaders.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

var _ tensor.Backend = (*Backend)(nil)

// New creates a WebGPU backend on the high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// wgpu panics when the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Release frees the cached pipelines and the device.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	for _, s := range b.shaders {
		s.Release()
	}
	b.pipelines, b.shaders = nil, nil

	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "WebGPU" }

// Device returns tensor.WebGPU.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// MatMul performs (M, K) @ (K, N) -> (M, N) on the GPU.
func (b *Backend) MatMul(x, w *tensor.RawTensor) *tensor.RawTensor {
	return must(b.runMatMul(x, w))
}

// AddRow adds row to every row of x on the GPU.
func (b *Backend) AddRow(x, row *tensor.RawTensor) *tensor.RawTensor {
	return must(b.runAddRow(x, row))
}

// Transpose swaps the axes of a 2D tensor on the GPU.
func (b *Backend) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	return must(b.runTranspose(x))
}

// ReLU computes max(0, x) on the GPU.
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return must(b.runUnaryOp(x, "relu", reluShader))
}

// Sigmoid computes 1 / (1 + exp(-x)) on the GPU.
func (b *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return must(b.runUnaryOp(x, "sigmoid", sigmoidShader))
}

// must turns an op error into the panic the Backend contract asks for.
func must(r *tensor.RawTensor, err error) *tensor.RawTensor {
	if err != nil {
		panic(err.Error())
	}
	return r
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}
