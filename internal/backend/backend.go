// Package backend resolves a device selector into a compute backend.
package backend

import (
	"fmt"
	"strings"

	"github.com/CosmosHua/Open3D-ML/internal/backend/cpu"
	"github.com/CosmosHua/Open3D-ML/internal/backend/webgpu"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Selector names the compute placement requested by configuration.
type Selector int

// Supported selectors.
const (
	SelectCPU Selector = iota
	SelectGPU
)

// String returns the configuration spelling of the selector.
func (s Selector) String() string {
	switch s {
	case SelectCPU:
		return "cpu"
	case SelectGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// ParseSelector maps a configuration value onto a Selector.
// "gpu" and "cuda" select the GPU; "cpu" and "" select the CPU.
func ParseSelector(s string) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpu", "cuda":
		return SelectGPU, nil
	case "cpu", "":
		return SelectCPU, nil
	default:
		return 0, fmt.Errorf("unknown device %q (want gpu or cpu)", s)
	}
}

// Factory creates a backend for a device. Returning an error marks the
// device as unavailable.
type Factory func() (tensor.Backend, error)

// Registry maps devices to backend factories.
type Registry struct {
	factories map[tensor.Device]Factory
}

// NewRegistry returns a registry with the CPU and WebGPU backends installed.
// WebGPU only initializes where its bindings are built and an adapter exists.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[tensor.Device]Factory{
			tensor.CPU:    func() (tensor.Backend, error) { return cpu.New(), nil },
			tensor.WebGPU: newWebGPU,
		},
	}
}

func newWebGPU() (tensor.Backend, error) {
	b, err := webgpu.New()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Register installs a factory for device, replacing any previous one.
func (r *Registry) Register(device tensor.Device, f Factory) {
	r.factories[device] = f
}

// Resolve returns the backend for sel. A GPU request falls back to the CPU
// when no GPU backend is registered or it fails to initialize; warnf receives
// the reason.
func (r *Registry) Resolve(sel Selector, warnf func(format string, args ...any)) (tensor.Backend, error) {
	cpuFactory, ok := r.factories[tensor.CPU]
	if !ok {
		return nil, fmt.Errorf("no CPU backend registered")
	}

	if sel == SelectGPU {
		if f, ok := r.factories[tensor.WebGPU]; ok {
			b, err := f()
			if err == nil {
				return b, nil
			}
			if warnf != nil {
				warnf("GPU backend unavailable (%v), falling back to CPU", err)
			}
		} else if warnf != nil {
			warnf("no GPU backend compiled in, falling back to CPU")
		}
	}

	return cpuFactory()
}
