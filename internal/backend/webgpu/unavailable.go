//go:build !windows

// Package webgpu implements the GPU backend on WebGPU. The go-webgpu bindings
// are only built on Windows; elsewhere New always fails and callers fall back
// to the CPU.
package webgpu

import (
	"errors"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// ErrUnsupportedPlatform is returned by New on platforms without bindings.
var ErrUnsupportedPlatform = errors.New("webgpu: not supported on this platform")

// Backend is never constructed on this platform.
type Backend struct{ tensor.Backend }

// New always fails with ErrUnsupportedPlatform.
func New() (*Backend, error) { return nil, ErrUnsupportedPlatform }

// IsAvailable reports false.
func IsAvailable() bool { return false }

// Release is a no-op.
func (b *Backend) Release() {}
