package nn

import (
	"fmt"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
type Parameter struct {
	name   string            // Parameter name (e.g., "weight", "bias")
	tensor *tensor.RawTensor // The parameter tensor
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// To moves the parameter to device.
func (p *Parameter) To(device tensor.Device) {
	p.tensor = p.tensor.To(device)
}

// Load copies src into the parameter after validating shape and dtype.
func (p *Parameter) Load(src *tensor.RawTensor) error {
	if !src.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.name, p.tensor.Shape(), src.Shape())
	}
	if src.DType() != p.tensor.DType() {
		return fmt.Errorf("%s dtype mismatch: expected %v, got %v", p.name, p.tensor.DType(), src.DType())
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}
