package nn

import (
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// activation adapts an element-wise backend op to the Module interface.
type activation struct {
	op func(*tensor.RawTensor) *tensor.RawTensor
}

func (a *activation) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	return a.op(input), nil
}

func (a *activation) Parameters() []*Parameter                         { return nil }
func (a *activation) StateDict() map[string]*tensor.RawTensor          { return map[string]*tensor.RawTensor{} }
func (a *activation) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }
func (a *activation) SetTraining(bool)                                 {}
func (a *activation) To(tensor.Device)                                 {}

// ReLU is a Rectified Linear Unit activation module: f(x) = max(0, x).
type ReLU struct{ activation }

// NewReLU creates a new ReLU activation module.
func NewReLU(backend tensor.Backend) *ReLU {
	return &ReLU{activation{op: backend.ReLU}}
}

// Sigmoid is a sigmoid activation module: f(x) = 1 / (1 + exp(-x)).
type Sigmoid struct{ activation }

// NewSigmoid creates a new Sigmoid activation module.
func NewSigmoid(backend tensor.Backend) *Sigmoid {
	return &Sigmoid{activation{op: backend.Sigmoid}}
}
