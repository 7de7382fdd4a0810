// Package nn implements the neural network modules used by the detectors.
//
// This package provides building blocks for constructing point-wise networks:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters
//   - Linear: Fully connected layer
//   - Activations: ReLU, Sigmoid
//   - Sequential: Container for stacking layers
//
// Design inspired by PyTorch's nn.Module.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(4, 64, backend),
//	    nn.NewReLU(backend),
//	    nn.NewLinear(64, 16, backend),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	// Shape or dtype mismatches are reported as errors.
	Forward(input *tensor.RawTensor) (*tensor.RawTensor, error)

	// Parameters returns all trainable parameters of this module, including
	// nested module parameters.
	Parameters() []*Parameter

	// StateDict returns a map of parameter names to raw tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies parameters from a state dictionary.
	// Returns an error if a required parameter is missing or has wrong shape.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// SetTraining switches between training and evaluation behavior.
	SetTraining(training bool)

	// To moves all parameters to device.
	To(device tensor.Device)
}

// LoadStrict loads stateDict into m after checking that its key set matches
// m.StateDict() exactly. Missing and unexpected keys are both reported.
func LoadStrict(m Module, stateDict map[string]*tensor.RawTensor) error {
	expected := m.StateDict()

	var missing, unexpected []string
	for name := range expected {
		if _, ok := stateDict[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range stateDict {
		if _, ok := expected[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}

	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return &StateDictError{Missing: missing, Unexpected: unexpected}
	}

	return m.LoadStateDict(stateDict)
}

// StateDictError reports a key mismatch between a state dict and a module.
type StateDictError struct {
	Missing    []string
	Unexpected []string
}

// Error implements the error interface.
func (e *StateDictError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected keys %s", strings.Join(e.Unexpected, ", ")))
	}
	return "state dict mismatch: " + strings.Join(parts, "; ")
}
