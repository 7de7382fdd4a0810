package nn

import (
	"fmt"

	"github.com/CosmosHua/Open3D-ML/internal/autodiff"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Weights are initialized using Xavier/Glorot initialization.
// Biases are initialized to zeros.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]
	backend     tensor.Backend
	training    bool
	saved       *tensor.RawTensor // input kept for backward while training with grad enabled
}

// NewLinear creates a new Linear layer.
func NewLinear(inFeatures, outFeatures int, backend tensor.Backend) *Linear {
	device := backend.Device()
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, device)),
		bias:        NewParameter("bias", Zeros(tensor.Shape{outFeatures}, device)),
		backend:     backend,
		training:    true,
	}
}

// Forward computes y = x @ W.T + b for an input of shape [batch, in_features].
func (l *Linear) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		return nil, fmt.Errorf("linear: expected 2D input [batch, features], got shape %v", inputShape)
	}
	if inputShape[1] != l.inFeatures {
		return nil, fmt.Errorf("linear: expected input with %d features, got %d", l.inFeatures, inputShape[1])
	}
	if input.DType() != tensor.Float32 {
		return nil, fmt.Errorf("linear: expected float32 input, got %s", input.DType())
	}

	if l.training && autodiff.IsGradEnabled() {
		l.saved = input
	} else {
		l.saved = nil
	}

	wT := l.backend.Transpose(l.weight.Tensor())
	output := l.backend.MatMul(input, wT)
	if l.bias != nil {
		output = l.backend.AddRow(output, l.bias.Tensor())
	}
	return output, nil
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// SavedInput returns the activation retained by the last Forward call, or nil
// when the call ran in evaluation mode or under autodiff.NoGrad.
func (l *Linear) SavedInput() *tensor.RawTensor {
	return l.saved
}

// SetTraining switches the layer between training and evaluation mode.
func (l *Linear) SetTraining(training bool) {
	l.training = training
	if !training {
		l.saved = nil
	}
}

// To moves the parameters to device.
func (l *Linear) To(device tensor.Device) {
	for _, p := range l.Parameters() {
		p.To(device)
	}
}

// StateDict returns a map of parameter names to raw tensors.
func (l *Linear) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	stateDict["weight"] = l.weight.Tensor()
	if l.bias != nil {
		stateDict["bias"] = l.bias.Tensor()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	weightRaw, ok := stateDict["weight"]
	if !ok {
		return fmt.Errorf("missing weight in state dict")
	}
	if err := l.weight.Load(weightRaw); err != nil {
		return err
	}

	if l.bias != nil {
		biasRaw, ok := stateDict["bias"]
		if !ok {
			return fmt.Errorf("missing bias in state dict")
		}
		if err := l.bias.Load(biasRaw); err != nil {
			return err
		}
	}
	return nil
}
