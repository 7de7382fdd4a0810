package pipeline

import (
	"fmt"

	"github.com/CosmosHua/Open3D-ML/internal/autodiff"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// RunInference detects boxes in one raw sample.
//
// The model is moved to the pipeline device and put in evaluation mode on
// every call, and gradient bookkeeping is disabled for the call. The sample
// is submitted as a batch of one and that batch element's boxes are returned.
func (p *ObjectDetection) RunInference(data dataset.Sample) ([]geometry.BoundingBox3D, error) {
	p.model.To(p.device)
	p.model.Eval()

	restore := autodiff.NoGrad()
	defer restore()

	input, err := tensor.FromPoints(data.Point, p.device)
	if err != nil {
		return nil, fmt.Errorf("failed to build input tensor: %w", err)
	}
	out, err := p.model.Forward(input)
	if err != nil {
		return nil, err
	}
	batches, err := p.model.InferenceEnd(out)
	if err != nil {
		return nil, err
	}
	if len(batches) != 1 {
		return nil, fmt.Errorf("inference returned %d batch elements for a batch of 1", len(batches))
	}
	return batches[0], nil
}
