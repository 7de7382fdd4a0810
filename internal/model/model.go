// Package model defines the detector contract driven by the pipeline.
package model

import (
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Config is the part of a model configuration the pipeline reads.
type Config struct {
	Name     string
	CkptPath string // checkpoint restored before testing; empty selects the latest in CkptDir
	CkptDir  string
}

// Output is a raw forward result together with the input it was computed from.
type Output struct {
	Inputs *tensor.RawTensor // [B, N, C]
	Raw    *tensor.RawTensor // [B*N, K] per-point head output
}

// Detector is a 3D object detector.
//
// Forward and InferenceEnd are split so callers can inspect raw head
// outputs; InferenceEnd returns one box list per batch element.
type Detector interface {
	Config() Config

	To(device tensor.Device)
	Device() tensor.Device
	Eval()
	Train()
	Training() bool

	Forward(input *tensor.RawTensor) (*Output, error)
	InferenceEnd(out *Output) ([][]geometry.BoundingBox3D, error)

	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	Preprocess(s dataset.Sample, attr dataset.Attributes) (dataset.Sample, error)
	Transform(s dataset.Sample, attr dataset.Attributes) (dataset.Sample, error)
}
