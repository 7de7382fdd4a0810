// Package pointdet implements a per-point detector: a shared MLP scores every
// point for objectness and class, and regresses a box anchored at the point.
package pointdet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/CosmosHua/Open3D-ML/internal/backend/cpu"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/model"
	"github.com/CosmosHua/Open3D-ML/internal/nn"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Box terms: dx, dy, dz, log-scale l, w, h relative to the class anchor, yaw.
const boxTerms = 7

// maxLogScale bounds exp() of the size terms.
const maxLogScale = 4

// Model is the PointDet detector.
type Model struct {
	cfg      Config
	net      *nn.Sequential
	device   tensor.Device
	training bool
}

var _ model.Detector = (*Model)(nil)

// New builds a model with freshly initialized weights on backend.
func New(cfg Config, backend tensor.Backend) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pointdet config: %w", err)
	}

	var layers []nn.Module
	in := cfg.InChannels
	for _, h := range cfg.Hidden {
		layers = append(layers, nn.NewLinear(in, h, backend), nn.NewReLU(backend))
		in = h
	}
	layers = append(layers, nn.NewLinear(in, cfg.OutputWidth(), backend))

	m := &Model{
		cfg:    cfg,
		net:    nn.NewSequential(layers...),
		device: backend.Device(),
	}
	m.Train()
	return m, nil
}

// Config returns the checkpoint-related part of the configuration.
func (m *Model) Config() model.Config {
	return model.Config{Name: m.cfg.Name, CkptPath: m.cfg.CkptPath, CkptDir: m.cfg.CkptDir}
}

// Settings returns the full model configuration.
func (m *Model) Settings() Config { return m.cfg }

// Network exposes the underlying layer stack.
func (m *Model) Network() *nn.Sequential { return m.net }

// To moves every parameter to device.
func (m *Model) To(device tensor.Device) {
	m.net.To(device)
	m.device = device
}

// Device returns the device the parameters live on.
func (m *Model) Device() tensor.Device { return m.device }

// Eval switches to evaluation mode.
func (m *Model) Eval() {
	m.training = false
	m.net.SetTraining(false)
}

// Train switches to training mode.
func (m *Model) Train() {
	m.training = true
	m.net.SetTraining(true)
}

// Training reports whether the model is in training mode.
func (m *Model) Training() bool { return m.training }

// StateDict returns the parameters keyed like "0.weight".
func (m *Model) StateDict() map[string]*tensor.RawTensor {
	return m.net.StateDict()
}

// LoadStateDict loads parameters, rejecting missing and unexpected keys.
func (m *Model) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStrict(m.net, stateDict)
}

// Forward runs the MLP over every point of a [B, N, C] float32 batch.
func (m *Model) Forward(input *tensor.RawTensor) (*model.Output, error) {
	shape := input.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("pointdet: expected [batch, points, channels] input, got shape %v", shape)
	}
	if shape[2] != m.cfg.InChannels {
		return nil, fmt.Errorf("pointdet: expected %d channels, got %d", m.cfg.InChannels, shape[2])
	}

	flat, err := input.Reshape(tensor.Shape{shape[0] * shape[1], shape[2]})
	if err != nil {
		return nil, err
	}
	raw, err := m.net.Forward(flat)
	if err != nil {
		return nil, fmt.Errorf("pointdet forward: %w", err)
	}
	return &model.Output{Inputs: input, Raw: raw}, nil
}

// InferenceEnd decodes per-point predictions into boxes, one list per batch
// element: score threshold, anchor decoding, then BEV NMS and top-K.
func (m *Model) InferenceEnd(out *model.Output) ([][]geometry.BoundingBox3D, error) {
	inShape := out.Inputs.Shape()
	if len(inShape) != 3 {
		return nil, fmt.Errorf("pointdet: expected 3D inputs, got shape %v", inShape)
	}
	batch, points, channels := inShape[0], inShape[1], inShape[2]
	width := m.cfg.OutputWidth()
	if rs := out.Raw.Shape(); len(rs) != 2 || rs[0] != batch*points || rs[1] != width {
		return nil, fmt.Errorf("pointdet: raw output shape %v does not match [%d, %d]", rs, batch*points, width)
	}

	in, raw := out.Inputs.AsFloat32(), out.Raw.AsFloat32()
	numClasses := len(m.cfg.Classes)

	results := make([][]geometry.BoundingBox3D, batch)
	for b := 0; b < batch; b++ {
		var cands []geometry.BoundingBox3D
		for i := 0; i < points; i++ {
			idx := b*points + i
			row := raw[idx*width : (idx+1)*width]

			label, logit := argmax(row[1 : 1+numClasses])
			score := float64(cpu.Sigmoid32(row[0])) * float64(cpu.Sigmoid32(logit))
			if score < m.cfg.ScoreThreshold {
				continue
			}

			p := in[idx*channels : idx*channels+3]
			cands = append(cands, m.decode(p, row[1+numClasses:], label, score))
		}
		results[b] = geometry.NMS(cands, m.cfg.NMSThreshold, m.cfg.TopK)
	}
	return results, nil
}

func (m *Model) decode(p, terms []float32, label int, score float64) geometry.BoundingBox3D {
	class := m.cfg.Classes[label]
	scale := func(t float32, anchor float64) float64 {
		return anchor * math.Exp(math.Max(-maxLogScale, math.Min(maxLogScale, float64(t))))
	}
	return geometry.BoundingBox3D{
		Center: r3.Vec{
			X: float64(p[0] + terms[0]),
			Y: float64(p[1] + terms[1]),
			Z: float64(p[2] + terms[2]),
		},
		Size: r3.Vec{
			X: scale(terms[3], class.Anchor[0]),
			Y: scale(terms[4], class.Anchor[1]),
			Z: scale(terms[5], class.Anchor[2]),
		},
		Yaw:        float64(terms[6]),
		Label:      label,
		LabelClass: class.Name,
		Confidence: score,
	}
}

func argmax(v []float32) (int, float32) {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best, v[best]
}
