// Package pipeline drives a 3D object detector over a dataset: single-sample
// inference, the test loop and checkpoint restoration.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CosmosHua/Open3D-ML/internal/backend"
	"github.com/CosmosHua/Open3D-ML/internal/checkpoint"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/model"
	"github.com/CosmosHua/Open3D-ML/internal/monitoring"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
	"github.com/CosmosHua/Open3D-ML/internal/timeutil"
)

// ErrNotImplemented is returned by RunTrain.
var ErrNotImplemented = errors.New("training is not implemented for the object detection pipeline")

// Config configures an ObjectDetection pipeline. Zero values select defaults.
type Config struct {
	Name       string // "ObjectDetection"
	MainLogDir string // "./logs/"
	Device     string // "gpu"; falls back to the CPU when no GPU backend is available
	Split      string // "train"

	ResultsDB string // sqlite file receiving test runs, empty disables
	RenderDir string // directory for per-sample BEV renders, empty disables
	Workers   int    // cache warm-up concurrency, 0 means one per CPU
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "ObjectDetection"
	}
	if c.MainLogDir == "" {
		c.MainLogDir = "./logs/"
	}
	if c.Device == "" {
		c.Device = "gpu"
	}
	if c.Split == "" {
		c.Split = dataset.SplitTrain
	}
}

// ObjectDetection runs a detector over a dataset. It is not safe for
// concurrent use: every method mutates the model.
type ObjectDetection struct {
	model    model.Detector
	dataset  dataset.Dataset
	cfg      Config
	logsDir  string
	backend  tensor.Backend
	device   tensor.Device
	clock    timeutil.Clock
	registry *backend.Registry
	log      *monitoring.Logger
}

// Option customizes a pipeline.
type Option func(*ObjectDetection)

// WithClock sets the clock used for run timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(p *ObjectDetection) { p.clock = c }
}

// WithRegistry sets the backend registry the device selector resolves against.
func WithRegistry(r *backend.Registry) Option {
	return func(p *ObjectDetection) { p.registry = r }
}

// WithBackend uses b instead of resolving the configured device.
func WithBackend(b tensor.Backend) Option {
	return func(p *ObjectDetection) { p.backend = b }
}

// New builds a pipeline. The device is resolved once here, unless WithBackend
// supplies the backend, and the logs directory <MainLogDir>/<Model>_<Dataset> is
// created. ds may be nil for inference-only use.
func New(m model.Detector, ds dataset.Dataset, cfg Config, opts ...Option) (*ObjectDetection, error) {
	if m == nil {
		return nil, errors.New("pipeline: model is required")
	}
	cfg.setDefaults()

	p := &ObjectDetection{
		model:   m,
		dataset: ds,
		cfg:     cfg,
		clock:   timeutil.RealClock{},
		log:     monitoring.New("object_detection"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.backend == nil {
		b, err := ResolveBackend(cfg.Device, p.registry)
		if err != nil {
			return nil, err
		}
		p.backend = b
	}
	p.device = p.backend.Device()

	datasetName := ""
	if ds != nil {
		datasetName = ds.Config().Name
	}
	p.logsDir = filepath.Join(cfg.MainLogDir, m.Config().Name+"_"+datasetName)
	if err := os.MkdirAll(p.logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	return p, nil
}

// ResolveBackend maps a device selector onto a backend of reg, or of the default
// registry when reg is nil. GPU requests fall back to the CPU with a warning.
func ResolveBackend(device string, reg *backend.Registry) (tensor.Backend, error) {
	if reg == nil {
		reg = backend.NewRegistry()
	}
	if device == "" {
		device = "gpu"
	}
	sel, err := backend.ParseSelector(device)
	if err != nil {
		return nil, err
	}
	b, err := reg.Resolve(sel, monitoring.New("object_detection").Warnf)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device: %w", err)
	}
	return b, nil
}

// Device returns the resolved device.
func (p *ObjectDetection) Device() tensor.Device { return p.device }

// Backend returns the resolved compute backend.
func (p *ObjectDetection) Backend() tensor.Backend { return p.backend }

// LogsDir returns the run log directory.
func (p *ObjectDetection) LogsDir() string { return p.logsDir }

// Config returns the effective configuration.
func (p *ObjectDetection) Config() Config { return p.cfg }

// LoadCheckpoint restores model parameters from path onto the pipeline device.
// A wrapping "state_dict" group is unwrapped and a data-parallel "module."
// prefix removed. The model is mutated in place.
func (p *ObjectDetection) LoadCheckpoint(path string) error {
	p.log.Infof("Loading checkpoint %s", path)
	return checkpoint.Apply(path, p.device, p.model)
}

// RunTrain is not supported by this pipeline.
func (p *ObjectDetection) RunTrain() error {
	return ErrNotImplemented
}

// ResolveCheckpoint returns the configured checkpoint path, or the newest
// checkpoint of the configured directory. With neither configured the error
// wraps checkpoint.ErrNoCheckpoint.
func (p *ObjectDetection) ResolveCheckpoint() (string, error) {
	cfg := p.model.Config()
	if cfg.CkptPath != "" {
		return cfg.CkptPath, nil
	}
	if cfg.CkptDir != "" {
		return checkpoint.Latest(cfg.CkptDir)
	}
	return "", fmt.Errorf("model %s configures no checkpoint: %w", cfg.Name, checkpoint.ErrNoCheckpoint)
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
