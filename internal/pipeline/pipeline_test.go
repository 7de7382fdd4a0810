package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/CosmosHua/Open3D-ML/internal/autodiff"
	"github.com/CosmosHua/Open3D-ML/internal/backend"
	"github.com/CosmosHua/Open3D-ML/internal/backend/cpu"
	"github.com/CosmosHua/Open3D-ML/internal/backend/webgpu"
	"github.com/CosmosHua/Open3D-ML/internal/checkpoint"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/model"
	"github.com/CosmosHua/Open3D-ML/internal/monitoring"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
	"github.com/CosmosHua/Open3D-ML/internal/timeutil"
)

// fakeDetector emits boxesPerSample[p] boxes for an input whose first value
// is p and records how the pipeline drives it.
type fakeDetector struct {
	cfg            model.Config
	device         tensor.Device
	training       bool
	boxesPerSample map[float32]int

	toCalls       int
	evalCalls     int
	forwardGrad   []bool
	forwardTrain  []bool
	preprocessed  []string
	loaded        map[string]*tensor.RawTensor
	forwardErrFor float32
}

func newFake(name string) *fakeDetector {
	return &fakeDetector{
		cfg:            model.Config{Name: name},
		training:       true,
		boxesPerSample: map[float32]int{},
		forwardErrFor:  -1,
	}
}

func (f *fakeDetector) Config() model.Config  { return f.cfg }
func (f *fakeDetector) Device() tensor.Device { return f.device }
func (f *fakeDetector) Training() bool        { return f.training }
func (f *fakeDetector) Train()                { f.training = true }

func (f *fakeDetector) To(device tensor.Device) {
	f.toCalls++
	f.device = device
}

func (f *fakeDetector) Eval() {
	f.evalCalls++
	f.training = false
}

func (f *fakeDetector) StateDict() map[string]*tensor.RawTensor { return f.loaded }

func (f *fakeDetector) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	if _, ok := sd["weight"]; !ok {
		return fmt.Errorf("missing key weight")
	}
	f.loaded = sd
	return nil
}

func (f *fakeDetector) Forward(input *tensor.RawTensor) (*model.Output, error) {
	f.forwardGrad = append(f.forwardGrad, autodiff.IsGradEnabled())
	f.forwardTrain = append(f.forwardTrain, f.training)
	if input.AsFloat32()[0] == f.forwardErrFor {
		return nil, fmt.Errorf("forward failed")
	}
	return &model.Output{Inputs: input, Raw: input}, nil
}

func (f *fakeDetector) InferenceEnd(out *model.Output) ([][]geometry.BoundingBox3D, error) {
	id := out.Inputs.AsFloat32()[0]
	n := f.boxesPerSample[id]
	boxes := make([]geometry.BoundingBox3D, 0, n)
	for i := 0; i < n; i++ {
		boxes = append(boxes, geometry.BoundingBox3D{
			Center: r3.Vec{X: float64(id), Y: float64(i)},
			Size:   r3.Vec{X: 1, Y: 1, Z: 1},
			Label:  int(id),
		})
	}
	return [][]geometry.BoundingBox3D{boxes}, nil
}

func (f *fakeDetector) Preprocess(s dataset.Sample, attr dataset.Attributes) (dataset.Sample, error) {
	f.preprocessed = append(f.preprocessed, attr.Name)
	return s, nil
}

func (f *fakeDetector) Transform(s dataset.Sample, _ dataset.Attributes) (dataset.Sample, error) {
	return s, nil
}

func sample(id float32) dataset.Sample {
	return dataset.Sample{Point: [][]float32{{id, 0, 0, 1}, {id, 1, 0, 1}}}
}

func writeCheckpoint(t *testing.T, path string, keys ...string) {
	t.Helper()
	sd := make(map[string]*tensor.RawTensor, len(keys))
	for _, k := range keys {
		w, err := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2}, tensor.CPU)
		require.NoError(t, err)
		sd[k] = w
	}
	require.NoError(t, checkpoint.Save(path, sd, "Fake", nil))
}

var testTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newTestPipeline(t *testing.T, m model.Detector, ds dataset.Dataset, cfg Config) *ObjectDetection {
	t.Helper()
	if cfg.MainLogDir == "" {
		cfg.MainLogDir = t.TempDir()
	}
	p, err := New(m, ds, cfg, WithClock(timeutil.NewMockClock(testTime)))
	require.NoError(t, err)
	return p
}

func initLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	monitoring.Init(&buf, monitoring.LevelDebug, timeutil.NewMockClock(testTime))
	t.Cleanup(func() { monitoring.Init(os.Stderr, monitoring.LevelInfo, nil) })
	return &buf
}

func TestNewDefaultsAndLogsDir(t *testing.T) {
	logs := initLogs(t)
	root := t.TempDir()
	ds := dataset.NewMemory(dataset.Config{Name: "KITTI"})

	p, err := New(newFake("Fake"), ds, Config{MainLogDir: root})
	require.NoError(t, err)

	cfg := p.Config()
	assert.Equal(t, "ObjectDetection", cfg.Name)
	assert.Equal(t, "gpu", cfg.Device)
	assert.Equal(t, dataset.SplitTrain, cfg.Split)
	if !webgpu.IsAvailable() {
		assert.Equal(t, tensor.CPU, p.Device())
		assert.Contains(t, logs.String(), "falling back to CPU")
	}

	assert.Equal(t, filepath.Join(root, "Fake_KITTI"), p.LogsDir())
	assert.DirExists(t, p.LogsDir())
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil, nil, Config{MainLogDir: t.TempDir()})
	require.Error(t, err)

	_, err = New(newFake("Fake"), nil, Config{MainLogDir: t.TempDir(), Device: "tpu"})
	require.Error(t, err)
}

type gpuBackend struct{ *cpu.CPUBackend }

func (gpuBackend) Device() tensor.Device { return tensor.WebGPU }

func TestNewUsesRegisteredGPU(t *testing.T) {
	initLogs(t)
	reg := backend.NewRegistry()
	reg.Register(tensor.WebGPU, func() (tensor.Backend, error) { return gpuBackend{cpu.New()}, nil })

	p, err := New(newFake("Fake"), nil, Config{MainLogDir: t.TempDir()}, WithRegistry(reg))
	require.NoError(t, err)
	assert.Equal(t, tensor.WebGPU, p.Device())
}

func TestWithBackendSkipsResolution(t *testing.T) {
	initLogs(t)
	reg := backend.NewRegistry()
	reg.Register(tensor.WebGPU, func() (tensor.Backend, error) {
		t.Fatal("registry must not be consulted")
		return nil, nil
	})

	gpu := gpuBackend{cpu.New()}
	p, err := New(newFake("Fake"), nil, Config{MainLogDir: t.TempDir()}, WithRegistry(reg), WithBackend(gpu))
	require.NoError(t, err)
	assert.Equal(t, tensor.WebGPU, p.Device())
	assert.Equal(t, tensor.Backend(gpu), p.Backend())
}

func TestResolveBackend(t *testing.T) {
	initLogs(t)
	b, err := ResolveBackend("cpu", nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.CPU, b.Device())

	_, err = ResolveBackend("tpu", nil)
	assert.Error(t, err)
}

func TestRunInference(t *testing.T) {
	initLogs(t)
	m := newFake("Fake")
	m.boxesPerSample[3] = 2
	p := newTestPipeline(t, m, nil, Config{Device: "cpu"})

	boxes, err := p.RunInference(sample(3))
	require.NoError(t, err)
	assert.Len(t, boxes, 2)

	_, err = p.RunInference(sample(4))
	require.NoError(t, err)

	// device and evaluation mode are set on every call
	assert.Equal(t, 2, m.toCalls)
	assert.Equal(t, 2, m.evalCalls)
	assert.Equal(t, []bool{false, false}, m.forwardGrad)
	assert.Equal(t, []bool{false, false}, m.forwardTrain)
	assert.True(t, autodiff.IsGradEnabled())
}

func TestRunInferenceSetsEvalAfterTrain(t *testing.T) {
	initLogs(t)
	m := newFake("Fake")
	p := newTestPipeline(t, m, nil, Config{Device: "cpu"})

	m.Train()
	_, err := p.RunInference(sample(0))
	require.NoError(t, err)
	assert.False(t, m.Training())
}

func TestRunInferenceErrors(t *testing.T) {
	initLogs(t)
	m := newFake("Fake")
	m.forwardErrFor = 7
	p := newTestPipeline(t, m, nil, Config{Device: "cpu"})

	_, err := p.RunInference(sample(7))
	require.ErrorContains(t, err, "forward failed")
	assert.True(t, autodiff.IsGradEnabled())

	_, err = p.RunInference(dataset.Sample{})
	require.Error(t, err)
}

func testDataset(ids ...float32) *dataset.Memory {
	ds := dataset.NewMemory(dataset.Config{Name: "Mem"})
	for _, id := range ids {
		ds.Add(dataset.SplitTest, sample(id))
	}
	return ds
}

func TestRunTestConcatenatesInOrder(t *testing.T) {
	logs := initLogs(t)
	m := newFake("Fake")
	m.boxesPerSample = map[float32]int{0: 2, 1: 0, 2: 1}
	ckpt := filepath.Join(t.TempDir(), "model.born")
	writeCheckpoint(t, ckpt, "weight")
	m.cfg.CkptPath = ckpt

	p := newTestPipeline(t, m, testDataset(0, 1, 2), Config{Device: "cpu"})
	report, err := p.RunTest(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Boxes, 3)
	assert.Equal(t, []int{0, 0, 2}, []int{report.Boxes[0].Label, report.Boxes[1].Label, report.Boxes[2].Label})
	assert.Equal(t, 0.0, report.Boxes[0].Center.Y)
	assert.Equal(t, 1.0, report.Boxes[1].Center.Y)

	require.Len(t, report.Samples, 3)
	for i, s := range report.Samples {
		assert.Equal(t, i, s.Attr.Index)
	}
	assert.Equal(t, []int{2, 0, 1}, []int{len(report.Samples[0].Boxes), len(report.Samples[1].Boxes), len(report.Samples[2].Boxes)})
	assert.Equal(t, []string{"Mem_test_000000", "Mem_test_000001", "Mem_test_000002"}, m.preprocessed)
	assert.Equal(t, ckpt, report.Checkpoint)
	assert.NotNil(t, m.loaded)
	assert.Equal(t, []bool{false, false, false}, m.forwardGrad)

	out := logs.String()
	assert.Contains(t, out, "DEVICE : CPU")
	assert.Contains(t, out, "Started testing")
}

func TestRunTestWritesLogFile(t *testing.T) {
	initLogs(t)
	m := newFake("Fake")
	ckpt := filepath.Join(t.TempDir(), "model.born")
	writeCheckpoint(t, ckpt, "weight")
	m.cfg.CkptPath = ckpt

	p := newTestPipeline(t, m, testDataset(0), Config{Device: "cpu"})
	report, err := p.RunTest(context.Background())
	require.NoError(t, err)

	want := filepath.Join(p.LogsDir(), "log_test_2024-03-09_14:05:07.txt")
	assert.Equal(t, want, report.LogFile)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Started testing")
	assert.Contains(t, string(data), "Finished testing: 1 samples, 0 boxes")
}

func TestRunTestEmptySplit(t *testing.T) {
	initLogs(t)
	m := newFake("Fake")
	ckpt := filepath.Join(t.TempDir(), "model.born")
	writeCheckpoint(t, ckpt, "weight")
	m.cfg.CkptPath = ckpt

	ds := dataset.NewMemory(dataset.Config{Name: "Mem"}).Add(dataset.SplitTest)
	p := newTestPipeline(t, m, ds, Config{Device: "cpu"})
	report, err := p.RunTest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Boxes)
	assert.Empty(t, report.Samples)
}

func TestRunTestStripsDistributedPrefix(t *testing.T) {
	initLogs(t)
	m := newFake("Fake")
	ckpt := filepath.Join(t.TempDir(), "model.born")
	writeCheckpoint(t, ckpt, "module.weight")
	m.cfg.CkptPath = ckpt

	p := newTestPipeline(t, m, testDataset(0), Config{Device: "cpu"})
	_, err := p.RunTest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, m.loaded, "weight")
	assert.NotContains(t, m.loaded, "module.weight")
}

func TestRunTestLatestCheckpoint(t *testing.T) {
	initLogs(t)
	dir := t.TempDir()
	writeCheckpoint(t, filepath.Join(dir, checkpoint.FileName(1)), "other")
	writeCheckpoint(t, filepath.Join(dir, checkpoint.FileName(12)), "weight")

	m := newFake("Fake")
	m.cfg.CkptDir = dir
	p := newTestPipeline(t, m, testDataset(0), Config{Device: "cpu"})
	report, err := p.RunTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ckpt_00012.born"), report.Checkpoint)
}

func TestResolveCheckpoint(t *testing.T) {
	initLogs(t)
	dir := t.TempDir()
	writeCheckpoint(t, filepath.Join(dir, checkpoint.FileName(4)), "weight")

	m := newFake("Fake")
	m.cfg.CkptDir = dir
	p := newTestPipeline(t, m, nil, Config{Device: "cpu"})
	got, err := p.ResolveCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, checkpoint.FileName(4)), got)

	m.cfg.CkptPath = "explicit.born"
	got, err = p.ResolveCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, "explicit.born", got, "an explicit path wins over the directory")

	_, err = newTestPipeline(t, newFake("Bare"), nil, Config{Device: "cpu"}).ResolveCheckpoint()
	require.ErrorIs(t, err, checkpoint.ErrNoCheckpoint)
	assert.Contains(t, err.Error(), "Bare")
}

func TestRunTestErrors(t *testing.T) {
	initLogs(t)

	t.Run("no checkpoint", func(t *testing.T) {
		p := newTestPipeline(t, newFake("Fake"), testDataset(0), Config{Device: "cpu"})
		_, err := p.RunTest(context.Background())
		require.ErrorIs(t, err, checkpoint.ErrNoCheckpoint)
	})

	t.Run("missing checkpoint file", func(t *testing.T) {
		m := newFake("Fake")
		m.cfg.CkptPath = filepath.Join(t.TempDir(), "missing.born")
		p := newTestPipeline(t, m, testDataset(0), Config{Device: "cpu"})
		_, err := p.RunTest(context.Background())
		require.Error(t, err)
	})

	t.Run("no test split", func(t *testing.T) {
		m := newFake("Fake")
		ds := dataset.NewMemory(dataset.Config{Name: "Mem"}).Add(dataset.SplitTrain, sample(0))
		p := newTestPipeline(t, m, ds, Config{Device: "cpu"})
		_, err := p.RunTest(context.Background())
		require.ErrorIs(t, err, dataset.ErrUnknownSplit)
	})

	t.Run("no dataset", func(t *testing.T) {
		p := newTestPipeline(t, newFake("Fake"), nil, Config{Device: "cpu"})
		_, err := p.RunTest(context.Background())
		require.Error(t, err)
	})

	t.Run("inference failure aborts", func(t *testing.T) {
		m := newFake("Fake")
		m.forwardErrFor = 1
		ckpt := filepath.Join(t.TempDir(), "model.born")
		writeCheckpoint(t, ckpt, "weight")
		m.cfg.CkptPath = ckpt
		p := newTestPipeline(t, m, testDataset(0, 1, 2), Config{Device: "cpu"})
		_, err := p.RunTest(context.Background())
		require.ErrorContains(t, err, "forward failed")
		assert.Len(t, m.forwardGrad, 2)
	})

	t.Run("cancelled", func(t *testing.T) {
		m := newFake("Fake")
		ckpt := filepath.Join(t.TempDir(), "model.born")
		writeCheckpoint(t, ckpt, "weight")
		m.cfg.CkptPath = ckpt
		p := newTestPipeline(t, m, testDataset(0, 1), Config{Device: "cpu"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.RunTest(ctx)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, m.forwardGrad)
	})
}

func TestRunTrain(t *testing.T) {
	initLogs(t)
	p := newTestPipeline(t, newFake("Fake"), nil, Config{Device: "cpu"})
	require.ErrorIs(t, p.RunTrain(), ErrNotImplemented)
}

func TestLoadCheckpointMismatch(t *testing.T) {
	initLogs(t)
	ckpt := filepath.Join(t.TempDir(), "model.born")
	writeCheckpoint(t, ckpt, "bias")

	p := newTestPipeline(t, newFake("Fake"), nil, Config{Device: "cpu"})
	require.ErrorContains(t, p.LoadCheckpoint(ckpt), "missing key weight")
}

func TestRenderNamesStayInRenderDir(t *testing.T) {
	root := t.TempDir()
	renders := filepath.Join(root, "renders")
	require.NoError(t, os.MkdirAll(renders, 0o755))
	s := &resultSink{renderDir: renders}

	points := sample(1).Point
	require.NoError(t, s.record(0, SampleResult{Attr: dataset.Attributes{Name: "../escaped"}}, points))
	require.NoError(t, s.record(1, SampleResult{Attr: dataset.Attributes{Name: "seq/000001"}}, points))
	require.NoError(t, s.record(2, SampleResult{}, points))

	entries, err := os.ReadDir(renders)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"__escaped.png", "seq_000001.png", "000002.png"}, names)
	assert.NoFileExists(t, filepath.Join(root, "escaped.png"))
}
