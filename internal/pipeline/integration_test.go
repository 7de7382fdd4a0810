package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmosHua/Open3D-ML/internal/backend/cpu"
	"github.com/CosmosHua/Open3D-ML/internal/checkpoint"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/model/pointdet"
	"github.com/CosmosHua/Open3D-ML/internal/results"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// trainedCheckpoint saves linear head weights whose objectness is
// 20*intensity - 10 and whose class logits favour Car.
func trainedCheckpoint(t *testing.T, cfg pointdet.Config, path string) {
	t.Helper()
	width := cfg.OutputWidth()
	weight := make([]float32, width*cfg.InChannels)
	weight[3] = 20
	bias := make([]float32, width)
	bias[0] = -10
	bias[1] = 5

	w, err := tensor.FromFloat32(weight, tensor.Shape{width, cfg.InChannels}, tensor.CPU)
	require.NoError(t, err)
	b, err := tensor.FromFloat32(bias, tensor.Shape{width}, tensor.CPU)
	require.NoError(t, err)
	sd := map[string]*tensor.RawTensor{"module.0.weight": w, "module.0.bias": b}
	require.NoError(t, checkpoint.Save(path, sd, cfg.Name, nil))
}

func TestRunTestPointDetEndToEnd(t *testing.T) {
	initLogs(t)
	root := t.TempDir()

	cfg := pointdet.DefaultConfig()
	cfg.Hidden = nil
	cfg.VoxelSize = 0
	cfg.CkptPath = filepath.Join(root, "pointdet.born")
	trainedCheckpoint(t, cfg, cfg.CkptPath)

	m, err := pointdet.New(cfg, cpu.New())
	require.NoError(t, err)

	ds := dataset.NewMemory(dataset.Config{
		Name:     "Mem",
		UseCache: true,
		CacheDir: filepath.Join(root, "cache"),
	}).Add(dataset.SplitTest,
		dataset.Sample{Point: [][]float32{{1, 2, -1, 1}, {40, 5, -1, 1}}},
		dataset.Sample{Point: [][]float32{{10, 0, -1, 0}}},
		// the second point lies outside the range and is cropped
		dataset.Sample{Point: [][]float32{{20, -3, -1, 1}, {-5, 0, 0, 1}}},
	)

	p := newTestPipeline(t, m, ds, Config{
		Device:    "cpu",
		ResultsDB: filepath.Join(root, "results.db"),
		RenderDir: filepath.Join(root, "renders"),
	})

	report, err := p.RunTest(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Samples, 3)
	assert.Equal(t, []int{2, 0, 1}, []int{
		len(report.Samples[0].Boxes), len(report.Samples[1].Boxes), len(report.Samples[2].Boxes),
	})
	require.Len(t, report.Boxes, 3)
	for _, b := range report.Boxes {
		assert.Equal(t, "Car", b.LabelClass)
	}
	assert.Equal(t, 1, report.Samples[2].NumPoints)

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("Mem_test_%06d", i)
		assert.FileExists(t, filepath.Join(root, "cache", dataset.SplitTest, name+".born"))
		assert.FileExists(t, filepath.Join(root, "renders", name+".png"))
	}

	store, err := results.Open(filepath.Join(root, "results.db"))
	require.NoError(t, err)
	defer store.Close()

	run, err := store.Run(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, results.StatusComplete, run.Status)
	assert.Equal(t, 3, run.NumSamples)
	assert.Equal(t, 3, run.NumBoxes)
	assert.Equal(t, "PointDet", run.Model)
	assert.Equal(t, cfg.CkptPath, run.Checkpoint)

	dets, err := store.Detections(report.RunID)
	require.NoError(t, err)
	require.Len(t, dets, 3)
	assert.Equal(t, []int{0, 0, 2}, []int{dets[0].SampleIndex, dets[1].SampleIndex, dets[2].SampleIndex})
}

func TestRunTestRecordsFailedRun(t *testing.T) {
	initLogs(t)
	root := t.TempDir()
	m := newFake("Fake")
	m.forwardErrFor = 1
	m.cfg.CkptPath = filepath.Join(root, "model.born")
	writeCheckpoint(t, m.cfg.CkptPath, "weight")

	db := filepath.Join(root, "results.db")
	p := newTestPipeline(t, m, testDataset(0, 1), Config{Device: "cpu", ResultsDB: db})
	_, err := p.RunTest(context.Background())
	require.Error(t, err)

	store, err := results.Open(db)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, results.StatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].NumSamples)
}
