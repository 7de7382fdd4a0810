package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmosHua/Open3D-ML/internal/backend/cpu"
	"github.com/CosmosHua/Open3D-ML/internal/checkpoint"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/model/pointdet"
	"github.com/CosmosHua/Open3D-ML/internal/pipeline"
)

func TestRunVersionAndHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.Equal(t, "ml3d "+version+"\n", out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "Usage: ml3d <command>")
}

func TestRunUsageErrors(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"serve"}, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"infer"}, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"runs"}, &out), errUsage)
}

// fixture lays out a one-sample test split, a checkpoint and a config file.
func fixture(t *testing.T) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()

	split := filepath.Join(root, "data", dataset.SplitTest)
	require.NoError(t, os.MkdirAll(split, 0o755))
	require.NoError(t, dataset.WritePoints(filepath.Join(split, "000000.bin"), [][]float32{
		{5, 1, -1, 0.5},
		{12, -2, -1, 0.9},
		{30, 4, -0.5, 0.1},
	}))

	m, err := pointdet.New(pointdet.DefaultConfig(), cpu.New())
	require.NoError(t, err)
	ckpt := filepath.Join(root, "ckpt")
	require.NoError(t, os.MkdirAll(ckpt, 0o755))
	require.NoError(t, checkpoint.Save(filepath.Join(ckpt, checkpoint.FileName(3)), m.StateDict(), "PointDet", nil))

	cfgPath = filepath.Join(root, "run.json")
	cfg := fmt.Sprintf(`{
  "pipeline": {"main_log_dir": %q, "device": "gpu", "log_level": "warning"},
  "model": {"ckpt_dir": %q},
  "dataset": {"name": "KITTI", "dataset_path": %q, "use_cache": false}
}`, filepath.Join(root, "logs"), ckpt, filepath.Join(root, "data"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return root, cfgPath
}

func TestRunTestAndRuns(t *testing.T) {
	root, cfgPath := fixture(t)
	db := filepath.Join(root, "results.db")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"test", "--config", cfgPath, "--device", "cpu", "--results", db}, &out))
	assert.Contains(t, out.String(), "1 samples")
	assert.Contains(t, out.String(), "run ")
	assert.DirExists(t, filepath.Join(root, "logs", "PointDet_KITTI"))

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"runs", "--results", db}, &out))
	assert.Contains(t, out.String(), "PointDet")
	assert.Contains(t, out.String(), "complete")
}

func TestRunInfer(t *testing.T) {
	root, cfgPath := fixture(t)
	ckpt := filepath.Join(root, "ckpt", checkpoint.FileName(3))
	points := filepath.Join(root, "data", dataset.SplitTest, "000000.bin")

	t.Run("explicit checkpoint", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run(context.Background(), []string{"infer", "--config", cfgPath, "--ckpt", ckpt, "--points", points}, &out))
		assert.Contains(t, out.String(), "checkpoint "+ckpt+"\n")
		assert.Regexp(t, `(?m)^\d+ boxes$`, out.String())
	})

	t.Run("latest of ckpt_dir", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run(context.Background(), []string{"infer", "--config", cfgPath, "--device", "cpu", "--points", points}, &out))
		assert.Contains(t, out.String(), "checkpoint "+ckpt+"\n")
	})

	t.Run("no checkpoint configured", func(t *testing.T) {
		bare := filepath.Join(root, "bare.json")
		require.NoError(t, os.WriteFile(bare, []byte(fmt.Sprintf(
			`{"pipeline": {"main_log_dir": %q, "log_level": "warning"}}`, filepath.Join(root, "logs"))), 0o644))

		var out bytes.Buffer
		err := run(context.Background(), []string{"infer", "--config", bare, "--points", points}, &out)
		require.ErrorIs(t, err, checkpoint.ErrNoCheckpoint)
		assert.Empty(t, out.String())
	})
}

func TestRunTrainNotImplemented(t *testing.T) {
	_, cfgPath := fixture(t)
	var out bytes.Buffer
	err := run(context.Background(), []string{"train", "--config", cfgPath}, &out)
	require.ErrorIs(t, err, pipeline.ErrNotImplemented)
}

func TestRunBadConfig(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"test", "--config", filepath.Join(t.TempDir(), "missing.json")}, &out)
	require.Error(t, err)

	err = run(context.Background(), []string{"test", "--device", "tpu"}, &out)
	require.Error(t, err)
}
