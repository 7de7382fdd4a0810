package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"pipeline": {"device": "cpu", "main_log_dir": "/tmp/logs"},
		"model": {"name": "PointDet", "ckpt_path": "ckpt_00010.born", "classes": ["Car", "Van"], "top_k": 5},
		"dataset": {"name": "KITTI", "use_cache": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cpu", cfg.Pipeline.GetDevice())
	assert.Equal(t, "/tmp/logs", cfg.Pipeline.GetMainLogDir())
	assert.Equal(t, "ObjectDetection", cfg.Pipeline.GetName())
	assert.Equal(t, "train", cfg.Pipeline.GetSplit())
	assert.True(t, cfg.Dataset.GetUseCache())
	assert.Equal(t, 4, cfg.Dataset.GetChannels())

	pd := cfg.Model.PointDet()
	assert.Equal(t, "ckpt_00010.born", pd.CkptPath)
	assert.Equal(t, 5, pd.TopK)
	require.Len(t, pd.Classes, 2)
	assert.Equal(t, [3]float64{3.9, 1.6, 1.56}, pd.Classes[0].Anchor)
	assert.Equal(t, [3]float64{1, 1, 1}, pd.Classes[1].Anchor)
	assert.NoError(t, pd.Validate())
}

func TestDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, "gpu", cfg.Pipeline.GetDevice())
	assert.Equal(t, "./logs/", cfg.Pipeline.GetMainLogDir())
	assert.Equal(t, "", cfg.Pipeline.GetResultsDB())
	assert.Equal(t, 0, cfg.Pipeline.GetWorkers())
	assert.False(t, cfg.Dataset.GetUseCache())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"device", Config{Pipeline: PipelineConfig{Device: ptrString("tpu")}}},
		{"workers", Config{Pipeline: PipelineConfig{Workers: ptrInt(-1)}}},
		{"in_channels", Config{Model: ModelConfig{InChannels: ptrInt(2)}}},
		{"point_range", Config{Model: ModelConfig{PointRange: []float64{1, 2}}}},
		{"channels", Config{Dataset: DatasetConfig{Channels: ptrInt(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name)
		})
	}
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeConfig(t, "run.yaml", "{}"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "bad.json", "{"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "invalid.json", `{"model": {"top_k": -1}}`))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
