// Package config loads the JSON run configuration. Every field is optional:
// omitted values fall back to the defaults returned by the Get* methods.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root run configuration.
type Config struct {
	Pipeline PipelineConfig `json:"pipeline"`
	Model    ModelConfig    `json:"model"`
	Dataset  DatasetConfig  `json:"dataset"`
}

// PipelineConfig configures the object-detection pipeline.
type PipelineConfig struct {
	Name       *string `json:"name,omitempty"`
	MainLogDir *string `json:"main_log_dir,omitempty"`
	Device     *string `json:"device,omitempty"` // "gpu", "cuda" or "cpu"
	Split      *string `json:"split,omitempty"`
	LogLevel   *string `json:"log_level,omitempty"`

	// Optional sinks; empty disables them.
	ResultsDB *string `json:"results_db,omitempty"`
	RenderDir *string `json:"render_dir,omitempty"`

	// Cache warm-up concurrency.
	Workers *int `json:"workers,omitempty"`
}

// ModelConfig configures the detector.
type ModelConfig struct {
	Name           *string   `json:"name,omitempty"`
	CkptPath       *string   `json:"ckpt_path,omitempty"`
	CkptDir        *string   `json:"ckpt_dir,omitempty"`
	InChannels     *int      `json:"in_channels,omitempty"`
	Hidden         []int     `json:"hidden,omitempty"`
	Classes        []string  `json:"classes,omitempty"`
	PointRange     []float64 `json:"point_range,omitempty"`
	VoxelSize      *float64  `json:"voxel_size,omitempty"`
	MaxPoints      *int      `json:"max_points,omitempty"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	NMSThreshold   *float64  `json:"nms_threshold,omitempty"`
	TopK           *int      `json:"top_k,omitempty"`
}

// DatasetConfig configures the dataset.
type DatasetConfig struct {
	Name     *string `json:"name,omitempty"`
	Path     *string `json:"dataset_path,omitempty"`
	UseCache *bool   `json:"use_cache,omitempty"`
	CacheDir *string `json:"cache_dir,omitempty"`
	Channels *int    `json:"channels,omitempty"`
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Pipeline.Device != nil {
		switch *c.Pipeline.Device {
		case "gpu", "cuda", "cpu", "":
		default:
			return fmt.Errorf("device must be gpu, cuda or cpu, got %q", *c.Pipeline.Device)
		}
	}
	if c.Pipeline.Workers != nil && *c.Pipeline.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Pipeline.Workers)
	}

	m := c.Model
	if m.InChannels != nil && *m.InChannels < 3 {
		return fmt.Errorf("in_channels must be >= 3, got %d", *m.InChannels)
	}
	if m.PointRange != nil && len(m.PointRange) != 6 {
		return fmt.Errorf("point_range must have 6 values, got %d", len(m.PointRange))
	}
	if m.VoxelSize != nil && *m.VoxelSize < 0 {
		return fmt.Errorf("voxel_size must be non-negative, got %f", *m.VoxelSize)
	}
	if m.MaxPoints != nil && *m.MaxPoints < 0 {
		return fmt.Errorf("max_points must be non-negative, got %d", *m.MaxPoints)
	}
	if m.ScoreThreshold != nil && (*m.ScoreThreshold < 0 || *m.ScoreThreshold > 1) {
		return fmt.Errorf("score_threshold must be between 0 and 1, got %f", *m.ScoreThreshold)
	}
	if m.NMSThreshold != nil && (*m.NMSThreshold < 0 || *m.NMSThreshold > 1) {
		return fmt.Errorf("nms_threshold must be between 0 and 1, got %f", *m.NMSThreshold)
	}
	if m.TopK != nil && *m.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", *m.TopK)
	}

	if c.Dataset.Channels != nil && *c.Dataset.Channels < 3 {
		return fmt.Errorf("channels must be >= 3, got %d", *c.Dataset.Channels)
	}
	return nil
}

func getString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// GetName returns the pipeline name or the default.
func (c *PipelineConfig) GetName() string { return getString(c.Name, "ObjectDetection") }

// GetMainLogDir returns the main log directory or the default.
func (c *PipelineConfig) GetMainLogDir() string { return getString(c.MainLogDir, "./logs/") }

// GetDevice returns the device selector or the default.
func (c *PipelineConfig) GetDevice() string { return getString(c.Device, "gpu") }

// GetSplit returns the split or the default.
func (c *PipelineConfig) GetSplit() string { return getString(c.Split, "train") }

// GetLogLevel returns the log level or the default.
func (c *PipelineConfig) GetLogLevel() string { return getString(c.LogLevel, "info") }

// GetResultsDB returns the results database path; empty disables the store.
func (c *PipelineConfig) GetResultsDB() string { return getString(c.ResultsDB, "") }

// GetRenderDir returns the render directory; empty disables rendering.
func (c *PipelineConfig) GetRenderDir() string { return getString(c.RenderDir, "") }

// GetWorkers returns the warm-up concurrency; 0 means one per CPU.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetName returns the dataset name or the default.
func (c *DatasetConfig) GetName() string { return getString(c.Name, "KITTI") }

// GetPath returns the dataset root or the default.
func (c *DatasetConfig) GetPath() string { return getString(c.Path, "./data/kitti") }

// GetUseCache returns the use_cache value or the default.
func (c *DatasetConfig) GetUseCache() bool {
	if c.UseCache == nil {
		return false
	}
	return *c.UseCache
}

// GetCacheDir returns the cache directory or the default.
func (c *DatasetConfig) GetCacheDir() string { return getString(c.CacheDir, "./logs/cache") }

// GetChannels returns the per-point channel count or the default.
func (c *DatasetConfig) GetChannels() int {
	if c.Channels == nil {
		return 4
	}
	return *c.Channels
}
