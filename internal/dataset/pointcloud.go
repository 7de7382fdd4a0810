package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultChannels is the KITTI velodyne layout: x, y, z, reflectance.
const DefaultChannels = 4

// PointCloudDir reads <root>/<split>/*.bin files of little-endian float32
// points, Channels values per point. Files are ordered by name.
type PointCloudDir struct {
	cfg      Config
	Channels int
}

// NewPointCloudDir returns a dataset rooted at cfg.Path.
func NewPointCloudDir(cfg Config, channels int) *PointCloudDir {
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &PointCloudDir{cfg: cfg, Channels: channels}
}

// Config returns the dataset configuration.
func (d *PointCloudDir) Config() Config { return d.cfg }

// GetSplit lists the point files of the named split.
func (d *PointCloudDir) GetSplit(name string) (Split, error) {
	dir := filepath.Join(d.cfg.Path, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w %q", d.cfg.Name, ErrUnknownSplit, name)
		}
		return nil, fmt.Errorf("failed to list split %s: %w", name, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return &fileSplit{name: name, files: files, channels: d.Channels}, nil
}

type fileSplit struct {
	name     string
	files    []string
	channels int
}

func (s *fileSplit) Len() int     { return len(s.files) }
func (s *fileSplit) Name() string { return s.name }

func (s *fileSplit) Attr(idx int) Attributes {
	path := s.files[idx]
	return Attributes{
		Name:  strings.TrimSuffix(filepath.Base(path), ".bin"),
		Path:  path,
		Split: s.name,
		Index: idx,
	}
}

func (s *fileSplit) Get(idx int) (Sample, error) {
	if err := checkIndex(idx, len(s.files)); err != nil {
		return Sample{}, err
	}
	points, err := ReadPoints(s.files[idx], s.channels)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Point: points}, nil
}

// ReadPoints decodes a binary point file into rows of channels values.
func ReadPoints(path string, channels int) ([][]float32, error) {
	//nolint:gosec // G304: dataset paths are operator supplied
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read points: %w", err)
	}
	stride := 4 * channels
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of %d channels", path, len(data), channels)
	}

	n := len(data) / stride
	flat := make([]float32, n*channels)
	for i := range flat {
		flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = flat[i*channels : (i+1)*channels : (i+1)*channels]
	}
	return rows, nil
}

// WritePoints encodes rows as a binary point file.
func WritePoints(path string, rows [][]float32) error {
	var buf []byte
	for _, row := range rows {
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}
