package dataset

import "fmt"

// Memory is a dataset whose splits are held in memory.
type Memory struct {
	cfg    Config
	splits map[string][]Sample
}

// NewMemory returns an empty in-memory dataset.
func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg, splits: make(map[string][]Sample)}
}

// Add appends samples to the named split.
func (m *Memory) Add(split string, samples ...Sample) *Memory {
	m.splits[split] = append(m.splits[split], samples...)
	return m
}

// Config returns the dataset configuration.
func (m *Memory) Config() Config { return m.cfg }

// GetSplit returns the named split.
func (m *Memory) GetSplit(name string) (Split, error) {
	samples, ok := m.splits[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w %q", m.cfg.Name, ErrUnknownSplit, name)
	}
	return &memorySplit{dataset: m.cfg.Name, name: name, samples: samples}, nil
}

type memorySplit struct {
	dataset string
	name    string
	samples []Sample
}

func (s *memorySplit) Len() int     { return len(s.samples) }
func (s *memorySplit) Name() string { return s.name }

func (s *memorySplit) Get(idx int) (Sample, error) {
	if err := checkIndex(idx, len(s.samples)); err != nil {
		return Sample{}, err
	}
	return s.samples[idx], nil
}

func (s *memorySplit) Attr(idx int) Attributes {
	return Attributes{
		Name:  fmt.Sprintf("%s_%s_%06d", s.dataset, s.name, idx),
		Split: s.name,
		Index: idx,
	}
}
