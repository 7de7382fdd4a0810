// Package dataloader wraps a dataset split with a model's preprocessing and
// transform steps, an optional on-disk preprocessing cache and optional
// shuffling.
package dataloader

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/parallel"
)

// Preprocess runs once per sample; its output is what the cache stores.
type Preprocess func(s dataset.Sample, attr dataset.Attributes) (dataset.Sample, error)

// Transform runs on every Get, after Preprocess.
type Transform func(s dataset.Sample, attr dataset.Attributes) (dataset.Sample, error)

// Item is a loaded sample together with its attributes.
type Item struct {
	Data dataset.Sample
	Attr dataset.Attributes
}

// Options configure a Loader.
type Options struct {
	Preprocess Preprocess
	Transform  Transform
	UseCache   bool
	CacheDir   string // required when UseCache is set
	Shuffle    bool
	Seed       uint64
	Workers    int // cache warm-up concurrency, defaults to the CPU count
}

// Loader indexes a split. With Shuffle off, index i maps to split index i.
type Loader struct {
	split dataset.Split
	opts  Options
	order []int
}

// New builds a loader over split. When caching is enabled every sample is
// preprocessed and stored before New returns, so Get never races the cache.
func New(ctx context.Context, split dataset.Split, opts Options) (*Loader, error) {
	l := &Loader{split: split, opts: opts}

	n := split.Len()
	l.order = make([]int, n)
	for i := range l.order {
		l.order[i] = i
	}
	if opts.Shuffle {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
		rng.Shuffle(n, func(i, j int) { l.order[i], l.order[j] = l.order[j], l.order[i] })
	}

	if opts.UseCache {
		if opts.CacheDir == "" {
			return nil, fmt.Errorf("dataloader: cache enabled without a cache directory")
		}
		dir := l.cacheDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		if err := l.warm(ctx); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Len returns the number of items.
func (l *Loader) Len() int {
	return len(l.order)
}

// Get loads item idx.
func (l *Loader) Get(idx int) (Item, error) {
	if idx < 0 || idx >= len(l.order) {
		return Item{}, fmt.Errorf("dataloader: index %d out of range [0, %d)", idx, len(l.order))
	}
	src := l.order[idx]
	attr := l.split.Attr(src)

	var (
		s   dataset.Sample
		err error
	)
	if l.opts.UseCache {
		s, err = readCache(l.cachePath(attr))
	} else {
		s, err = l.preprocess(src, attr)
	}
	if err != nil {
		return Item{}, err
	}

	if l.opts.Transform != nil {
		if s, err = l.opts.Transform(s, attr); err != nil {
			return Item{}, fmt.Errorf("transform %s: %w", attr.Name, err)
		}
	}
	return Item{Data: s, Attr: attr}, nil
}

func (l *Loader) preprocess(idx int, attr dataset.Attributes) (dataset.Sample, error) {
	s, err := l.split.Get(idx)
	if err != nil {
		return dataset.Sample{}, fmt.Errorf("failed to read sample %d: %w", idx, err)
	}
	if l.opts.Preprocess == nil {
		return s, nil
	}
	out, err := l.opts.Preprocess(s, attr)
	if err != nil {
		return dataset.Sample{}, fmt.Errorf("preprocess %s: %w", attr.Name, err)
	}
	return out, nil
}

// warm fills the cache for every sample missing from it.
func (l *Loader) warm(ctx context.Context) error {
	cfg := parallel.DefaultConfig()
	cfg.MinChunkSize = 1
	if l.opts.Workers > 0 {
		cfg.NumWorkers = l.opts.Workers
		cfg.Enabled = l.opts.Workers > 1
	}

	return parallel.ForErr(ctx, l.split.Len(), func(_ context.Context, i int) error {
		attr := l.split.Attr(i)
		path := l.cachePath(attr)
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		s, err := l.preprocess(i, attr)
		if err != nil {
			return err
		}
		return writeCache(path, s)
	}, cfg)
}

func (l *Loader) cacheDir() string {
	return filepath.Join(l.opts.CacheDir, l.split.Name())
}

func (l *Loader) cachePath(attr dataset.Attributes) string {
	return filepath.Join(l.cacheDir(), attr.FileStem()+".born")
}
