package main

import (
	"github.com/CosmosHua/Open3D-ML/internal/config"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/model/pointdet"
	"github.com/CosmosHua/Open3D-ML/internal/pipeline"
)

func newDataset(cfg *config.Config) dataset.Dataset {
	d := cfg.Dataset
	return dataset.NewPointCloudDir(dataset.Config{
		Name:     d.GetName(),
		Path:     d.GetPath(),
		UseCache: d.GetUseCache(),
		CacheDir: d.GetCacheDir(),
	}, d.GetChannels())
}

// newPipeline builds the detector on the configured device and the pipeline
// driving it. ds may be nil.
func newPipeline(cfg *config.Config, ds dataset.Dataset) (*pipeline.ObjectDetection, *pointdet.Model, error) {
	pc := cfg.Pipeline
	b, err := pipeline.ResolveBackend(pc.GetDevice(), nil)
	if err != nil {
		return nil, nil, err
	}
	m, err := pointdet.New(cfg.Model.PointDet(), b)
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(m, ds, pipeline.Config{
		Name:       pc.GetName(),
		MainLogDir: pc.GetMainLogDir(),
		Device:     pc.GetDevice(),
		Split:      pc.GetSplit(),
		ResultsDB:  pc.GetResultsDB(),
		RenderDir:  pc.GetRenderDir(),
		Workers:    pc.GetWorkers(),
	}, pipeline.WithBackend(b))
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}
