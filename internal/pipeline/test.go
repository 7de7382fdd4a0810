package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/CosmosHua/Open3D-ML/internal/autodiff"
	"github.com/CosmosHua/Open3D-ML/internal/dataloader"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/monitoring"
	"github.com/CosmosHua/Open3D-ML/internal/results"
	"github.com/CosmosHua/Open3D-ML/internal/visualiser"
)

// timestampLayout formats run timestamps, e.g. 2024-03-09_14:05:07.
const timestampLayout = "2006-01-02_15:04:05"

// SampleResult holds the boxes detected in one test sample.
type SampleResult struct {
	Attr      dataset.Attributes
	NumPoints int
	Boxes     []geometry.BoundingBox3D
}

// TestReport is the outcome of RunTest.
type TestReport struct {
	// Boxes concatenates the boxes of every sample in sample order.
	Boxes      []geometry.BoundingBox3D
	Samples    []SampleResult
	LogFile    string
	Checkpoint string
	RunID      string // set when a results store is configured
}

// RunTest runs inference over every sample of the "test" split in order.
//
// A log file log_test_<timestamp>.txt is attached in the logs directory for
// the duration of the run, the checkpoint configured on the model is loaded
// and every sample's boxes are appended to the report. Any error aborts the
// run. ctx is checked between samples.
func (p *ObjectDetection) RunTest(ctx context.Context) (_ *TestReport, err error) {
	if p.dataset == nil {
		return nil, fmt.Errorf("pipeline: RunTest requires a dataset")
	}
	m := p.model
	m.To(p.device)

	timestamp := p.clock.Now().Format(timestampLayout)
	p.log.Infof("DEVICE : %s", p.device)
	logFile := filepath.Join(p.logsDir, "log_test_"+timestamp+".txt")
	p.log.Infof("Logging in file : %s", logFile)
	detach, err := monitoring.AttachFile(logFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = detach() }()

	split, err := p.dataset.GetSplit(dataset.SplitTest)
	if err != nil {
		return nil, err
	}
	dsCfg := p.dataset.Config()
	cacheDir := dsCfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(p.logsDir, "cache")
	}
	loader, err := dataloader.New(ctx, split, dataloader.Options{
		Preprocess: m.Preprocess,
		Transform:  m.Transform,
		UseCache:   dsCfg.UseCache,
		CacheDir:   cacheDir,
		Shuffle:    false,
		Workers:    p.cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	ckptPath, err := p.ResolveCheckpoint()
	if err != nil {
		return nil, err
	}
	if err := p.LoadCheckpoint(ckptPath); err != nil {
		return nil, err
	}

	report := &TestReport{LogFile: logFile, Checkpoint: ckptPath}

	sink, err := p.openSink(report)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		defer func() {
			if ferr := sink.finish(err); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}

	p.log.Infof("Started testing")

	restore := autodiff.NoGrad()
	defer restore()

	n := loader.Len()
	for idx := 0; idx < n; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := loader.Get(idx)
		if err != nil {
			return nil, err
		}
		boxes, err := p.RunInference(item.Data)
		if err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", idx, item.Attr.Name, err)
		}
		p.log.Debugf("test %d/%d %s: %d boxes", idx+1, n, item.Attr.Name, len(boxes))

		report.Boxes = append(report.Boxes, boxes...)
		sr := SampleResult{Attr: item.Attr, NumPoints: len(item.Data.Point), Boxes: boxes}
		report.Samples = append(report.Samples, sr)

		if sink != nil {
			if err := sink.record(idx, sr, item.Data.Point); err != nil {
				return nil, err
			}
		}
	}

	p.log.Infof("Finished testing: %d samples, %d boxes", len(report.Samples), len(report.Boxes))
	return report, nil
}

// resultSink fans samples out to the optional results store and renderer.
type resultSink struct {
	store     *results.Store
	runID     string
	renderDir string
}

func (p *ObjectDetection) openSink(report *TestReport) (*resultSink, error) {
	if p.cfg.ResultsDB == "" && p.cfg.RenderDir == "" {
		return nil, nil
	}
	s := &resultSink{renderDir: p.cfg.RenderDir}

	if p.cfg.RenderDir != "" {
		if err := mkdirAll(p.cfg.RenderDir); err != nil {
			return nil, err
		}
	}
	if p.cfg.ResultsDB != "" {
		store, err := results.Open(p.cfg.ResultsDB)
		if err != nil {
			return nil, err
		}
		run, err := store.BeginRun(results.Run{
			Pipeline:   p.cfg.Name,
			Model:      p.model.Config().Name,
			Dataset:    p.dataset.Config().Name,
			Split:      dataset.SplitTest,
			Device:     p.device.String(),
			Checkpoint: report.Checkpoint,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		s.store, s.runID = store, run.ID
		report.RunID = run.ID
		p.log.Infof("Recording results as run %s in %s", run.ID, p.cfg.ResultsDB)
	}
	return s, nil
}

func (s *resultSink) record(idx int, sr SampleResult, points [][]float32) error {
	if s.store != nil {
		if err := s.store.InsertSample(s.runID, idx, sr.Attr.Name, sr.NumPoints, sr.Boxes); err != nil {
			return err
		}
	}
	if s.renderDir != "" {
		attr := sr.Attr
		if attr.Name == "" {
			attr.Index = idx
		}
		stem := attr.FileStem()
		path := filepath.Join(s.renderDir, stem+".png")
		if err := visualiser.RenderBEV(path, points, sr.Boxes, visualiser.BEVOptions{Title: stem}); err != nil {
			return err
		}
	}
	return nil
}

func (s *resultSink) finish(runErr error) error {
	if s.store == nil {
		return nil
	}
	err := s.store.FinishRun(s.runID, runErr)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}
