package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/CosmosHua/Open3D-ML/internal/config"
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/monitoring"
	"github.com/CosmosHua/Open3D-ML/internal/results"
	"github.com/CosmosHua/Open3D-ML/internal/timeutil"
)

// commonFlags are shared by the commands that build a pipeline.
type commonFlags struct {
	config   string
	device   string
	ckpt     string
	logLevel string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "JSON run configuration")
	fs.StringVar(&c.device, "device", "", "Device: gpu, cuda or cpu")
	fs.StringVar(&c.ckpt, "ckpt", "", "Checkpoint file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warning or error")
}

// load reads the configuration file, if any, and applies flag overrides.
func (c *commonFlags) load() (*config.Config, error) {
	cfg := &config.Config{}
	if c.config != "" {
		var err error
		if cfg, err = config.Load(c.config); err != nil {
			return nil, err
		}
	}
	if c.device != "" {
		cfg.Pipeline.Device = &c.device
	}
	if c.ckpt != "" {
		cfg.Model.CkptPath = &c.ckpt
	}
	if c.logLevel != "" {
		cfg.Pipeline.LogLevel = &c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := monitoring.ParseLevel(cfg.Pipeline.GetLogLevel())
	if err != nil {
		return nil, err
	}
	monitoring.Init(os.Stderr, level, timeutil.RealClock{})
	return cfg, nil
}

func handleTest(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	resultsDB := fs.String("results", "", "SQLite results database, overrides the configuration")
	renderDir := fs.String("render", "", "Directory for bird's-eye renders, overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *resultsDB != "" {
		cfg.Pipeline.ResultsDB = resultsDB
	}
	if *renderDir != "" {
		cfg.Pipeline.RenderDir = renderDir
	}

	p, _, err := newPipeline(cfg, newDataset(cfg))
	if err != nil {
		return err
	}
	report, err := p.RunTest(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%d samples, %d boxes\n", len(report.Samples), len(report.Boxes))
	if report.RunID != "" {
		fmt.Fprintf(stdout, "run %s\n", report.RunID)
	}
	fmt.Fprintf(stdout, "log %s\n", report.LogFile)
	return nil
}

func handleTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	p, _, err := newPipeline(cfg, newDataset(cfg))
	if err != nil {
		return err
	}
	return p.RunTrain()
}

func handleInfer(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	points := fs.String("points", "", "Point cloud .bin file (required)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *points == "" {
		return fmt.Errorf("%w: --points is required", errUsage)
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	p, m, err := newPipeline(cfg, nil)
	if err != nil {
		return err
	}
	ckpt, err := p.ResolveCheckpoint()
	if err != nil {
		return err
	}
	if err := p.LoadCheckpoint(ckpt); err != nil {
		return err
	}

	rows, err := dataset.ReadPoints(*points, cfg.Dataset.GetChannels())
	if err != nil {
		return err
	}
	sample := dataset.Sample{Point: rows}
	attr := dataset.Attributes{Name: *points, Path: *points}
	if sample, err = m.Preprocess(sample, attr); err != nil {
		return err
	}
	if sample, err = m.Transform(sample, attr); err != nil {
		return err
	}

	boxes, err := p.RunInference(sample)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "checkpoint %s\n", ckpt)
	fmt.Fprintf(stdout, "%d boxes\n", len(boxes))
	for _, b := range boxes {
		fmt.Fprintln(stdout, b.String())
	}
	return nil
}

func handleRuns(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	db := fs.String("results", "", "SQLite results database (required)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *db == "" {
		return fmt.Errorf("%w: --results is required", errUsage)
	}

	store, err := results.Open(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODEL\tDATASET\tSAMPLES\tBOXES\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Model, r.Dataset, r.NumSamples, r.NumBoxes, r.Status)
	}
	return tw.Flush()
}
