// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline runs 3D object detectors over point-cloud datasets.
//
// Example:
//
//	m, _ := pointdet.New(pointdet.DefaultConfig(), cpu.New())
//	p, err := pipeline.New(m, ds, pipeline.Config{Device: "cpu"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := p.RunTest(ctx)
package pipeline

import (
	"github.com/CosmosHua/Open3D-ML/internal/dataset"
	"github.com/CosmosHua/Open3D-ML/internal/model"
	"github.com/CosmosHua/Open3D-ML/internal/pipeline"
)

// ObjectDetection drives a detector over a dataset.
type ObjectDetection = pipeline.ObjectDetection

// Config configures an ObjectDetection pipeline.
type Config = pipeline.Config

// Option customizes a pipeline.
type Option = pipeline.Option

// TestReport is the outcome of a test run.
type TestReport = pipeline.TestReport

// SampleResult holds the detections of one test sample.
type SampleResult = pipeline.SampleResult

// Detector is a 3D object detector.
type Detector = model.Detector

// ErrNotImplemented is returned by RunTrain.
var ErrNotImplemented = pipeline.ErrNotImplemented

// Option constructors.
var (
	WithClock    = pipeline.WithClock
	WithRegistry = pipeline.WithRegistry
	WithBackend  = pipeline.WithBackend
)

// ResolveBackend maps a device selector ("gpu", "cuda" or "cpu") onto a
// compute backend, falling back to the CPU when no GPU is usable.
var ResolveBackend = pipeline.ResolveBackend

// New builds a pipeline. ds may be nil for inference-only use.
func New(m Detector, ds dataset.Dataset, cfg Config, opts ...Option) (*ObjectDetection, error) {
	return pipeline.New(m, ds, cfg, opts...)
}
