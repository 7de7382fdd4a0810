// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader opens weight archives in the .born and SafeTensors formats.
//
// Example usage:
//
//	w, err := loader.Open("ckpt_00080.born", tensor.CPU)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(w.Format, len(w.Tensors))
package loader

import (
	"github.com/CosmosHua/Open3D-ML/internal/loader"
	"github.com/CosmosHua/Open3D-ML/tensor"
)

// Format is a weight file format.
type Format = loader.Format

// Supported formats.
const (
	FormatBorn        = loader.FormatBorn
	FormatSafeTensors = loader.FormatSafeTensors
)

// ErrUnknownFormat is returned for files of neither supported format.
var ErrUnknownFormat = loader.ErrUnknownFormat

// Weights is the content of a weight archive.
type Weights = loader.Weights

// Open reads the archive at path and places every tensor on device.
func Open(path string, device tensor.Device) (*Weights, error) {
	return loader.Open(path, device)
}

// DetectFormat reports the format of the file at path from its leading bytes.
func DetectFormat(path string) (Format, error) {
	return loader.DetectFormat(path)
}
