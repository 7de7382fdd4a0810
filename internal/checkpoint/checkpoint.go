// Package checkpoint restores model parameters from weight archives.
//
// A checkpoint either holds the parameter mapping directly or wraps it in a
// "state_dict" group next to other training state. Parameters saved from a
// data-parallel wrapper carry a "module." prefix which is removed before the
// mapping is applied.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/CosmosHua/Open3D-ML/internal/loader"
	"github.com/CosmosHua/Open3D-ML/internal/serialization"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

const (
	// StateDictKey names the nested mapping that wraps model parameters.
	StateDictKey = "state_dict"
	// DistributedPrefix is prepended to parameter names by data-parallel wrappers.
	DistributedPrefix = "module."
)

var (
	// ErrEmptyStateDict is returned when a checkpoint resolves to no parameters.
	ErrEmptyStateDict = errors.New("checkpoint contains no parameters")
	// ErrNoCheckpoint is returned by Latest when a directory holds no checkpoints.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Target receives a resolved parameter mapping.
type Target interface {
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Read deserializes the checkpoint at path onto device and returns the
// resolved parameter mapping.
func Read(path string, device tensor.Device) (map[string]*tensor.RawTensor, error) {
	weights, err := loader.Open(path, device)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	sd, err := Resolve(weights)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sd, nil
}

// Apply reads the checkpoint at path and loads it into target.
// target is mutated in place; on error its state is unspecified.
func Apply(path string, device tensor.Device, target Target) error {
	sd, err := Read(path, device)
	if err != nil {
		return err
	}
	if err := target.LoadStateDict(sd); err != nil {
		return fmt.Errorf("failed to apply checkpoint %s: %w", path, err)
	}
	return nil
}

// Resolve picks the parameter mapping out of a deserialized archive: the
// "state_dict" group when present, the top-level mapping otherwise.
func Resolve(w *loader.Weights) (map[string]*tensor.RawTensor, error) {
	sd := w.Tensors
	if nested, ok := w.Groups[StateDictKey]; ok {
		sd = nested
	}
	if len(sd) == 0 {
		return nil, ErrEmptyStateDict
	}
	return StripPrefix(sd), nil
}

// StripPrefix removes DistributedPrefix from every key when all keys carry it.
// A mapping with any unprefixed key is returned unchanged.
func StripPrefix(sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	if len(sd) == 0 {
		return sd
	}
	for name := range sd {
		if !strings.HasPrefix(name, DistributedPrefix) {
			return sd
		}
	}
	out := make(map[string]*tensor.RawTensor, len(sd))
	for name, t := range sd {
		out[name[len(DistributedPrefix):]] = t
	}
	return out
}

// Save writes sd wrapped in a "state_dict" group, with optional training
// state, to path.
func Save(path string, sd map[string]*tensor.RawTensor, modelType string, meta *serialization.CheckpointMeta) error {
	archive := serialization.NewArchive()
	archive.Header.ModelType = modelType
	archive.Header.CheckpointMeta = meta
	archive.PutAll(StateDictKey, sd)
	if err := serialization.WriteFile(path, archive); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

var ckptName = regexp.MustCompile(`^ckpt_(\d+)\.born$`)

// FileName returns the checkpoint file name for epoch.
func FileName(epoch int) string {
	return fmt.Sprintf("ckpt_%05d.born", epoch)
}

// Latest returns the path of the highest-numbered ckpt_NNNNN.born file in dir.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list checkpoints: %w", err)
	}

	best, bestEpoch := "", -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := ckptName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		epoch, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if epoch > bestEpoch {
			best, bestEpoch = e.Name(), epoch
		}
	}

	if best == "" {
		return "", fmt.Errorf("%s: %w", dir, ErrNoCheckpoint)
	}
	return filepath.Join(dir, best), nil
}
