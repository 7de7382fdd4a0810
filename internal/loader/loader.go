package loader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/CosmosHua/Open3D-ML/internal/serialization"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Format identifies the on-disk layout of a weight archive.
type Format string

// Known archive formats.
const (
	FormatBorn        Format = "born"
	FormatSafeTensors Format = "safetensors"
)

// ErrUnknownFormat is returned when a file matches no supported format.
var ErrUnknownFormat = errors.New("unknown weight file format")

// Weights is a deserialized weight archive.
type Weights struct {
	Format   Format
	Tensors  map[string]*tensor.RawTensor            // top-level mapping
	Groups   map[string]map[string]*tensor.RawTensor // nested mappings, .born only
	Metadata map[string]string
	Header   *serialization.Header // nil for SafeTensors
}

// Open reads every tensor of the archive at path and places it on device.
func Open(path string, device tensor.Device) (*Weights, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatBorn:
		archive, err := serialization.ReadFile(path, device, serialization.ReaderOptions{})
		if err != nil {
			return nil, err
		}
		return &Weights{
			Format:   FormatBorn,
			Tensors:  archive.Tensors,
			Groups:   archive.Groups,
			Metadata: archive.Header.Metadata,
			Header:   &archive.Header,
		}, nil
	default:
		return openSafeTensors(path, device)
	}
}

// DetectFormat inspects the first bytes of path.
func DetectFormat(path string) (Format, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 9)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%s: failed to read file header: %w", path, err)
	}
	head = head[:n]

	if serialization.IsBorn(head) {
		return FormatBorn, nil
	}
	// SafeTensors: uint64 header size followed by a JSON object.
	if n == 9 && head[8] == '{' {
		return FormatSafeTensors, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

func openSafeTensors(path string, device tensor.Device) (*Weights, error) {
	//nolint:gosec // G304: weight paths come from the run configuration
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	f, err := parseSafeTensors(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	tensors := make(map[string]*tensor.RawTensor, len(f.entries))
	for _, name := range f.names() {
		t, err := f.load(name, device)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tensors[name] = t
	}
	return &Weights{
		Format:   FormatSafeTensors,
		Tensors:  tensors,
		Groups:   make(map[string]map[string]*tensor.RawTensor),
		Metadata: f.metadata,
	}, nil
}
