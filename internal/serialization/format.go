package serialization

import (
	"sort"
	"time"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// Format constants.
const (
	MagicBytes        = "BORN"
	FormatVersion     = 1    // v1: Basic format without checksum
	FormatVersionV2   = 2    // v2: With SHA-256 checksum
	HeaderAlignment   = 64   // Align tensor data to 64 bytes
	FixedHeaderSizeV1 = 20   // magic + version + flags + header size
	FixedHeaderSizeV2 = 64   // v2 fixed header size (0x40 bytes)
	ChecksumSize      = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffsetV2  = 0x20 // Checksum offset in v2 fixed header
)

// Flags for the .born format.
const (
	FlagHasCheckpoint uint32 = 1 << 1 // bit 1: training checkpoint metadata included
	FlagHasMetadata   uint32 = 1 << 2 // bit 2: custom metadata included
	FlagHasGroups     uint32 = 1 << 3 // bit 3: nested tensor groups present
)

// Producer identifies this package in written headers.
const Producer = "ml3d"

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	Producer       string            `json:"producer"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	IsCheckpoint bool           `json:"is_checkpoint"`
	Epoch        int            `json:"epoch"`
	Step         int64          `json:"step"`
	Loss         float64        `json:"loss"`
	TrainingMeta map[string]any `json:"training_meta,omitempty"`
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`            // Tensor name (e.g., "module.backbone.0.weight")
	Group  string `json:"group,omitempty"` // Nested mapping the tensor belongs to, "" for top level
	DType  string `json:"dtype"`           // Data type (e.g., "float32")
	Shape  []int  `json:"shape"`           // Tensor shape
	Offset int64  `json:"offset"`          // Offset in the data section
	Size   int64  `json:"size"`            // Size in bytes
}

// Archive is the in-memory form of a .born file.
type Archive struct {
	Header  Header
	Tensors map[string]*tensor.RawTensor            // top-level mapping
	Groups  map[string]map[string]*tensor.RawTensor // named nested mappings
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{
		Header: Header{
			Metadata: make(map[string]string),
		},
		Tensors: make(map[string]*tensor.RawTensor),
		Groups:  make(map[string]map[string]*tensor.RawTensor),
	}
}

// Put stores t under name in group. An empty group stores at the top level.
func (a *Archive) Put(group, name string, t *tensor.RawTensor) {
	if group == "" {
		a.Tensors[name] = t
		return
	}
	g, ok := a.Groups[group]
	if !ok {
		g = make(map[string]*tensor.RawTensor)
		a.Groups[group] = g
	}
	g[name] = t
}

// PutAll stores every entry of m in group.
func (a *Archive) PutAll(group string, m map[string]*tensor.RawTensor) {
	for name, t := range m {
		a.Put(group, name, t)
	}
}

// Group returns the named nested mapping.
func (a *Archive) Group(name string) (map[string]*tensor.RawTensor, bool) {
	g, ok := a.Groups[name]
	return g, ok
}

// Len returns the total number of tensors in the archive.
func (a *Archive) Len() int {
	n := len(a.Tensors)
	for _, g := range a.Groups {
		n += len(g)
	}
	return n
}

type entry struct {
	group, name string
	t           *tensor.RawTensor
}

// entries returns all tensors sorted by group then name so output is deterministic.
func (a *Archive) entries() []entry {
	out := make([]entry, 0, a.Len())
	for name, t := range a.Tensors {
		out = append(out, entry{name: name, t: t})
	}
	for group, g := range a.Groups {
		for name, t := range g {
			out = append(out, entry{group: group, name: name, t: t})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].group != out[j].group {
			return out[i].group < out[j].group
		}
		return out[i].name < out[j].name
	})
	return out
}
