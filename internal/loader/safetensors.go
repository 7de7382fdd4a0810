package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/x448/float16"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// A SafeTensors file is a little-endian uint64 header length, a JSON header
// mapping tensor names to dtype, shape and data offsets (plus an optional
// "__metadata__" string map), then the tensor bytes.

const (
	safeTensorsMetadataKey = "__metadata__"
	// maxSafeTensorsHeader bounds the JSON header read from untrusted files.
	maxSafeTensorsHeader = 100 << 20
)

// SafeTensorsDType is a SafeTensors element type name.
type SafeTensorsDType string

// SafeTensors dtypes this package reads.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
	SafeTensorsU8   SafeTensorsDType = "U8"
	SafeTensorsBool SafeTensorsDType = "BOOL"
)

// SafeTensorInfo is one header entry. DataOffsets are [begin, end) relative
// to the start of the data section.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"`
}

// safeTensorsFile is a parsed SafeTensors archive held in memory.
type safeTensorsFile struct {
	metadata map[string]string
	entries  map[string]SafeTensorInfo
	data     []byte
}

func parseSafeTensors(buf []byte) (*safeTensorsFile, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("safetensors: file is %d bytes, too short for a header", len(buf))
	}
	n := binary.LittleEndian.Uint64(buf)
	if n > maxSafeTensorsHeader || n > uint64(len(buf)-8) {
		return nil, fmt.Errorf("safetensors: header length %d invalid for a %d byte file", n, len(buf))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf[8:8+n], &raw); err != nil {
		return nil, fmt.Errorf("safetensors: failed to parse header: %w", err)
	}

	f := &safeTensorsFile{
		metadata: make(map[string]string),
		entries:  make(map[string]SafeTensorInfo, len(raw)),
		data:     buf[8+n:],
	}
	for name, msg := range raw {
		if name == safeTensorsMetadataKey {
			if err := json.Unmarshal(msg, &f.metadata); err != nil {
				return nil, fmt.Errorf("safetensors: failed to parse metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("safetensors: failed to parse entry %s: %w", name, err)
		}
		f.entries[name] = info
	}
	return f, nil
}

// names returns the tensor names in sorted order.
func (f *safeTensorsFile) names() []string {
	return slices.Sorted(maps.Keys(f.entries))
}

// load materializes one tensor on device. F16 and BF16 data is widened to
// float32.
func (f *safeTensorsFile) load(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, ok := f.entries[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	dtype, widen, err := safeTensorsDTypeToDataType(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	begin, end := info.DataOffsets[0], info.DataOffsets[1]
	if begin < 0 || end < begin || end > int64(len(f.data)) {
		return nil, fmt.Errorf("tensor %s: data offsets [%d, %d) outside %d byte data section",
			name, begin, end, len(f.data))
	}
	src := f.data[begin:end]

	shape := tensor.Shape(info.Shape)
	width := dtype.Size()
	if widen != nil {
		width = 2
	}
	need, err := shape.SizeOf(width)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if len(src) != need {
		return nil, fmt.Errorf("tensor %s: data is %d bytes, shape %v of %s needs %d",
			name, len(src), info.Shape, info.DType, need)
	}

	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if widen == nil {
		copy(raw.Data(), src)
		return raw, nil
	}
	dst := raw.AsFloat32()
	for i := range dst {
		dst[i] = widen(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return raw, nil
}

// safeTensorsDTypeToDataType maps a SafeTensors dtype to a tensor dtype. For
// half-precision inputs it also returns the widening conversion to float32.
func safeTensorsDTypeToDataType(dtype SafeTensorsDType) (tensor.DataType, func(uint16) float32, error) {
	switch dtype {
	case SafeTensorsF32:
		return tensor.Float32, nil, nil
	case SafeTensorsF64:
		return tensor.Float64, nil, nil
	case SafeTensorsI32:
		return tensor.Int32, nil, nil
	case SafeTensorsI64:
		return tensor.Int64, nil, nil
	case SafeTensorsU8:
		return tensor.Uint8, nil, nil
	case SafeTensorsBool:
		return tensor.Bool, nil, nil
	case SafeTensorsF16:
		return tensor.Float32, func(b uint16) float32 { return float16.Frombits(b).Float32() }, nil
	case SafeTensorsBF16:
		return tensor.Float32, func(b uint16) float32 { return math.Float32frombits(uint32(b) << 16) }, nil
	default:
		return 0, nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}
