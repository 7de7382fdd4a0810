// Package tensor provides the raw tensor storage used by the detection pipeline:
// shapes, runtime data types, device placement and the Backend contract.
package tensor

import "fmt"

// DataType is the runtime element type of a tensor.
type DataType int

// Element types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

type dtypeInfo struct {
	name string
	size int
}

var dtypes = [...]dtypeInfo{
	Float32: {"float32", 4},
	Float64: {"float64", 8},
	Int32:   {"int32", 4},
	Int64:   {"int64", 8},
	Uint8:   {"uint8", 1},
	Bool:    {"bool", 1},
}

func (dt DataType) valid() bool { return dt >= 0 && int(dt) < len(dtypes) }

// Size returns the element width in bytes. It panics on an unknown type.
func (dt DataType) Size() int {
	if !dt.valid() {
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
	return dtypes[dt].size
}

// String returns the name used in archive headers, e.g. "float32".
func (dt DataType) String() string {
	if !dt.valid() {
		return "unknown"
	}
	return dtypes[dt].name
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	for dt, info := range dtypes {
		if info.name == s {
			return DataType(dt), nil
		}
	}
	return 0, fmt.Errorf("unsupported dtype %q", s)
}
