package serialization

import (
	"cmp"
	"slices"
	"strings"
)

// Limits applied to untrusted headers.
const (
	MaxHeaderSize    = 100 << 20 // bytes of header JSON
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidationLevel selects how much of a header is checked before tensors are
// materialized.
type ValidationLevel int

const (
	// ValidationStrict checks names, duplicates and data offsets (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and duplicates only.
	ValidationNormal
	// ValidationNone trusts the header.
	ValidationNone
)

// qualifiedName joins group and name for messages, e.g. "state_dict/0.weight".
func (m TensorMeta) qualifiedName() string {
	if m.Group == "" {
		return m.Name
	}
	return m.Group + "/" + m.Name
}

// ValidateTensorName rejects names that are empty, oversized, or that could
// address a path when an archive is unpacked to disk.
func ValidateTensorName(name string) error {
	meta := TensorMeta{Name: name}
	switch {
	case name == "":
		return invalid(KindInvalidName, meta, "empty name")
	case len(name) > MaxTensorNameLen:
		return invalid(KindInvalidName, meta, "length %d exceeds %d", len(name), MaxTensorNameLen)
	case strings.Contains(name, ".."):
		return invalid(KindInvalidName, meta, "contains \"..\"")
	case strings.ContainsAny(name, "/\\\x00"):
		return invalid(KindInvalidName, meta, "contains a path separator or NUL")
	}
	return nil
}

// ValidateHeader checks h against a data section of dataSize bytes.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if n := len(h.Tensors); n > MaxTensorCount {
		return &ValidationError{Kind: KindTooManyTensors, Detail: "header lists too many tensors"}
	}

	seen := make(map[string]struct{}, len(h.Tensors))
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if t.Group != "" {
			if err := ValidateTensorName(t.Group); err != nil {
				return err
			}
		}
		key := t.qualifiedName()
		if _, dup := seen[key]; dup {
			return invalid(KindDuplicateName, t, "listed more than once")
		}
		seen[key] = struct{}{}
	}

	if level == ValidationStrict {
		return validateLayout(h.Tensors, dataSize)
	}
	return nil
}

// validateLayout requires every tensor to lie inside the data section and no
// two tensors to share bytes. Empty tensors occupy no bytes.
func validateLayout(tensors []TensorMeta, dataSize int64) error {
	byOffset := slices.SortedFunc(slices.Values(tensors), func(a, b TensorMeta) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	var prev *TensorMeta
	for i := range byOffset {
		t := &byOffset[i]
		if t.Offset < 0 || t.Size < 0 || t.Offset > dataSize-t.Size {
			return invalid(KindOutOfBounds, *t, "bytes [%d, %d) outside data section of %d", t.Offset, t.Offset+t.Size, dataSize)
		}
		if t.Size == 0 {
			continue
		}
		if prev != nil && prev.Offset+prev.Size > t.Offset {
			return invalid(KindOverlap, *t, "starts at %d inside %q ending at %d",
				t.Offset, prev.qualifiedName(), prev.Offset+prev.Size)
		}
		prev = t
	}
	return nil
}
