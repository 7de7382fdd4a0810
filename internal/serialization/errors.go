package serialization

import (
	"errors"
	"fmt"
)

// Errors returned while decoding an archive.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrTruncated          = errors.New("file truncated")
)

// ValidationKind classifies a ValidationError.
type ValidationKind string

// Validation failure kinds.
const (
	KindInvalidName    ValidationKind = "invalid_name"
	KindDuplicateName  ValidationKind = "duplicate_name"
	KindTooManyTensors ValidationKind = "too_many_tensors"
	KindOutOfBounds    ValidationKind = "out_of_bounds"
	KindOverlap        ValidationKind = "offset_overlap"
	KindSizeMismatch   ValidationKind = "size_mismatch"
)

// ValidationError reports a header entry that does not describe a loadable
// tensor. Tensor is the group-qualified name when one is known.
type ValidationError struct {
	Kind   ValidationKind
	Tensor string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Tensor == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: tensor %q: %s", e.Kind, e.Tensor, e.Detail)
}

func invalid(kind ValidationKind, meta TensorMeta, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Tensor: meta.qualifiedName(), Detail: fmt.Sprintf(format, args...)}
}
