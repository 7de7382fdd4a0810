package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// ReaderOptions configures the behavior of the reader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level, strict by default
}

// ReadFile reads a .born archive and places its tensors on device.
func ReadFile(path string, device tensor.Device, opts ReaderOptions) (*Archive, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	archive, err := Decode(data, device, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return archive, nil
}

// IsBorn reports whether data starts with the .born magic bytes.
func IsBorn(data []byte) bool {
	return len(data) >= len(MagicBytes) && string(data[:len(MagicBytes)]) == MagicBytes
}

// Decode parses a complete .born archive held in memory.
func Decode(data []byte, device tensor.Device, opts ReaderOptions) (*Archive, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	if !IsBorn(data) {
		return nil, ErrInvalidMagic
	}

	var (
		header     Header
		dataOffset int64
		section    []byte
		err        error
	)

	switch version := binary.LittleEndian.Uint32(data[4:8]); version {
	case FormatVersion:
		header, dataOffset, err = parseHeaderV1(data)
		if err != nil {
			return nil, err
		}
		section = data[dataOffset:]
	case FormatVersionV2:
		var dataSize uint64
		var checksum [32]byte
		header, dataOffset, dataSize, checksum, err = parseHeaderV2(data)
		if err != nil {
			return nil, err
		}
		if uint64(len(data)-int(dataOffset)) < dataSize {
			return nil, ErrTruncated
		}
		section = data[dataOffset : dataOffset+int64(dataSize)]
		if !opts.SkipChecksumValidation {
			if err := verifyChecksum(section, checksum); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: got %d, expected %d or %d", ErrUnsupportedVersion, version, FormatVersion, FormatVersionV2)
	}

	if err := ValidateHeader(&header, int64(len(section)), opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	archive := &Archive{
		Header:  header,
		Tensors: make(map[string]*tensor.RawTensor),
		Groups:  make(map[string]map[string]*tensor.RawTensor),
	}
	for _, meta := range header.Tensors {
		raw, err := loadTensor(meta, section, device)
		if err != nil {
			return nil, err
		}
		archive.Put(meta.Group, meta.Name, raw)
	}
	return archive, nil
}

func parseHeaderV1(data []byte) (Header, int64, error) {
	if len(data) < FixedHeaderSizeV1 {
		return Header{}, 0, ErrTruncated
	}
	headerSize := binary.LittleEndian.Uint64(data[12:20])
	return parseHeaderJSON(data, FixedHeaderSizeV1, headerSize)
}

func parseHeaderV2(data []byte) (Header, int64, uint64, [32]byte, error) {
	var checksum [32]byte
	if len(data) < FixedHeaderSizeV2 {
		return Header{}, 0, 0, checksum, ErrTruncated
	}
	headerSize := binary.LittleEndian.Uint64(data[16:24])
	dataSize := binary.LittleEndian.Uint64(data[24:32])
	copy(checksum[:], data[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	header, offset, err := parseHeaderJSON(data, FixedHeaderSizeV2, headerSize)
	return header, offset, dataSize, checksum, err
}

// parseHeaderJSON decodes the JSON header located after the fixed header and
// returns the aligned offset of the tensor data section.
func parseHeaderJSON(data []byte, start int, headerSize uint64) (Header, int64, error) {
	if headerSize > MaxHeaderSize {
		return Header{}, 0, ErrHeaderTooLarge
	}
	end := int64(start) + int64(headerSize)
	if end > int64(len(data)) {
		return Header{}, 0, ErrTruncated
	}

	var header Header
	if err := json.Unmarshal(data[start:end], &header); err != nil {
		return Header{}, 0, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	offset := end + padding(end)
	if offset > int64(len(data)) {
		return Header{}, 0, ErrTruncated
	}
	return header, offset, nil
}

func loadTensor(meta TensorMeta, section []byte, device tensor.Device) (*tensor.RawTensor, error) {
	dtype, err := tensor.ParseDataType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", meta.Name, err)
	}

	shape := tensor.Shape(meta.Shape)
	need, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", meta.Name, err)
	}
	if int64(need) != meta.Size {
		return nil, invalid(KindSizeMismatch, meta, "shape %v of %s needs %d bytes, header says %d", shape, dtype, need, meta.Size)
	}
	if meta.Offset < 0 || meta.Offset > int64(len(section))-meta.Size {
		return nil, invalid(KindOutOfBounds, meta, "extends beyond data section")
	}

	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", meta.Name, err)
	}
	copy(raw.Data(), section[meta.Offset:meta.Offset+meta.Size])
	return raw, nil
}
