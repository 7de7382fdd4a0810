package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Encode writes archive to w in v2 format.
//
// Header fields FormatVersion, Producer, Tensors and (if zero) CreatedAt are
// filled in by Encode.
func Encode(w io.Writer, archive *Archive) error {
	header := archive.Header
	header.FormatVersion = FormatVersionV2
	header.Producer = Producer
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	entries := archive.entries()
	header.Tensors = make([]TensorMeta, 0, len(entries))

	var data bytes.Buffer
	var offset int64
	grouped := false
	for _, e := range entries {
		if err := ValidateTensorName(e.name); err != nil {
			return err
		}
		if e.group != "" {
			grouped = true
		}
		size := int64(e.t.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   e.name,
			Group:  e.group,
			DType:  e.t.DType().String(),
			Shape:  []int(e.t.Shape()),
			Offset: offset,
			Size:   size,
		})
		data.Write(e.t.Data())
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil && header.CheckpointMeta.IsCheckpoint {
		flags |= FlagHasCheckpoint
	}
	if grouped {
		flags |= FlagHasGroups
	}

	checksum := sha256.Sum256(data.Bytes())

	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(data.Len()))
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}
	if pad := padding(int64(FixedHeaderSizeV2) + int64(len(headerJSON))); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// WriteFile writes archive to path. The file is written to a temporary
// sibling and renamed so readers never observe a partial archive.
func WriteFile(path string, archive *Archive) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, archive); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// padding returns the number of zero bytes needed to align pos.
func padding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}
