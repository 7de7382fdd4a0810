package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

func newFloat32(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(values, shape, tensor.CPU)
	require.NoError(t, err)
	return raw
}

func TestRoundTripGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.born")

	archive := NewArchive()
	archive.Header.ModelType = "PointDet"
	archive.Header.Metadata["dataset"] = "kitti"
	archive.Header.CheckpointMeta = &CheckpointMeta{IsCheckpoint: true, Epoch: 3, Step: 1200, Loss: 0.25}
	archive.Put("", "epoch_marker", newFloat32(t, tensor.Shape{1}, 3))
	archive.Put("state_dict", "module.0.weight", newFloat32(t, tensor.Shape{2, 2}, 1, 2, 3, 4))
	archive.Put("state_dict", "module.0.bias", newFloat32(t, tensor.Shape{2}, 5, 6))

	require.NoError(t, WriteFile(path, archive))

	loaded, err := ReadFile(path, tensor.CPU, ReaderOptions{})
	require.NoError(t, err)

	assert.Equal(t, FormatVersionV2, loaded.Header.FormatVersion)
	assert.Equal(t, Producer, loaded.Header.Producer)
	assert.Equal(t, "PointDet", loaded.Header.ModelType)
	assert.Equal(t, "kitti", loaded.Header.Metadata["dataset"])
	require.NotNil(t, loaded.Header.CheckpointMeta)
	assert.Equal(t, 3, loaded.Header.CheckpointMeta.Epoch)
	assert.Equal(t, 3, loaded.Len())

	sd, ok := loaded.Group("state_dict")
	require.True(t, ok)
	require.Contains(t, sd, "module.0.weight")
	assert.Equal(t, []float32{1, 2, 3, 4}, sd["module.0.weight"].AsFloat32())
	assert.Equal(t, tensor.Shape{2, 2}, sd["module.0.weight"].Shape())
	assert.Equal(t, []float32{5, 6}, sd["module.0.bias"].AsFloat32())
	assert.Equal(t, []float32{3}, loaded.Tensors["epoch_marker"].AsFloat32())
}

func TestEncodeDataAligned(t *testing.T) {
	archive := NewArchive()
	archive.Put("", "w", newFloat32(t, tensor.Shape{3}, 1, 2, 3))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, archive))
	data := buf.Bytes()

	headerSize := binary.LittleEndian.Uint64(data[16:24])
	dataSize := binary.LittleEndian.Uint64(data[24:32])
	end := int64(FixedHeaderSizeV2) + int64(headerSize)
	start := end + padding(end)

	assert.Zero(t, start%HeaderAlignment)
	assert.Equal(t, uint64(12), dataSize)
	assert.Equal(t, int64(len(data)), start+int64(dataSize))
	assert.Zero(t, binary.LittleEndian.Uint32(data[8:12]), "no metadata, groups or checkpoint")
}

func TestDecodeChecksumMismatch(t *testing.T) {
	archive := NewArchive()
	archive.Put("", "w", newFloat32(t, tensor.Shape{2}, 1, 2))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, archive))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	_, err := Decode(data, tensor.CPU, ReaderOptions{})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = Decode(data, tensor.CPU, ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"magic", []byte("NOPE\x02\x00\x00\x00"), ErrInvalidMagic},
		{"version", []byte("BORN\x09\x00\x00\x00"), ErrUnsupportedVersion},
		{"short v2", []byte("BORN\x02\x00\x00\x00\x00\x00"), ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tensor.CPU, ReaderOptions{})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

// writeV1 builds a v1 archive by hand: 20-byte fixed header, JSON, aligned data.
func writeV1(t *testing.T, header Header, payload []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON)))
	buf.Write(headerJSON)
	buf.Write(make([]byte, padding(int64(buf.Len()))))
	buf.Write(payload)
	return buf.Bytes()
}

func TestDecodeV1(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], 0x3f800000) // 1.0
	binary.LittleEndian.PutUint32(payload[4:8], 0x40000000) // 2.0

	data := writeV1(t, Header{
		FormatVersion: FormatVersion,
		Tensors:       []TensorMeta{{Name: "b", DType: "float32", Shape: []int{2}, Offset: 0, Size: 8}},
	}, payload)

	archive, err := Decode(data, tensor.CPU, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, archive.Tensors["b"].AsFloat32())
}

// writeV2 builds a v2 archive by hand with a valid checksum over payload.
func writeV2(t *testing.T, header Header, payload []byte) []byte {
	t.Helper()
	header.FormatVersion = FormatVersionV2
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(payload)))
	sum := sha256.Sum256(payload)
	copy(fixed[ChecksumOffsetV2:], sum[:])

	var buf bytes.Buffer
	buf.Write(fixed)
	buf.Write(headerJSON)
	buf.Write(make([]byte, padding(int64(buf.Len()))))
	buf.Write(payload)
	return buf.Bytes()
}

func TestDecodeHugeShapeIsAnError(t *testing.T) {
	for _, shape := range [][]int{
		{1125899906842624},
		{1 << 40, 1 << 40},
		{-2, -4},
	} {
		data := writeV2(t, Header{Tensors: []TensorMeta{
			{Name: "w", Group: "state_dict", DType: "float32", Shape: shape, Offset: 0, Size: 8},
		}}, make([]byte, 8))

		var err error
		require.NotPanics(t, func() { _, err = Decode(data, tensor.CPU, ReaderOptions{}) }, "shape %v", shape)
		require.Error(t, err, "shape %v", shape)
	}
}

func TestDecodeEmptyTensor(t *testing.T) {
	data := writeV2(t, Header{Tensors: []TensorMeta{
		{Name: "empty", DType: "float32", Shape: []int{0, 3}, Offset: 0, Size: 0},
		{Name: "w", DType: "float32", Shape: []int{1}, Offset: 0, Size: 4},
	}}, make([]byte, 4))

	archive, err := Decode(data, tensor.CPU, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 3}, archive.Tensors["empty"].Shape())
	assert.Empty(t, archive.Tensors["empty"].AsFloat32())
}

func TestDecodeSizeMismatch(t *testing.T) {
	data := writeV1(t, Header{
		Tensors: []TensorMeta{{Name: "b", DType: "float32", Shape: []int{3}, Offset: 0, Size: 8}},
	}, make([]byte, 8))

	_, err := Decode(data, tensor.CPU, ReaderOptions{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindSizeMismatch, verr.Kind)
}

func TestValidateHeader(t *testing.T) {
	overlap := &Header{Tensors: []TensorMeta{
		{Name: "a", Offset: 0, Size: 8},
		{Name: "b", Offset: 4, Size: 8},
	}}
	var verr *ValidationError
	require.ErrorAs(t, ValidateHeader(overlap, 16, ValidationStrict), &verr)
	assert.Equal(t, KindOverlap, verr.Kind)
	assert.NoError(t, ValidateHeader(overlap, 16, ValidationNormal))
	assert.NoError(t, ValidateHeader(overlap, 16, ValidationNone))

	dup := &Header{Tensors: []TensorMeta{
		{Name: "w", Group: "state_dict", Size: 4},
		{Name: "w", Offset: 4, Size: 4},
		{Name: "w", Group: "state_dict", Offset: 8, Size: 4},
	}}
	require.ErrorAs(t, ValidateHeader(dup, 12, ValidationNormal), &verr)
	assert.Equal(t, KindDuplicateName, verr.Kind)

	for _, name := range []string{"", "../escape", "a/b", "a\\b", "nul\x00"} {
		assert.Error(t, ValidateTensorName(name), "name %q", name)
	}
	assert.NoError(t, ValidateTensorName("module.backbone.0.weight"))
}

func TestWriteFileLeavesNoTempOnError(t *testing.T) {
	dir := t.TempDir()
	archive := NewArchive()
	archive.Put("", "../bad", newFloat32(t, tensor.Shape{1}, 1))

	require.Error(t, WriteFile(filepath.Join(dir, "bad.born"), archive))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteSafeTensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"b": newFloat32(t, tensor.Shape{1}, 2),
		"a": newFloat32(t, tensor.Shape{2}, 0, 1),
	}, map[string]string{"format": "pt"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	size := binary.LittleEndian.Uint64(data[:8])

	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data[8:8+size], &header))
	assert.Contains(t, header, "__metadata__")

	var a safeTensorEntry
	require.NoError(t, json.Unmarshal(header["a"], &a))
	assert.Equal(t, "F32", a.DType)
	assert.Equal(t, [2]int64{0, 8}, a.DataOffsets)
	assert.Len(t, data, int(8+size+12))
}
