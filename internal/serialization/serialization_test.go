package serialization_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/idcnn/internal/serialization"
	"github.com/born-ml/idcnn/internal/tensor"
)

func sample(t *testing.T) []serialization.NamedTensor {
	t.Helper()
	w, err := tensor.FromSlice([]float64{1, -2.5, 3e-9, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float64{0.01, 0.02, 0.03}, tensor.Shape{3})
	require.NoError(t, err)
	return []serialization.NamedTensor{{Name: "block/w_o", Tensor: w}, {Name: "block/b_o", Tensor: b}}
}

func encode(t *testing.T, header serialization.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, serialization.Write(&buf, header, sample(t)))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	header := serialization.Header{
		Version:    "test",
		Network:    json.RawMessage(`{"num_classes":3}`),
		Metadata:   map[string]string{"note": "x"},
		Checkpoint: &serialization.CheckpointMeta{Epoch: 2, GlobalStep: 40, Loss: 1.5, Optimizer: "Adam", LR: 0.001},
	}
	raw := encode(t, header)

	ckpt, err := serialization.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"block/w_o", "block/b_o"}, ckpt.TensorNames())
	assert.Equal(t, 9, ckpt.NumElements())
	for _, nt := range sample(t) {
		got := ckpt.Tensors[nt.Name]
		require.NotNil(t, got, nt.Name)
		assert.Equal(t, nt.Tensor.Shape(), got.Shape())
		assert.Equal(t, nt.Tensor.Data(), got.Data())
	}

	h := ckpt.Header
	assert.Equal(t, serialization.FormatVersion, h.FormatVersion)
	assert.Equal(t, "test", h.Version)
	assert.JSONEq(t, `{"num_classes":3}`, string(h.Network))
	assert.Equal(t, header.Checkpoint, h.Checkpoint)
	assert.False(t, h.CreatedAt.IsZero())
	_, err = uuid.Parse(h.RunID)
	assert.NoError(t, err)

	flags := binary.LittleEndian.Uint32(raw[8:12])
	assert.Equal(t, serialization.FlagHasCheckpoint|serialization.FlagHasMetadata, flags)
}

func TestDataIsAligned(t *testing.T) {
	raw := encode(t, serialization.Header{})
	headerSize := binary.LittleEndian.Uint64(raw[16:24])
	dataSize := binary.LittleEndian.Uint64(raw[24:32])
	assert.Equal(t, uint64(9*8), dataSize)
	assert.Zero(t, (uint64(len(raw))-dataSize)%serialization.HeaderAlignment)
	assert.GreaterOrEqual(t, uint64(len(raw))-dataSize, serialization.FixedHeaderSize+headerSize)
}

func TestRunIDKept(t *testing.T) {
	id := uuid.NewString()
	ckpt, err := serialization.Read(bytes.NewReader(encode(t, serialization.Header{RunID: id})))
	require.NoError(t, err)
	assert.Equal(t, id, ckpt.Header.RunID)
}

func TestReadErrors(t *testing.T) {
	good := encode(t, serialization.Header{})

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, serialization.ErrInvalidMagic},
		{"bad version", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[4:8], 9); return b }, serialization.ErrUnsupportedVersion},
		{"flipped data bit", func(b []byte) []byte { b[len(b)-1] ^= 1; return b }, serialization.ErrChecksumMismatch},
		{"truncated data", func(b []byte) []byte { return b[:len(b)-4] }, serialization.ErrTruncated},
		{"truncated fixed header", func(b []byte) []byte { return b[:10] }, serialization.ErrTruncated},
		{"huge header", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[16:24], serialization.MaxHeaderSize+1)
			return b
		}, serialization.ErrHeaderTooLarge},
		{"short data size", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[24:32], 8)
			return b
		}, serialization.ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.mutate(bytes.Clone(good))
			_, err := serialization.Read(bytes.NewReader(raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	for _, name := range []string{"w_e", "block/w_o", "block3/conv1_w", "transitions"} {
		assert.NoError(t, serialization.ValidateTensorName(name), name)
	}
	for _, name := range []string{"", "/abs", "../up", "a/../b", "a\\b", "a\x00b"} {
		assert.ErrorIs(t, serialization.ValidateTensorName(name), serialization.ErrInvalidTensorName, name)
	}
}

func TestValidateTensorOffsets(t *testing.T) {
	meta := func(name string, offset int64, n int) serialization.TensorMeta {
		return serialization.TensorMeta{Name: name, DType: serialization.DTypeFloat64, Shape: []int{n}, Offset: offset, Size: int64(n * 8)}
	}
	assert.NoError(t, serialization.ValidateTensorOffsets([]serialization.TensorMeta{meta("a", 0, 2), meta("b", 16, 1)}, 24))

	err := serialization.ValidateTensorOffsets([]serialization.TensorMeta{meta("a", 0, 2), meta("b", 8, 1)}, 24)
	assert.ErrorIs(t, err, serialization.ErrOffsetOverlap)
	var verr *serialization.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "b", verr.Tensor2)

	err = serialization.ValidateTensorOffsets([]serialization.TensorMeta{meta("a", 16, 2)}, 24)
	assert.ErrorIs(t, err, serialization.ErrOutOfBounds)

	bad := meta("a", 0, 2)
	bad.Size = 8
	assert.ErrorIs(t, serialization.ValidateTensorOffsets([]serialization.TensorMeta{bad}, 24), serialization.ErrOutOfBounds)
}

func TestWriteRejectsDuplicateNames(t *testing.T) {
	ts := sample(t)
	ts[1].Name = ts[0].Name
	err := serialization.Write(&bytes.Buffer{}, serialization.Header{}, ts)
	assert.ErrorIs(t, err, serialization.ErrInvalidTensorName)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.idcn")
	require.NoError(t, serialization.WriteFile(path, serialization.Header{Version: "v"}, sample(t)))

	ckpt, err := serialization.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v", ckpt.Header.Version)

	matches, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = serialization.ReadFile(filepath.Join(t.TempDir(), "missing.idcn"))
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	a := serialization.ComputeChecksum([]byte("abc"))
	assert.NoError(t, serialization.ValidateChecksum(a, a))
	assert.ErrorIs(t, serialization.ValidateChecksum(a, serialization.ComputeChecksum([]byte("abd"))), serialization.ErrChecksumMismatch)
}
