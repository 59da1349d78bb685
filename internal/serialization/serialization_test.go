package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/tensor"
)

func float32Raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func testState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	steps, err := tensor.NewRaw(tensor.Shape{1}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	steps.AsInt64()[0] = 42
	return map[string]*tensor.RawTensor{
		"head.weight":           float32Raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3),
		"head.bias":             float32Raw(t, []float32{-1, 1}, 2),
		"embedding.class_token": float32Raw(t, []float32{0.5, 0.25, 0.125}, 1, 1, 3),
		"optimizer.step":        steps,
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	state := testState(t)
	cfg := json.RawMessage(`{"embed_dim":3}`)

	err := WriteFile(path, state, Header{
		ModelType: "ViT",
		Metadata:  map[string]string{"dataset": "synthetic"},
		Config:    cfg,
		Checkpoint: &CheckpointMeta{
			Epoch: 3, Step: 120, Loss: 0.75, Accuracy: 0.5, RunID: "run-1",
			OptimizerType: "adam", OptimizerConfig: map[string]float64{"lr": 1e-5},
		},
	})
	require.NoError(t, err)

	f, err := ReadFile(path, ReaderOptions{})
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, f.Header.FormatVersion)
	assert.Equal(t, Producer, f.Header.Producer)
	assert.Equal(t, "ViT", f.Header.ModelType)
	assert.Equal(t, "synthetic", f.Header.Metadata["dataset"])
	assert.JSONEq(t, string(cfg), string(f.Header.Config))
	require.NotNil(t, f.Header.Checkpoint)
	assert.Equal(t, 3, f.Header.Checkpoint.Epoch)
	assert.Equal(t, "run-1", f.Header.Checkpoint.RunID)
	assert.True(t, f.HasOptimizer())

	require.Len(t, f.Tensors, len(state))
	for name, want := range state {
		got, ok := f.Tensors[name]
		require.True(t, ok, name)
		assert.Equal(t, want.Shape(), got.Shape(), name)
		assert.Equal(t, want.DType(), got.DType(), name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	state := testState(t)
	var a, b bytes.Buffer
	h := Header{ModelType: "ViT"}
	require.NoError(t, Encode(&a, state, h))
	require.NoError(t, Encode(&b, state, h))

	fa, err := Decode(&a, ReaderOptions{})
	require.NoError(t, err)
	fb, err := Decode(&b, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, fa.Checksum, fb.Checksum)
}

func TestEncode_DataAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{ModelType: "ViT"}))

	f, err := Decode(bytes.NewReader(buf.Bytes()), ReaderOptions{})
	require.NoError(t, err)

	var dataSize int64
	for _, m := range f.Header.Tensors {
		dataSize += m.Size
	}
	start := int64(buf.Len()) - dataSize
	assert.Zero(t, start%HeaderAlignment)
}

func TestDecode_ChecksumTamper(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{ModelType: "ViT"}))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	_, err := Decode(bytes.NewReader(data), ReaderOptions{})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	f, err := Decode(bytes.NewReader(data), ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	assert.Len(t, f.Tensors, 4)
}

func TestDecode_InvalidMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{}))
	data := buf.Bytes()
	copy(data, "NOPE")

	_, err := Decode(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{}))
	data := buf.Bytes()
	data[4] = 1

	_, err := Decode(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecode_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{}))
	data := buf.Bytes()

	_, err := Decode(bytes.NewReader(data[:len(data)-4]), ReaderOptions{})
	assert.Error(t, err)
}

func TestEncode_RejectsBadName(t *testing.T) {
	state := map[string]*tensor.RawTensor{"../etc/passwd": float32Raw(t, []float32{1}, 1)}
	err := Encode(&bytes.Buffer{}, state, Header{})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "invalid_name", verr.Type)
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name    string
		tensors []TensorMeta
		kind    string
	}{
		{"ok", []TensorMeta{{Name: "a", Offset: 0, Size: 8}, {Name: "b", Offset: 8, Size: 8}}, ""},
		{"overlap", []TensorMeta{{Name: "a", Offset: 0, Size: 12}, {Name: "b", Offset: 8, Size: 8}}, "offset_overlap"},
		{"out of bounds", []TensorMeta{{Name: "a", Offset: 12, Size: 8}}, "out_of_bounds"},
		{"negative", []TensorMeta{{Name: "a", Offset: -4, Size: 8}}, "negative_offset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, 16)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.kind, verr.Type)
		})
	}
}

func TestValidateHeader_Duplicate(t *testing.T) {
	h := &Header{Tensors: []TensorMeta{{Name: "a", Size: 4}, {Name: "a", Offset: 4, Size: 4}}}
	assert.Error(t, ValidateHeader(h, 8, ValidationNormal))
	assert.NoError(t, ValidateHeader(h, 8, ValidationNone))
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	require.NoError(t, WriteFile(path, testState(t), Header{ModelType: "ViT"}))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "ViT", h.ModelType)
	assert.Len(t, h.Tensors, 4)
	assert.Equal(t, "embedding.class_token", h.Tensors[0].Name)
}

func TestWriteFile_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(dir, "a.born"), testState(t), Header{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.born", entries[0].Name())
}
