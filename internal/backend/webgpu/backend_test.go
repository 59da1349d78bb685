package webgpu

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

func randomRaw(rng *rand.Rand, shape ...int) *tensor.RawTensor {
	r := tensor.MustNewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	for i := range r.AsFloat32() {
		r.AsFloat32()[i] = float32(rng.NormFloat64())
	}
	return r
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	b, err := New()
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func TestNew_UnavailableIsSentinel(t *testing.T) {
	if IsAvailable() {
		t.Skip("WebGPU available")
	}
	b, err := New()
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestBatchShape(t *testing.T) {
	tests := []struct {
		a, b           []int
		batch, m, k, n int
		ok             bool
	}{
		{[]int{2, 3, 4}, []int{2, 4, 5}, 2, 3, 4, 5, true},
		{[]int{2, 8, 65, 16}, []int{2, 8, 16, 65}, 16, 65, 16, 65, true},
		{[]int{2, 3, 4}, []int{3, 4, 5}, 0, 0, 0, 0, false},
		{[]int{3, 4}, []int{4, 5}, 0, 0, 0, 0, false},
		{[]int{2, 3, 4}, []int{2, 5, 5}, 0, 0, 0, 0, false},
	}
	for _, tt := range tests {
		batch, m, k, n, ok := batchShape(tt.a, tt.b)
		assert.Equal(t, tt.ok, ok, "%v @ %v", tt.a, tt.b)
		if ok {
			assert.Equal(t, []int{tt.batch, tt.m, tt.k, tt.n}, []int{batch, m, k, n})
		}
	}
}

func TestMatMul_MatchesCPU(t *testing.T) {
	b := newBackend(t)
	rng := rand.New(rand.NewSource(1))
	x, w := randomRaw(rng, 64, 128), randomRaw(rng, 128, 96)

	got := b.MatMul(x, w).AsFloat32()
	want := cpu.New().MatMul(x, w).AsFloat32()

	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-3)
	}
}

func TestBatchMatMul_AttentionShapes(t *testing.T) {
	b := newBackend(t)
	rng := rand.New(rand.NewSource(2))
	q, k := randomRaw(rng, 4, 8, 65, 16), randomRaw(rng, 4, 8, 16, 65)

	got := b.BatchMatMul(q, k)
	want := cpu.New().BatchMatMul(q, k)

	assert.Equal(t, want.Shape(), got.Shape())
	for i, v := range want.AsFloat32() {
		assert.InDelta(t, v, got.AsFloat32()[i], 1e-3)
	}
}

func TestSmallProductsStayOnCPU(t *testing.T) {
	b := newBackend(t)
	rng := rand.New(rand.NewSource(3))
	x, w := randomRaw(rng, 2, 3), randomRaw(rng, 3, 2)

	assert.Equal(t, tensor.CPU, b.MatMul(x, w).Device())
}
