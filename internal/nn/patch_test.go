package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

func newPatch(t *testing.T, cfg PatchEmbeddingConfig) *PatchEmbedding[cpuT] {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	p, err := NewPatchEmbedding(cfg, rng, cpu.New())
	require.NoError(t, err)
	p.Initialize(rng)
	return p
}

func TestPatchEmbedding_SequenceLength(t *testing.T) {
	tests := []struct {
		image, patch, channels, want int
	}{
		{8, 4, 1, 5},
		{32, 4, 3, 65},
		{28, 7, 1, 17},
		{6, 6, 2, 2},
		{6, 1, 1, 37},
	}
	for _, tt := range tests {
		cfg := PatchEmbeddingConfig{ImageSize: tt.image, PatchSize: tt.patch, Channels: tt.channels, EmbedDim: 8}
		p := newPatch(t, cfg)
		x := randn(t, rand.New(rand.NewSource(2)), cpu.New(), 2, tt.channels, tt.image, tt.image)

		out := p.Forward(x)

		assert.Equal(t, tensor.Shape{2, tt.want, 8}, out.Shape(), "image %d patch %d", tt.image, tt.patch)
		assert.Equal(t, tt.want, cfg.SeqLen())
	}
}

func TestPatchEmbedding_ClassTokenRow(t *testing.T) {
	backend := cpu.New()
	p := newPatch(t, PatchEmbeddingConfig{ImageSize: 4, PatchSize: 2, Channels: 1, EmbedDim: 3, Dropout: 0.5})
	p.SetTraining(false)
	x := randn(t, rand.New(rand.NewSource(3)), backend, 2, 1, 4, 4)

	out := p.Forward(x).Data()
	cls := p.ClassToken().Tensor().Data()
	pos := p.PositionalTable().Tensor().Data()

	for b := 0; b < 2; b++ {
		for e := 0; e < 3; e++ {
			assert.InDelta(t, cls[e]+pos[e], out[b*5*3+e], 1e-7)
		}
	}
}

func TestPatchEmbedding_PatchOrderIsRowMajor(t *testing.T) {
	backend := cpu.New()
	p := newPatch(t, PatchEmbeddingConfig{ImageSize: 4, PatchSize: 2, Channels: 1, EmbedDim: 1})
	p.SetTraining(false)
	// Kernel of ones, zero bias, zero tokens: each patch token is its pixel sum.
	fillConst(p.proj.Weight(), 1)
	fillConst(p.proj.Bias(), 0)
	fillConst(p.ClassToken(), 0)
	fillConst(p.PositionalTable(), 0)

	img := fromSlice(t, backend, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, 1, 1, 4, 4)

	assert.Equal(t, []float32{0, 4, 8, 12, 16}, p.Forward(img).Data())
}

func TestPatchEmbeddingConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  PatchEmbeddingConfig
		err  error
	}{
		{"not divisible", PatchEmbeddingConfig{ImageSize: 10, PatchSize: 4, Channels: 1, EmbedDim: 8}, ErrInvalidPatchSize},
		{"zero patch", PatchEmbeddingConfig{ImageSize: 8, PatchSize: 0, Channels: 1, EmbedDim: 8}, ErrInvalidPatchSize},
		{"positional mismatch", PatchEmbeddingConfig{ImageSize: 8, PatchSize: 4, Channels: 1, EmbedDim: 8, NumPositions: 4}, ErrPositionalMismatch},
		{"bad dropout", PatchEmbeddingConfig{ImageSize: 8, PatchSize: 4, Channels: 1, EmbedDim: 8, Dropout: 1}, ErrInvalidConfig},
		{"bad init", PatchEmbeddingConfig{ImageSize: 8, PatchSize: 4, Channels: 1, EmbedDim: 8, PositionalInit: "rope"}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPatchEmbedding(tt.cfg, rand.New(rand.NewSource(1)), cpu.New())
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := NewPatchEmbedding(PatchEmbeddingConfig{ImageSize: 8, PatchSize: 4, Channels: 1, EmbedDim: 8, NumPositions: 5},
		rand.New(rand.NewSource(1)), cpu.New())
	assert.NoError(t, err)
}

func TestPatchEmbedding_ForwardRejectsBadImages(t *testing.T) {
	backend := cpu.New()
	p := newPatch(t, PatchEmbeddingConfig{ImageSize: 8, PatchSize: 4, Channels: 1, EmbedDim: 4})

	for _, shape := range []tensor.Shape{
		{2, 1, 8, 12}, // not square
		{2, 1, 12, 12}, // wrong size
		{2, 1, 6, 6},  // not a multiple
		{2, 3, 8, 8},  // wrong channels
		{1, 8, 8},     // not 4D
	} {
		x := tensor.Zeros[float32](shape, backend)
		assert.Panics(t, func() { p.Forward(x) }, "shape %v", shape)
	}
}

func TestPatchEmbedding_SinusoidalInit(t *testing.T) {
	p := newPatch(t, PatchEmbeddingConfig{
		ImageSize: 4, PatchSize: 2, Channels: 1, EmbedDim: 4, PositionalInit: PositionalSinusoidal,
	})
	pos := p.PositionalTable().Tensor().Data()

	assert.Equal(t, SinusoidalTable(5, 4), pos)
	// Position 0: sin(0) = 0, cos(0) = 1.
	assert.Equal(t, []float32{0, 1, 0, 1}, pos[:4])
}

func TestPatchEmbedding_ParameterNames(t *testing.T) {
	p := newPatch(t, PatchEmbeddingConfig{ImageSize: 4, PatchSize: 2, Channels: 1, EmbedDim: 4})
	assert.Equal(t, []string{"proj.weight", "proj.bias", "class_token", "pos_embedding"}, paramNames(p.Parameters()))
}
