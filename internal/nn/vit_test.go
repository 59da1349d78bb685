package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/autodiff"
	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

func tinyConfig() ViTConfig {
	return ViTConfig{
		ImageSize:  8,
		PatchSize:  4,
		Channels:   1,
		NumClasses: 3,
		EmbedDim:   8,
		NumHeads:   2,
		NumBlocks:  1,
		FFNDim:     16,
		Dropout:    0.1,
		Seed:       11,
	}
}

func TestViT_EndToEnd(t *testing.T) {
	backend := cpu.New()
	model, err := NewViT(tinyConfig(), backend)
	require.NoError(t, err)

	images := randn(t, rand.New(rand.NewSource(1)), backend, 2, 1, 8, 8)
	logits := model.Forward(images)

	assert.Equal(t, tensor.Shape{2, 3}, logits.Shape())
	assert.False(t, logits.HasNaNOrInf())
	assert.Equal(t, 5, model.Config().SeqLen())
}

func TestViT_EvalIsDeterministic(t *testing.T) {
	backend := cpu.New()
	model, err := NewViT(tinyConfig(), backend)
	require.NoError(t, err)
	model.SetTraining(false)
	images := randn(t, rand.New(rand.NewSource(2)), backend, 2, 1, 8, 8)

	first := model.Forward(images).Data()
	second := model.Forward(images).Data()

	assert.Equal(t, first, second)
	assert.False(t, model.Training())
}

func TestViT_TrainingModeUsesDropout(t *testing.T) {
	backend := cpu.New()
	cfg := tinyConfig()
	cfg.Dropout = 0.5
	model, err := NewViT(cfg, backend)
	require.NoError(t, err)
	images := randn(t, rand.New(rand.NewSource(3)), backend, 2, 1, 8, 8)

	model.SetTraining(false)
	eval := model.Forward(images).Data()
	model.SetTraining(true)
	train := model.Forward(images).Data()

	assert.NotEqual(t, eval, train)
}

func TestViT_SameSeedSameWeights(t *testing.T) {
	a, err := NewViT(tinyConfig(), cpu.New())
	require.NoError(t, err)
	b, err := NewViT(tinyConfig(), cpu.New())
	require.NoError(t, err)

	for name, raw := range a.StateDict() {
		assert.Equal(t, raw.AsFloat32(), b.StateDict()[name].AsFloat32(), name)
	}
}

func TestViT_ParameterNames(t *testing.T) {
	model, err := NewViT(tinyConfig(), cpu.New())
	require.NoError(t, err)

	want := []string{
		"embedding.proj.weight", "embedding.proj.bias",
		"embedding.class_token", "embedding.pos_embedding",
		"encoder.blocks.0.attn.q.weight", "encoder.blocks.0.attn.q.bias",
		"encoder.blocks.0.attn.k.weight", "encoder.blocks.0.attn.k.bias",
		"encoder.blocks.0.attn.v.weight", "encoder.blocks.0.attn.v.bias",
		"encoder.blocks.0.norm1.gamma", "encoder.blocks.0.norm1.beta",
		"encoder.blocks.0.ffn.fc1.weight", "encoder.blocks.0.ffn.fc1.bias",
		"encoder.blocks.0.ffn.fc2.weight", "encoder.blocks.0.ffn.fc2.bias",
		"encoder.blocks.0.norm2.gamma", "encoder.blocks.0.norm2.beta",
		"head.weight", "head.bias",
	}
	assert.Equal(t, want, paramNames(model.Parameters()))
	assert.Len(t, model.StateDict(), len(want))

	// 8x1x4x4 + 8 + 8 + 5x8, 3 x (64+8), 2 x 16, 8x16+16 + 16x8+8, 3x8+3
	assert.Equal(t, 128+8+8+40+216+32+144+136+27, model.NumParameters())
}

func TestViT_Initialization(t *testing.T) {
	cfg := DefaultViTConfig()
	model, err := NewViT(cfg, cpu.New())
	require.NoError(t, err)
	state := model.StateDict()

	_, std := meanStd(state["encoder.blocks.0.attn.q.weight"].AsFloat32())
	assert.InDelta(t, WeightStd, std, 0.0002)

	_, std = meanStd(state["embedding.proj.weight"].AsFloat32())
	assert.InDelta(t, WeightStd, std, 0.0002)

	pos := state["embedding.pos_embedding"].AsFloat32()
	_, std = meanStd(pos)
	assert.InDelta(t, TokenStd, std, 0.002)
	for _, v := range pos {
		assert.LessOrEqual(t, math.Abs(float64(v)), 2.0)
	}

	bound := float32(1 / math.Sqrt(float64(cfg.EmbedDim)))
	for _, v := range state["head.bias"].AsFloat32() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}
	for _, v := range state["encoder.blocks.0.norm1.gamma"].AsFloat32() {
		assert.Equal(t, float32(1), v)
	}
}

func TestViTConfig_Validate(t *testing.T) {
	cfg := tinyConfig()
	cfg.NumHeads = 3
	_, err := NewViT(cfg, cpu.New())
	assert.ErrorIs(t, err, ErrHeadsNotDivisible)

	cfg = tinyConfig()
	cfg.ImageSize = 10
	_, err = NewViT(cfg, cpu.New())
	assert.ErrorIs(t, err, ErrInvalidPatchSize)

	cfg = tinyConfig()
	cfg.NumClasses = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	assert.NoError(t, DefaultViTConfig().Validate())
}

func TestViT_LoadStateDict(t *testing.T) {
	src, err := NewViT(tinyConfig(), cpu.New())
	require.NoError(t, err)
	cfg := tinyConfig()
	cfg.Seed = 99
	dst, err := NewViT(cfg, cpu.New())
	require.NoError(t, err)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	for name, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), dst.StateDict()[name].AsFloat32(), name)
	}

	state := src.StateDict()
	delete(state, "head.bias")
	assert.ErrorIs(t, dst.LoadStateDict(state), ErrStateDict)

	state = src.StateDict()
	state["head.bias"] = tensor.MustNewRaw(tensor.Shape{4}, tensor.Float32, tensor.CPU)
	assert.ErrorIs(t, dst.LoadStateDict(state), ErrStateDict)

	state = src.StateDict()
	state["extra"] = tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	assert.ErrorIs(t, dst.LoadStateDict(state), ErrStateDict)
}

func TestViT_GradientsReachEveryParameter(t *testing.T) {
	backend := autodiff.New(cpu.New())
	cfg := tinyConfig()
	cfg.Dropout = 0
	model, err := NewViT(cfg, backend)
	require.NoError(t, err)

	images := tensor.Randn(tensor.Shape{2, 1, 8, 8}, 1, rand.New(rand.NewSource(4)), backend)
	labels, err := tensor.FromSlice([]int32{0, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	loss := NewCrossEntropyLoss[*autodiff.AutodiffBackend[*cpu.CPUBackend]]().Forward(model.Forward(images), labels)
	grads := autodiff.Backward(loss, backend)

	assert.False(t, loss.HasNaNOrInf())
	assert.InDelta(t, math.Log(3), float64(loss.Item()), 0.5)
	for _, p := range model.Parameters() {
		g, ok := grads[p.Tensor().Raw()]
		require.True(t, ok, p.Name())
		assert.Equal(t, p.Tensor().Shape(), g.Shape(), p.Name())
		assert.False(t, tensor.New[float32](g, backend).HasNaNOrInf(), p.Name())
	}
}

func TestAccuracy(t *testing.T) {
	backend := cpu.New()
	logits := fromSlice(t, backend, []float32{
		0.1, 0.9, 0,
		2, 1, 0,
		0, 0, 5,
		1, 3, 2,
	}, 4, 3)

	acc, correct := Accuracy(logits, []int32{1, 0, 1, 1})

	assert.Equal(t, 3, correct)
	assert.InDelta(t, 0.75, acc, 1e-9)
}

func TestEncoder_StackPreservesShapeAndPrefixesBlocks(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(2))
	cfg := EncoderConfig{EmbedDim: 8, NumHeads: 2, FFNDim: 16, NumBlocks: 3}
	enc, err := NewEncoder(cfg, rng, backend)
	require.NoError(t, err)
	enc.Initialize(rng)
	enc.SetTraining(false)

	x := tensor.Randn(tensor.Shape{2, 5, 8}, 1, rng, backend)
	assert.Equal(t, tensor.Shape{2, 5, 8}, enc.Forward(x).Shape())

	assert.Len(t, enc.Blocks(), 3)
	names := paramNames(enc.Parameters())
	assert.Equal(t, "blocks.0.attn.q.weight", names[0])
	assert.Equal(t, "blocks.2.norm2.beta", names[len(names)-1])

	_, err = NewEncoder(EncoderConfig{EmbedDim: 8, NumHeads: 3, FFNDim: 16, NumBlocks: 1}, rng, backend)
	assert.ErrorIs(t, err, ErrHeadsNotDivisible)
}
