package nn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

func TestCheckpoint_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vit.born")
	src, err := NewViT(tinyConfig(), cpu.New())
	require.NoError(t, err)

	moment := tensor.MustNewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	copy(moment.AsFloat32(), []float32{0.1, 0.2, 0.3})

	err = SaveCheckpoint(path, src, Checkpoint{
		Epoch:    4,
		Step:     400,
		Loss:     1.25,
		Accuracy: 0.4,
		RunID:    "3f1c",
		Metadata: map[string]string{"dataset": "synthetic"},
		Optimizer: &OptimizerState{
			Kind:    "adam",
			Step:    400,
			Config:  map[string]float64{"lr": 1e-5, "beta1": 0.9},
			Tensors: map[string]*tensor.RawTensor{"head.bias.m": moment},
		},
		Scheduler: &SchedulerState{Kind: "warmup", Values: map[string]float64{"step": 400}},
	})
	require.NoError(t, err)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, tinyConfig(), cfg)

	cfg.Seed = 1234
	dst, err := NewViT(cfg, cpu.New())
	require.NoError(t, err)
	ckpt, err := LoadCheckpoint(path, dst)
	require.NoError(t, err)

	assert.Equal(t, 4, ckpt.Epoch)
	assert.Equal(t, int64(400), ckpt.Step)
	assert.InDelta(t, 1.25, ckpt.Loss, 1e-12)
	assert.InDelta(t, 0.4, ckpt.Accuracy, 1e-12)
	assert.Equal(t, "3f1c", ckpt.RunID)
	assert.Equal(t, "synthetic", ckpt.Metadata["dataset"])

	require.NotNil(t, ckpt.Optimizer)
	assert.Equal(t, "adam", ckpt.Optimizer.Kind)
	assert.Equal(t, int64(400), ckpt.Optimizer.Step)
	assert.InDelta(t, 0.9, ckpt.Optimizer.Config["beta1"], 1e-12)
	assert.NotContains(t, ckpt.Optimizer.Config, "step")
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, ckpt.Optimizer.Tensors["head.bias.m"].AsFloat32())

	require.NotNil(t, ckpt.Scheduler)
	assert.Equal(t, "warmup", ckpt.Scheduler.Kind)
	assert.InDelta(t, 400, ckpt.Scheduler.Values["step"], 0)

	for name, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), dst.StateDict()[name].AsFloat32(), name)
	}
}

func TestCheckpoint_ShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vit.born")
	src, err := NewViT(tinyConfig(), cpu.New())
	require.NoError(t, err)
	require.NoError(t, SaveCheckpoint(path, src, Checkpoint{}))

	cfg := tinyConfig()
	cfg.NumClasses = 5
	dst, err := NewViT(cfg, cpu.New())
	require.NoError(t, err)

	_, err = LoadCheckpoint(path, dst)
	assert.ErrorIs(t, err, ErrStateDict)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.born"))
	assert.Error(t, err)
}
