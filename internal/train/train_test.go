package train

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/nn"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func tinyConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Model = nn.ViTConfig{
		ImageSize:  8,
		PatchSize:  4,
		Channels:   1,
		NumClasses: 4,
		EmbedDim:   8,
		NumHeads:   2,
		NumBlocks:  1,
		FFNDim:     16,
		Seed:       7,
	}
	cfg.Dataset = DatasetSynthetic
	cfg.Samples = 64
	cfg.Epochs = 10
	cfg.BatchSize = 16
	cfg.LR = 1e-2
	cfg.Checkpoint = ""
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 100, cfg.Epochs)
	assert.InDelta(t, 1e-5, cfg.LR, 1e-12)
	assert.Equal(t, []float64{0.7, 0.15, 0.15}, cfg.Splits)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dataset", func(c *Config) { c.Dataset = "imagenet" }},
		{"optimizer", func(c *Config) { c.Optimizer = "lion" }},
		{"scheduler", func(c *Config) { c.Scheduler = "cosine" }},
		{"device", func(c *Config) { c.Device = "tpu" }},
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"lr", func(c *Config) { c.LR = 0 }},
		{"splits", func(c *Config) { c.Splits = []float64{1} }},
		{"model", func(c *Config) { c.Model.NumHeads = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := strings.Join([]string{
		"dataset: synthetic",
		"epochs: 3",
		"scheduler: plateau",
		"model:",
		"  image_size: 8",
		"  patch_size: 4",
		"  channels: 1",
		"  num_classes: 4",
		"  embed_dim: 8",
		"  num_heads: 2",
		"  num_blocks: 1",
		"  ffn_dim: 16",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DatasetSynthetic, cfg.Dataset)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, 64, cfg.BatchSize, "omitted keys keep defaults")
	assert.Equal(t, 8, cfg.Model.ImageSize)
	assert.Equal(t, int64(3), cfg.Model.Seed)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(out, cfg))
	again, err := LoadConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("epochs: [1, 2"), 0o600))
	_, err = LoadConfig(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("optimizer: lamb"), 0o600))
	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfusionMatrix(t *testing.T) {
	cm := NewConfusionMatrix([]string{"cat", "dog", "frog"})
	cm.AddBatch([]int32{0, 0, 1, 1, 2, 2}, []int32{0, 1, 1, 1, 0, 2})

	assert.Equal(t, 6, cm.Total())
	assert.Equal(t, 1, cm.Count(0, 1))
	assert.InDelta(t, 4.0/6, cm.Accuracy(), 1e-12)
	assert.Equal(t, []float64{0.5, 1, 0.5}, cm.PerClassAccuracy())

	out := cm.String()
	assert.Contains(t, out, "frog")
	assert.Contains(t, out, "0.500")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)

	assert.Zero(t, NewConfusionMatrix([]string{"a"}).Accuracy())
	assert.Panics(t, func() { cm.AddBatch([]int32{0}, nil) })
}

func TestHistory_Best(t *testing.T) {
	_, ok := History{}.Best()
	assert.False(t, ok)

	h := History{
		{Epoch: 1, Val: Metrics{Loss: 2}},
		{Epoch: 2, Val: Metrics{Loss: 1}},
		{Epoch: 3, Val: Metrics{Loss: 1.5}},
	}
	best, ok := h.Best()
	assert.True(t, ok)
	assert.Equal(t, 2, best.Epoch)
}

func TestLoadData_Synthetic(t *testing.T) {
	cfg := tinyConfig(t)
	data, err := LoadData(cfg)
	require.NoError(t, err)

	assert.Equal(t, 45, data.Train.Len())
	assert.Equal(t, 10, data.Val.Len())
	assert.Equal(t, 9, data.Test.Len())
	assert.Len(t, data.Train.Classes(), 4)
}

func TestTrainer_LearnsSyntheticTask(t *testing.T) {
	cfg := tinyConfig(t)
	data, err := LoadData(cfg)
	require.NoError(t, err)

	trainer, err := NewTrainer(cfg, cpu.New(), quiet(), WithRunID("test-run"))
	require.NoError(t, err)
	assert.Equal(t, "test-run", trainer.RunID())

	before, err := trainer.Evaluate(context.Background(), data.Val)
	require.NoError(t, err)

	history, err := trainer.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)
	require.Len(t, history, cfg.Epochs)

	after, err := trainer.Evaluate(context.Background(), data.Val)
	require.NoError(t, err)
	assert.Less(t, after.Loss, before.Loss)
	assert.Equal(t, data.Val.Len(), after.Samples)
	assert.Equal(t, data.Val.Len(), after.Confusion.Total())
	assert.Equal(t, cfg.Epochs, trainer.Epoch())
	assert.Zero(t, trainer.backend.Tape().NumOps(), "tape is cleared after each step")
}

func TestTrainer_CheckpointAndResume(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 3
	cfg.Scheduler = SchedulerWarmup
	cfg.Checkpoint = filepath.Join(t.TempDir(), "ckpt", "model.born")
	data, err := LoadData(cfg)
	require.NoError(t, err)

	trainer, err := NewTrainer(cfg, cpu.New(), quiet())
	require.NoError(t, err)
	history, err := trainer.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)
	best, ok := history.Best()
	require.True(t, ok)

	saved, err := nn.ReadConfig(cfg.Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, cfg.Model, saved)

	resumed, err := NewTrainer(cfg, cpu.New(), quiet())
	require.NoError(t, err)
	require.NoError(t, resumed.Resume(cfg.Checkpoint))
	assert.Equal(t, best.Epoch, resumed.Epoch())

	m, err := resumed.Evaluate(context.Background(), data.Val)
	require.NoError(t, err)
	assert.InDelta(t, best.Val.Loss, m.Loss, 1e-5)
}

func TestTrainer_ResumeContinuesWarmupSchedule(t *testing.T) {
	dir := t.TempDir()
	cfg := tinyConfig(t)
	cfg.Epochs = 3
	cfg.Scheduler = SchedulerWarmup
	cfg.WarmupSteps = 20
	cfg.Checkpoint = filepath.Join(dir, "continuous.born")
	data, err := LoadData(cfg)
	require.NoError(t, err)

	continuous, err := NewTrainer(cfg, cpu.New(), quiet())
	require.NoError(t, err)
	full, err := continuous.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)
	require.Len(t, full, 3)

	short := cfg
	short.Epochs = 2
	short.Checkpoint = filepath.Join(dir, "interrupted.born")
	first, err := NewTrainer(short, cpu.New(), quiet())
	require.NoError(t, err)
	_, err = first.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)

	resumedCfg := cfg
	resumedCfg.Checkpoint = short.Checkpoint
	resumed, err := NewTrainer(resumedCfg, cpu.New(), quiet())
	require.NoError(t, err)
	require.NoError(t, resumed.Resume(short.Checkpoint))
	from := resumed.Epoch()
	require.GreaterOrEqual(t, from, 1)
	assert.Equal(t, full[from-1].LR, resumed.Optimizer().GetLR(), "rate restored at epoch %d", from)

	rest, err := resumed.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)
	require.Len(t, rest, 3-from)
	for i, res := range rest {
		want := full[from+i]
		assert.Equal(t, want.Epoch, res.Epoch)
		assert.Equal(t, want.LR, res.LR, "epoch %d", res.Epoch)
		assert.InDelta(t, want.Val.Loss, res.Val.Loss, 1e-3, "epoch %d", res.Epoch)
	}
}

func TestTrainer_LoadWeightsIgnoresOptimizerKind(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 1
	cfg.Optimizer = "sgd"
	cfg.Checkpoint = filepath.Join(t.TempDir(), "sgd.born")
	data, err := LoadData(cfg)
	require.NoError(t, err)

	sgd, err := NewTrainer(cfg, cpu.New(), quiet())
	require.NoError(t, err)
	history, err := sgd.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)

	evalCfg := cfg
	evalCfg.Optimizer = DefaultConfig().Optimizer
	eval, err := NewTrainer(evalCfg, cpu.New(), quiet())
	require.NoError(t, err)
	assert.Error(t, eval.Resume(cfg.Checkpoint), "adam cannot take sgd buffers")

	ckpt, err := eval.LoadWeights(cfg.Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 1, ckpt.Epoch)
	m, err := eval.Evaluate(context.Background(), data.Val)
	require.NoError(t, err)
	assert.InDelta(t, history[0].Val.Loss, m.Loss, 1e-5)
}

func TestTrainer_Canceled(t *testing.T) {
	cfg := tinyConfig(t)
	data, err := LoadData(cfg)
	require.NoError(t, err)
	trainer, err := NewTrainer(cfg, cpu.New(), quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Fit(ctx, data.Train, data.Val)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainer_RejectsMismatchedDataset(t *testing.T) {
	cfg := tinyConfig(t)
	data, err := LoadData(cfg)
	require.NoError(t, err)

	cfg.Model.NumClasses = 5
	trainer, err := NewTrainer(cfg, cpu.New(), quiet())
	require.NoError(t, err)
	_, err = trainer.Fit(context.Background(), data.Train, data.Val)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
