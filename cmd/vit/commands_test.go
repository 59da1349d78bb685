package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/internal/train"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvaluateCheckpoint_SGDTrained(t *testing.T) {
	cfg := train.DefaultConfig()
	cfg.Model = nn.ViTConfig{
		ImageSize:  8,
		PatchSize:  4,
		Channels:   1,
		NumClasses: 4,
		EmbedDim:   8,
		NumHeads:   2,
		NumBlocks:  1,
		FFNDim:     16,
		Seed:       5,
	}
	cfg.Dataset = train.DatasetSynthetic
	cfg.Samples = 48
	cfg.Epochs = 1
	cfg.BatchSize = 16
	cfg.Optimizer = "sgd"
	cfg.LR = 1e-2
	cfg.Checkpoint = filepath.Join(t.TempDir(), "sgd.born")

	data, err := train.LoadData(cfg)
	require.NoError(t, err)
	trainer, err := train.NewTrainer(cfg, cpu.New(), train.WithLogger(discard()))
	require.NoError(t, err)
	_, err = trainer.Fit(context.Background(), data.Train, data.Val)
	require.NoError(t, err)
	want, err := trainer.Evaluate(context.Background(), data.Test)
	require.NoError(t, err)

	// What eval builds from flags: defaults (adam) plus dataset and checkpoint.
	evalCfg := train.DefaultConfig()
	evalCfg.Dataset = cfg.Dataset
	evalCfg.Samples = cfg.Samples
	evalCfg.BatchSize = cfg.BatchSize
	evalCfg.Checkpoint = cfg.Checkpoint

	got, err := evaluateCheckpoint(context.Background(), evalCfg, discard())
	require.NoError(t, err)
	assert.Equal(t, want.Samples, got.Samples)
	assert.InDelta(t, want.Loss, got.Loss, 1e-5)
	assert.InDelta(t, want.Accuracy, got.Accuracy, 1e-9)
}

func TestEvaluateCheckpoint_MissingFile(t *testing.T) {
	cfg := train.DefaultConfig()
	cfg.Checkpoint = filepath.Join(t.TempDir(), "missing.born")

	_, err := evaluateCheckpoint(context.Background(), cfg, discard())
	assert.Error(t, err)
}
