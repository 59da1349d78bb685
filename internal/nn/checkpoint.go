package nn

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/born-ml/vit/internal/serialization"
	"github.com/born-ml/vit/internal/tensor"
)

// ModelType is recorded in the header of every saved ViT.
const ModelType = "ViT"

// optimizerPrefix namespaces optimizer tensors inside a checkpoint.
const optimizerPrefix = "optimizer."

// OptimizerState is an optimizer's resumable state: hyperparameters plus
// per-parameter buffers keyed by name (for Adam, "<param>.m" and "<param>.v").
type OptimizerState struct {
	Kind    string
	Step    int64
	Config  map[string]float64
	Tensors map[string]*tensor.RawTensor
}

// SchedulerState is a learning-rate schedule's resumable position, e.g.
// the update count of a warmup schedule. Values must be finite.
type SchedulerState struct {
	Kind   string
	Values map[string]float64
}

// Checkpoint is the training progress stored next to the weights.
type Checkpoint struct {
	Epoch     int
	Step      int64
	Loss      float64
	Accuracy  float64
	RunID     string
	Metadata  map[string]string
	Optimizer *OptimizerState
	Scheduler *SchedulerState
}

// SaveCheckpoint writes the model weights, its config, the checkpoint
// fields and optional optimizer state to path.
func SaveCheckpoint[B tensor.Backend](path string, model *ViT[B], ckpt Checkpoint) error {
	cfg, err := json.Marshal(model.Config())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	state := model.StateDict()
	meta := &serialization.CheckpointMeta{
		Epoch:    ckpt.Epoch,
		Step:     ckpt.Step,
		Loss:     ckpt.Loss,
		Accuracy: ckpt.Accuracy,
		RunID:    ckpt.RunID,
	}
	if opt := ckpt.Optimizer; opt != nil {
		meta.OptimizerType = opt.Kind
		meta.OptimizerConfig = make(map[string]float64, len(opt.Config)+1)
		for k, v := range opt.Config {
			meta.OptimizerConfig[k] = v
		}
		meta.OptimizerConfig["step"] = float64(opt.Step)
		for name, raw := range opt.Tensors {
			state[optimizerPrefix+name] = raw
		}
	}
	if sched := ckpt.Scheduler; sched != nil {
		meta.SchedulerType = sched.Kind
		meta.SchedulerState = sched.Values
	}

	err = serialization.WriteFile(path, state, serialization.Header{
		ModelType:  ModelType,
		Metadata:   ckpt.Metadata,
		Config:     cfg,
		Checkpoint: meta,
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores model weights from path and returns the stored
// progress. Optimizer buffers and scheduler position, if any, are returned
// in Checkpoint.Optimizer and Checkpoint.Scheduler for the caller to hand
// on; a caller that only evaluates can ignore them.
func LoadCheckpoint[B tensor.Backend](path string, model *ViT[B]) (Checkpoint, error) {
	f, err := serialization.ReadFile(path, serialization.ReaderOptions{})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if f.Header.ModelType != ModelType {
		return Checkpoint{}, fmt.Errorf("load checkpoint: model type %q, want %q", f.Header.ModelType, ModelType)
	}

	weights := make(map[string]*tensor.RawTensor, len(f.Tensors))
	optTensors := make(map[string]*tensor.RawTensor)
	for name, raw := range f.Tensors {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optTensors[rest] = raw
			continue
		}
		weights[name] = raw
	}
	if err := model.LoadStateDict(weights); err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}

	ckpt := Checkpoint{Metadata: f.Header.Metadata}
	if m := f.Header.Checkpoint; m != nil {
		ckpt.Epoch, ckpt.Step, ckpt.Loss, ckpt.Accuracy, ckpt.RunID = m.Epoch, m.Step, m.Loss, m.Accuracy, m.RunID
		if m.OptimizerType != "" {
			opt := &OptimizerState{Kind: m.OptimizerType, Config: make(map[string]float64), Tensors: optTensors}
			for k, v := range m.OptimizerConfig {
				if k == "step" {
					opt.Step = int64(v)
					continue
				}
				opt.Config[k] = v
			}
			ckpt.Optimizer = opt
		}
		if m.SchedulerType != "" {
			ckpt.Scheduler = &SchedulerState{Kind: m.SchedulerType, Values: m.SchedulerState}
		}
	}
	return ckpt, nil
}

// ReadConfig returns the model configuration stored in a checkpoint, so a
// matching model can be built before LoadCheckpoint.
func ReadConfig(path string) (ViTConfig, error) {
	h, err := serialization.ReadHeader(path)
	if err != nil {
		return ViTConfig{}, err
	}
	if len(h.Config) == 0 {
		return ViTConfig{}, fmt.Errorf("%s: no model config stored", path)
	}
	var cfg ViTConfig
	if err := json.Unmarshal(h.Config, &cfg); err != nil {
		return ViTConfig{}, fmt.Errorf("%s: decode config: %w", path, err)
	}
	return cfg, nil
}
