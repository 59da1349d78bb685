// Package train runs the vision transformer training loop: batching,
// optimization, learning-rate scheduling, validation and checkpointing.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/vit/internal/autodiff"
	"github.com/born-ml/vit/internal/dataset"
	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/internal/optim"
	"github.com/born-ml/vit/internal/tensor"
)

// ErrDiverged is returned when the training loss stops being finite.
var ErrDiverged = errors.New("train: loss is not finite")

// epochSetter is implemented by datasets with per-epoch randomness.
type epochSetter interface {
	SetEpoch(epoch int)
}

// Option configures a Trainer.
type Option func(*options)

type options struct {
	logger *slog.Logger
	runID  string
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Trainer owns a model on an autodiff backend together with its optimizer
// and scheduler.
type Trainer[I tensor.Backend] struct {
	cfg       Config
	backend   *autodiff.AutodiffBackend[I]
	model     *nn.ViT[*autodiff.AutodiffBackend[I]]
	criterion *nn.CrossEntropyLoss[*autodiff.AutodiffBackend[I]]
	optimizer optim.Optimizer
	scheduler optim.Scheduler
	logger    *slog.Logger
	runID     string

	epoch int
	step  int64
	best  float64
}

// NewTrainer builds the model for cfg on inner, wrapped for autodiff.
func NewTrainer[I tensor.Backend](cfg Config, inner I, opts ...Option) (*Trainer[I], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default(), runID: uuid.NewString()}
	for _, opt := range opts {
		opt(&o)
	}

	backend := autodiff.New(inner)
	model, err := nn.NewViT(cfg.Model, backend)
	if err != nil {
		return nil, err
	}

	t := &Trainer[I]{
		cfg:       cfg,
		backend:   backend,
		model:     model,
		criterion: nn.NewCrossEntropyLoss[*autodiff.AutodiffBackend[I]](),
		logger:    o.logger.With("run_id", o.runID),
		runID:     o.runID,
		best:      math.Inf(1),
	}

	switch cfg.Optimizer {
	case "sgd":
		t.optimizer = optim.NewSGD(model.Parameters(), optim.SGDConfig{
			LR:          float32(cfg.LR),
			Momentum:    float32(cfg.Momentum),
			WeightDecay: float32(cfg.WeightDecay),
		}, backend)
	default:
		acfg := optim.DefaultAdamConfig()
		acfg.LR = float32(cfg.LR)
		acfg.WeightDecay = float32(cfg.WeightDecay)
		t.optimizer = optim.NewAdam(model.Parameters(), acfg, backend)
	}

	switch cfg.Scheduler {
	case SchedulerPlateau:
		pcfg := optim.DefaultPlateauConfig()
		pcfg.Patience = cfg.Patience
		t.scheduler = optim.NewReduceLROnPlateau(t.optimizer, pcfg)
	case SchedulerWarmup:
		t.scheduler = optim.NewWarmupScheduler(t.optimizer, cfg.Model.EmbedDim, cfg.WarmupSteps, 0)
	}

	t.logger.Info("model created",
		"backend", backend.Name(),
		"parameters", model.NumParameters(),
		"seq_len", cfg.Model.SeqLen(),
		"optimizer", cfg.Optimizer,
		"scheduler", cfg.Scheduler)
	return t, nil
}

// Model returns the model being trained.
func (t *Trainer[I]) Model() *nn.ViT[*autodiff.AutodiffBackend[I]] { return t.model }

// Optimizer returns the optimizer.
func (t *Trainer[I]) Optimizer() optim.Optimizer { return t.optimizer }

// RunID identifies this run in logs and checkpoints.
func (t *Trainer[I]) RunID() string { return t.runID }

// Epoch returns the last completed epoch.
func (t *Trainer[I]) Epoch() int { return t.epoch }

// Resume restores weights, optimizer state, scheduler position and progress
// from a checkpoint.
func (t *Trainer[I]) Resume(path string) error {
	ckpt, err := nn.LoadCheckpoint(path, t.model)
	if err != nil {
		return err
	}
	if ckpt.Optimizer != nil {
		if err := t.optimizer.LoadState(ckpt.Optimizer); err != nil {
			return fmt.Errorf("resume %s: %w", path, err)
		}
	}
	if ckpt.Scheduler != nil && t.scheduler != nil {
		if err := t.scheduler.LoadState(ckpt.Scheduler); err != nil {
			return fmt.Errorf("resume %s: %w", path, err)
		}
	}
	t.epoch, t.step, t.best = ckpt.Epoch, ckpt.Step, ckpt.Loss
	t.logger.Info("resumed", "path", path, "epoch", t.epoch, "step", t.step, "from_run", ckpt.RunID)
	return nil
}

// LoadWeights restores only the model weights from a checkpoint, ignoring
// any optimizer or scheduler state, for evaluation. The returned Checkpoint
// describes the stored progress.
func (t *Trainer[I]) LoadWeights(path string) (nn.Checkpoint, error) {
	ckpt, err := nn.LoadCheckpoint(path, t.model)
	if err != nil {
		return nn.Checkpoint{}, err
	}
	t.logger.Info("weights loaded", "path", path, "epoch", ckpt.Epoch, "from_run", ckpt.RunID)
	return ckpt, nil
}

// Fit trains until cfg.Epochs, validating after every epoch. The checkpoint
// is rewritten whenever validation loss improves. Fit returns ctx.Err() if
// the context is canceled between batches.
func (t *Trainer[I]) Fit(ctx context.Context, train, val dataset.Dataset) (History, error) {
	if err := t.checkDataset(train); err != nil {
		return nil, err
	}
	if err := t.checkDataset(val); err != nil {
		return nil, err
	}
	loader, err := dataset.NewLoader(train, dataset.LoaderConfig{
		BatchSize: t.cfg.BatchSize,
		Shuffle:   true,
		Seed:      t.cfg.Model.Seed,
	}, t.backend)
	if err != nil {
		return nil, err
	}

	var history History
	for epoch := t.epoch + 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()
		loader.SetEpoch(epoch)
		if s, ok := train.(epochSetter); ok {
			s.SetEpoch(epoch)
		}

		loss, acc, err := t.trainEpoch(ctx, loader, epoch)
		if err != nil {
			return history, err
		}
		metrics, err := t.Evaluate(ctx, val)
		if err != nil {
			return history, err
		}
		if p, ok := t.scheduler.(*optim.ReduceLROnPlateau); ok {
			p.Step(metrics.Loss)
		}

		res := EpochResult{
			Epoch:     epoch,
			TrainLoss: loss,
			TrainAcc:  acc,
			Val:       metrics,
			LR:        t.optimizer.GetLR(),
		}
		history = append(history, res)
		t.epoch = epoch

		t.logger.Info("epoch",
			"epoch", epoch,
			"epochs", t.cfg.Epochs,
			"train_loss", loss,
			"train_acc", acc,
			"val_loss", metrics.Loss,
			"val_acc", metrics.Accuracy,
			"lr", res.LR,
			"duration", time.Since(start).Round(time.Millisecond))

		if metrics.Loss < t.best {
			t.best = metrics.Loss
			if err := t.save(metrics); err != nil {
				return history, err
			}
		}
	}
	return history, nil
}

func (t *Trainer[I]) checkDataset(ds dataset.Dataset) error {
	want := dataset.Dims{Channels: t.cfg.Model.Channels, Height: t.cfg.Model.ImageSize, Width: t.cfg.Model.ImageSize}
	if ds.Dims() != want {
		return fmt.Errorf("%w: dataset images %+v, model expects %+v", ErrInvalidConfig, ds.Dims(), want)
	}
	if n := len(ds.Classes()); n != t.cfg.Model.NumClasses {
		return fmt.Errorf("%w: dataset has %d classes, model has %d", ErrInvalidConfig, n, t.cfg.Model.NumClasses)
	}
	return nil
}

func (t *Trainer[I]) trainEpoch(ctx context.Context, loader *dataset.Loader[*autodiff.AutodiffBackend[I]], epoch int) (loss, acc float64, err error) {
	t.model.SetTraining(true)
	tape := t.backend.Tape()
	defer tape.StopRecording()

	var sumLoss float64
	var correct, seen, i int
	for batch, err := range loader.Batches() {
		if err != nil {
			return 0, 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		tape.Clear()
		tape.StartRecording()
		logits := t.model.Forward(batch.Images)
		l := t.criterion.Forward(logits, batch.Labels)
		grads := autodiff.Backward(l, t.backend)
		tape.StopRecording()
		tape.Clear()

		if w, ok := t.scheduler.(*optim.WarmupScheduler); ok {
			w.Step(0)
		}
		t.optimizer.Step(grads)
		t.step++

		lv := float64(l.Item())
		if math.IsNaN(lv) || math.IsInf(lv, 0) {
			return 0, 0, fmt.Errorf("%w at epoch %d step %d", ErrDiverged, epoch, t.step)
		}
		_, c := nn.Accuracy(logits, batch.LabelSlice())
		sumLoss += lv * float64(batch.Size)
		correct += c
		seen += batch.Size

		i++
		if t.cfg.LogInterval > 0 && i%t.cfg.LogInterval == 0 {
			t.logger.Debug("batch",
				"epoch", epoch,
				"batch", i,
				"batches", loader.NumBatches(),
				"loss", lv,
				"lr", t.optimizer.GetLR())
		}
	}
	return sumLoss / float64(seen), float64(correct) / float64(seen), nil
}

// Evaluate runs the model in eval mode over ds and reports mean loss,
// accuracy and the confusion matrix. Nothing is recorded on the tape.
func (t *Trainer[I]) Evaluate(ctx context.Context, ds dataset.Dataset) (Metrics, error) {
	wasTraining := t.model.Training()
	t.model.SetTraining(false)
	defer t.model.SetTraining(wasTraining)

	tape := t.backend.Tape()
	if tape.IsRecording() {
		tape.StopRecording()
		defer tape.StartRecording()
	}

	loader, err := dataset.NewLoader(ds, dataset.LoaderConfig{BatchSize: t.cfg.BatchSize}, t.backend)
	if err != nil {
		return Metrics{}, err
	}

	cm := NewConfusionMatrix(ds.Classes())
	var sumLoss float64
	var seen int
	for batch, err := range loader.Batches() {
		if err != nil {
			return Metrics{}, err
		}
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		logits := t.model.Forward(batch.Images)
		sumLoss += float64(t.criterion.Forward(logits, batch.Labels).Item()) * float64(batch.Size)
		cm.AddBatch(batch.LabelSlice(), logits.Argmax(-1).Data())
		seen += batch.Size
	}

	return Metrics{
		Loss:      sumLoss / float64(seen),
		Accuracy:  cm.Accuracy(),
		Samples:   seen,
		Confusion: cm,
	}, nil
}

func (t *Trainer[I]) save(metrics Metrics) error {
	path := t.cfg.Checkpoint
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	err := nn.SaveCheckpoint(path, t.model, nn.Checkpoint{
		Epoch:     t.epoch,
		Step:      t.step,
		Loss:      metrics.Loss,
		Accuracy:  metrics.Accuracy,
		RunID:     t.runID,
		Metadata:  map[string]string{"dataset": t.cfg.Dataset, "optimizer": t.cfg.Optimizer},
		Optimizer: t.optimizer.State(),
		Scheduler: t.schedulerState(),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	t.logger.Info("checkpoint saved", "path", path, "epoch", t.epoch, "val_loss", metrics.Loss)
	return nil
}

func (t *Trainer[I]) schedulerState() *nn.SchedulerState {
	if t.scheduler == nil {
		return nil
	}
	return t.scheduler.State()
}
