package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/backend/webgpu"
	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/internal/serialization"
	"github.com/born-ml/vit/internal/tensor"
	"github.com/born-ml/vit/internal/train"
)

func trainCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	var (
		logs       logFlags
		configPath = fs.String("config", "", "YAML run configuration")
		resume     = fs.String("resume", "", "checkpoint to resume from")
		o          overrides
	)
	logs.register(fs)
	o.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := logs.setup()
	if err != nil {
		return err
	}

	cfg := train.DefaultConfig()
	if *configPath != "" {
		if cfg, err = train.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	o.apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := train.LoadData(cfg)
	if err != nil {
		return fmt.Errorf("load %s: %w", cfg.Dataset, err)
	}
	logger.Info("data loaded",
		"dataset", cfg.Dataset,
		"train", data.Train.Len(),
		"val", data.Val.Len())

	if cfg.Device == "webgpu" {
		gpu, err := webgpu.New()
		if err == nil {
			defer gpu.Release()
			return runTrain(ctx, cfg, gpu, data, *resume, logger)
		}
		logger.Warn("falling back to cpu", "err", err)
	}
	return runTrain(ctx, cfg, cpu.New(), data, *resume, logger)
}

func runTrain[I tensor.Backend](ctx context.Context, cfg train.Config, inner I, data train.Data, resume string, logger *slog.Logger) error {
	trainer, err := train.NewTrainer(cfg, inner, train.WithLogger(logger))
	if err != nil {
		return err
	}
	if resume != "" {
		if err := trainer.Resume(resume); err != nil {
			return err
		}
	}

	history, err := trainer.Fit(ctx, data.Train, data.Val)
	if err != nil {
		return err
	}
	if best, ok := history.Best(); ok {
		logger.Info("training finished",
			"best_epoch", best.Epoch,
			"val_loss", best.Val.Loss,
			"val_acc", best.Val.Accuracy,
			"checkpoint", cfg.Checkpoint)
		fmt.Print(best.Val.Confusion)
	}

	if data.Test != nil {
		m, err := trainer.Evaluate(ctx, data.Test)
		if err != nil {
			return err
		}
		logger.Info("test", "loss", m.Loss, "acc", m.Accuracy, "samples", m.Samples)
	}
	return nil
}

func evalCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	var (
		logs logFlags
		o    overrides
	)
	logs.register(fs)
	o.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := logs.setup()
	if err != nil {
		return err
	}

	cfg := train.DefaultConfig()
	o.apply(fs, &cfg)
	m, err := evaluateCheckpoint(ctx, cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("loss %.4f  accuracy %.4f  samples %d\n\n", m.Loss, m.Accuracy, m.Samples)
	fmt.Print(m.Confusion)
	return nil
}

// evaluateCheckpoint scores the weights at cfg.Checkpoint on the test split,
// or on the validation split when the dataset has no test split. The model
// shape comes from the checkpoint; optimizer state is not read, so
// checkpoints from any optimizer evaluate the same way.
func evaluateCheckpoint(ctx context.Context, cfg train.Config, logger *slog.Logger) (train.Metrics, error) {
	var err error
	if cfg.Model, err = nn.ReadConfig(cfg.Checkpoint); err != nil {
		return train.Metrics{}, err
	}
	if err := cfg.Validate(); err != nil {
		return train.Metrics{}, err
	}

	data, err := train.LoadData(cfg)
	if err != nil {
		return train.Metrics{}, err
	}
	ds := data.Val
	if data.Test != nil {
		ds = data.Test
	}

	trainer, err := train.NewTrainer(cfg, cpu.New(), train.WithLogger(logger))
	if err != nil {
		return train.Metrics{}, err
	}
	if _, err := trainer.LoadWeights(cfg.Checkpoint); err != nil {
		return train.Metrics{}, err
	}
	return trainer.Evaluate(ctx, ds)
}

func infoCmd(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	path := fs.String("checkpoint", train.DefaultConfig().Checkpoint, "checkpoint file")
	tensors := fs.Bool("tensors", false, "list every tensor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := serialization.ReadHeader(*path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "file\t%s\n", *path)
	fmt.Fprintf(w, "format\tv%d (%s)\n", h.FormatVersion, h.Producer)
	fmt.Fprintf(w, "model\t%s\n", h.ModelType)
	fmt.Fprintf(w, "created\t%s\n", h.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	var params, optTensors int
	for _, t := range h.Tensors {
		if strings.HasPrefix(t.Name, "optimizer.") {
			optTensors++
			continue
		}
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		params += n
	}
	fmt.Fprintf(w, "parameters\t%d\n", params)
	fmt.Fprintf(w, "optimizer tensors\t%d\n", optTensors)

	if c := h.Checkpoint; c != nil {
		fmt.Fprintf(w, "run\t%s\n", c.RunID)
		fmt.Fprintf(w, "epoch\t%d (step %d)\n", c.Epoch, c.Step)
		fmt.Fprintf(w, "val loss\t%.4f\n", c.Loss)
		fmt.Fprintf(w, "val accuracy\t%.4f\n", c.Accuracy)
		if c.OptimizerType != "" {
			fmt.Fprintf(w, "optimizer\t%s lr=%g\n", c.OptimizerType, c.OptimizerConfig["lr"])
		}
	}
	for k, v := range h.Metadata {
		fmt.Fprintf(w, "meta %s\t%s\n", k, v)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(h.Config) > 0 {
		var cfg nn.ViTConfig
		if err := json.Unmarshal(h.Config, &cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		out, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Printf("\nconfig:\n%s\n", out)
	}

	if *tensors {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, t := range h.Tensors {
			fmt.Fprintf(w, "%s\t%s\t%v\n", t.Name, t.DType, t.Shape)
		}
		return w.Flush()
	}
	return nil
}

// overrides are flags that replace fields of the run configuration when
// given explicitly.
type overrides struct {
	dataset    string
	dataDir    string
	epochs     int
	batchSize  int
	lr         float64
	device     string
	checkpoint string
	seed       int64
	scheduler  string
	augment    bool
}

func (o *overrides) register(fs *flag.FlagSet) {
	def := train.DefaultConfig()
	fs.StringVar(&o.dataset, "dataset", def.Dataset, "dataset: cifar10, mnist or synthetic")
	fs.StringVar(&o.dataDir, "data-dir", def.DataDir, "dataset directory")
	fs.IntVar(&o.epochs, "epochs", def.Epochs, "training epochs")
	fs.IntVar(&o.batchSize, "batch-size", def.BatchSize, "batch size")
	fs.Float64Var(&o.lr, "lr", def.LR, "learning rate")
	fs.StringVar(&o.device, "device", def.Device, "compute device: cpu or webgpu")
	fs.StringVar(&o.checkpoint, "checkpoint", def.Checkpoint, "checkpoint path")
	fs.Int64Var(&o.seed, "seed", def.Model.Seed, "model and shuffle seed")
	fs.StringVar(&o.scheduler, "scheduler", def.Scheduler, "lr scheduler: none, plateau or warmup")
	fs.BoolVar(&o.augment, "augment", def.Augment, "random crop and flip training images")
}

// apply copies only the flags set on the command line.
func (o *overrides) apply(fs *flag.FlagSet, cfg *train.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.Dataset = o.dataset
		case "data-dir":
			cfg.DataDir = o.dataDir
		case "epochs":
			cfg.Epochs = o.epochs
		case "batch-size":
			cfg.BatchSize = o.batchSize
		case "lr":
			cfg.LR = o.lr
		case "device":
			cfg.Device = o.device
		case "checkpoint":
			cfg.Checkpoint = o.checkpoint
		case "seed":
			cfg.Model.Seed = o.seed
		case "scheduler":
			cfg.Scheduler = o.scheduler
		case "augment":
			cfg.Augment = o.augment
		}
	})
}
