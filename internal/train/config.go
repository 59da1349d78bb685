package train

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/vit/internal/nn"
)

// ErrInvalidConfig is returned for an unusable run configuration.
var ErrInvalidConfig = errors.New("train: invalid config")

// Dataset names.
const (
	DatasetCIFAR10   = "cifar10"
	DatasetMNIST     = "mnist"
	DatasetSynthetic = "synthetic"
)

// Scheduler names.
const (
	SchedulerNone    = "none"
	SchedulerPlateau = "plateau"
	SchedulerWarmup  = "warmup"
)

// Config is a training run, loadable from YAML.
type Config struct {
	Model nn.ViTConfig `yaml:"model"`

	Dataset   string    `yaml:"dataset"`
	DataDir   string    `yaml:"data_dir"`
	Splits    []float64 `yaml:"splits"` // train/val/test for datasets without a test file
	SplitSeed int64     `yaml:"split_seed"`
	Augment   bool      `yaml:"augment"`
	Samples   int       `yaml:"samples"` // synthetic dataset size

	Epochs      int     `yaml:"epochs"`
	BatchSize   int     `yaml:"batch_size"`
	Optimizer   string  `yaml:"optimizer"` // adam or sgd
	LR          float64 `yaml:"lr"`
	Momentum    float64 `yaml:"momentum"`
	WeightDecay float64 `yaml:"weight_decay"`
	Scheduler   string  `yaml:"scheduler"`
	WarmupSteps int     `yaml:"warmup_steps"`
	Patience    int     `yaml:"patience"`

	Checkpoint  string `yaml:"checkpoint"`
	Device      string `yaml:"device"` // cpu or webgpu
	LogInterval int    `yaml:"log_interval"`
}

// DefaultConfig returns the CIFAR-10 run: 100 epochs of batch 64 with Adam
// at 1e-5 and no scheduler.
func DefaultConfig() Config {
	return Config{
		Model:       nn.DefaultViTConfig(),
		Dataset:     DatasetCIFAR10,
		DataDir:     "./data",
		Splits:      []float64{0.7, 0.15, 0.15},
		SplitSeed:   3,
		Samples:     512,
		Epochs:      100,
		BatchSize:   64,
		Optimizer:   "adam",
		LR:          1e-5,
		Momentum:    0.9,
		Scheduler:   SchedulerNone,
		WarmupSteps: 4000,
		Patience:    10,
		Checkpoint:  "./checkpoint/model.born",
		Device:      "cpu",
		LogInterval: 50,
	}
}

// Validate checks the run and the model configuration.
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Dataset {
	case DatasetCIFAR10, DatasetMNIST, DatasetSynthetic:
	default:
		return fmt.Errorf("%w: unknown dataset %q", ErrInvalidConfig, c.Dataset)
	}
	switch c.Optimizer {
	case "adam", "sgd":
	default:
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalidConfig, c.Optimizer)
	}
	switch c.Scheduler {
	case SchedulerNone, SchedulerPlateau, SchedulerWarmup:
	default:
		return fmt.Errorf("%w: unknown scheduler %q", ErrInvalidConfig, c.Scheduler)
	}
	switch c.Device {
	case "cpu", "webgpu":
	default:
		return fmt.Errorf("%w: unknown device %q", ErrInvalidConfig, c.Device)
	}
	if c.Epochs <= 0 || c.BatchSize <= 0 {
		return fmt.Errorf("%w: epochs %d and batch size %d must be positive", ErrInvalidConfig, c.Epochs, c.BatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("%w: lr %v must be positive", ErrInvalidConfig, c.LR)
	}
	if len(c.Splits) != 3 {
		return fmt.Errorf("%w: splits needs train, val and test fractions", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig, so omitted keys keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
