package train

import (
	"fmt"

	"github.com/born-ml/vit/internal/dataset"
)

// Data holds the datasets of a run. Test is nil when the source has no
// separate held-out split.
type Data struct {
	Train dataset.Dataset
	Val   dataset.Dataset
	Test  dataset.Dataset
}

// LoadData builds normalized datasets for cfg. CIFAR-10 and MNIST validate
// on their official test files; the synthetic set is split by cfg.Splits.
func LoadData(cfg Config) (Data, error) {
	switch cfg.Dataset {
	case DatasetCIFAR10:
		train, err := dataset.LoadCIFAR10(cfg.DataDir, true)
		if err != nil {
			return Data{}, err
		}
		test, err := dataset.LoadCIFAR10(cfg.DataDir, false)
		if err != nil {
			return Data{}, err
		}
		return normalizePair(cfg, train, test, dataset.CIFAR10Normalize)

	case DatasetMNIST:
		train, err := dataset.LoadMNIST(cfg.DataDir, true)
		if err != nil {
			return Data{}, err
		}
		test, err := dataset.LoadMNIST(cfg.DataDir, false)
		if err != nil {
			return Data{}, err
		}
		return normalizePair(cfg, train, test, dataset.MNISTNormalize)

	case DatasetSynthetic:
		ds, err := dataset.NewSynthetic(dataset.SyntheticConfig{
			Samples: cfg.Samples,
			Dims: dataset.Dims{
				Channels: cfg.Model.Channels,
				Height:   cfg.Model.ImageSize,
				Width:    cfg.Model.ImageSize,
			},
			NumClasses: cfg.Model.NumClasses,
			Noise:      0.1,
			Seed:       cfg.SplitSeed,
		})
		if err != nil {
			return Data{}, err
		}
		parts, err := dataset.RandomSplit(ds, cfg.Splits, cfg.SplitSeed)
		if err != nil {
			return Data{}, err
		}
		var train dataset.Dataset = parts[0]
		if cfg.Augment {
			train = dataset.NewAugmented(train, dataset.Augmentation{HFlip: true}, cfg.SplitSeed)
		}
		return Data{Train: train, Val: parts[1], Test: parts[2]}, nil
	}
	return Data{}, fmt.Errorf("%w: unknown dataset %q", ErrInvalidConfig, cfg.Dataset)
}

func normalizePair(cfg Config, train, val dataset.Dataset, norm dataset.Normalize) (Data, error) {
	if cfg.Augment {
		train = dataset.NewAugmented(train, dataset.CIFAR10Augmentation, cfg.SplitSeed)
	}
	nTrain, err := dataset.NewNormalized(train, norm)
	if err != nil {
		return Data{}, err
	}
	nVal, err := dataset.NewNormalized(val, norm)
	if err != nil {
		return Data{}, err
	}
	return Data{Train: nTrain, Val: nVal}, nil
}
