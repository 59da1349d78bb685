package dataset

import (
	"errors"
	"math/rand"
	"strconv"
)

// SyntheticConfig describes a generated dataset.
type SyntheticConfig struct {
	Samples    int
	Dims       Dims
	NumClasses int
	Noise      float64 // std of additive Gaussian noise
	Seed       int64
}

// Synthetic is a generated dataset for smoke runs and tests. Each class
// lights a distinct horizontal band of the image, so a model can separate
// the classes within a few steps.
type Synthetic struct {
	images  [][]float32
	labels  []int
	dims    Dims
	classes []string
}

// NewSynthetic generates cfg.Samples images with labels cycling through the
// classes. Output depends only on cfg.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Samples <= 0 || cfg.NumClasses <= 0 || cfg.Dims.Size() <= 0 {
		return nil, errors.New("synthetic: samples, classes and dims must be positive")
	}
	if cfg.NumClasses > cfg.Dims.Height {
		return nil, errors.New("synthetic: need at least one image row per class")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	s := &Synthetic{
		images:  make([][]float32, cfg.Samples),
		labels:  make([]int, cfg.Samples),
		dims:    cfg.Dims,
		classes: make([]string, cfg.NumClasses),
	}
	for c := range s.classes {
		s.classes[c] = "class_" + strconv.Itoa(c)
	}

	band := cfg.Dims.Height / cfg.NumClasses
	plane := cfg.Dims.Height * cfg.Dims.Width
	for i := range s.images {
		label := i % cfg.NumClasses
		img := make([]float32, cfg.Dims.Size())
		for ch := 0; ch < cfg.Dims.Channels; ch++ {
			for row := label * band; row < (label+1)*band; row++ {
				for col := 0; col < cfg.Dims.Width; col++ {
					img[ch*plane+row*cfg.Dims.Width+col] = 0.8
				}
			}
		}
		if cfg.Noise > 0 {
			for j := range img {
				img[j] += float32(rng.NormFloat64() * cfg.Noise)
			}
		}
		s.images[i] = img
		s.labels[i] = label
	}
	return s, nil
}

// Len returns the number of samples.
func (s *Synthetic) Len() int { return len(s.images) }

// Get returns a copy of sample i.
func (s *Synthetic) Get(i int) (Sample, error) {
	if err := checkIndex("synthetic", i, len(s.images)); err != nil {
		return Sample{}, err
	}
	img := make([]float32, len(s.images[i]))
	copy(img, s.images[i])
	return Sample{Image: img, Label: s.labels[i]}, nil
}

// Dims returns the configured layout.
func (s *Synthetic) Dims() Dims { return s.dims }

// Classes returns "class_0", "class_1", ...
func (s *Synthetic) Classes() []string { return s.classes }
