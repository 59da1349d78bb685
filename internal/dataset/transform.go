package dataset

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

// Normalize standardizes each channel: (x - Mean[c]) / Std[c].
type Normalize struct {
	Mean []float32
	Std  []float32
}

// CIFAR10Normalize holds the CIFAR-10 training-set channel statistics.
var CIFAR10Normalize = Normalize{
	Mean: []float32{0.4914, 0.4822, 0.4465},
	Std:  []float32{0.2470, 0.2435, 0.2616},
}

// MNISTNormalize holds the MNIST training-set statistics.
var MNISTNormalize = Normalize{Mean: []float32{0.1307}, Std: []float32{0.3081}}

// Validate checks the statistics against a channel count.
func (n Normalize) Validate(channels int) error {
	if len(n.Mean) != channels || len(n.Std) != channels {
		return fmt.Errorf("normalize: %d means and %d stds for %d channels", len(n.Mean), len(n.Std), channels)
	}
	for c, s := range n.Std {
		if s <= 0 {
			return fmt.Errorf("normalize: std of channel %d is %v", c, s)
		}
	}
	return nil
}

// Apply standardizes img in place. img is laid out (C, H, W).
func (n Normalize) Apply(img []float32, dims Dims) {
	plane := dims.Height * dims.Width
	for c := 0; c < dims.Channels; c++ {
		m, s := n.Mean[c], n.Std[c]
		px := img[c*plane : (c+1)*plane]
		for i := range px {
			px[i] = (px[i] - m) / s
		}
	}
}

// Normalized wraps a dataset and normalizes every image it returns.
type Normalized struct {
	Dataset
	norm Normalize
}

// NewNormalized validates norm against ds and wraps it.
func NewNormalized(ds Dataset, norm Normalize) (*Normalized, error) {
	if err := norm.Validate(ds.Dims().Channels); err != nil {
		return nil, err
	}
	return &Normalized{Dataset: ds, norm: norm}, nil
}

// Get returns sample i, normalized.
func (n *Normalized) Get(i int) (Sample, error) {
	s, err := n.Dataset.Get(i)
	if err != nil {
		return Sample{}, err
	}
	n.norm.Apply(s.Image, n.Dims())
	return s, nil
}

// Augmentation is the training-time random crop and horizontal flip.
type Augmentation struct {
	Padding int  // zero padding before cropping back to the original size
	HFlip   bool // mirror horizontally with probability 0.5
}

// CIFAR10Augmentation pads by 4 and flips.
var CIFAR10Augmentation = Augmentation{Padding: 4, HFlip: true}

// Augmented applies an Augmentation to a dataset. Each (epoch, index) pair
// draws its own random stream, so results are reproducible regardless of
// the order in which samples are fetched.
type Augmented struct {
	Dataset
	aug   Augmentation
	seed  int64
	epoch atomic.Int64
}

// NewAugmented wraps ds.
func NewAugmented(ds Dataset, aug Augmentation, seed int64) *Augmented {
	return &Augmented{Dataset: ds, aug: aug, seed: seed}
}

// SetEpoch selects the random streams used by subsequent Get calls.
func (a *Augmented) SetEpoch(epoch int) { a.epoch.Store(int64(epoch)) }

// Get returns sample i, randomly cropped and flipped.
func (a *Augmented) Get(i int) (Sample, error) {
	s, err := a.Dataset.Get(i)
	if err != nil {
		return Sample{}, err
	}
	rng := rand.New(rand.NewSource(a.seed ^ (a.epoch.Load()<<32 | int64(i))))
	dims := a.Dims()

	if p := a.aug.Padding; p > 0 {
		s.Image = crop(s.Image, dims, rng.Intn(2*p+1)-p, rng.Intn(2*p+1)-p)
	}
	if a.aug.HFlip && rng.Intn(2) == 1 {
		flip(s.Image, dims)
	}
	return s, nil
}

// crop shifts the image by (dy, dx), filling uncovered pixels with zero.
// It equals padding every side then cropping at offset (p+dy, p+dx).
func crop(img []float32, dims Dims, dy, dx int) []float32 {
	out := make([]float32, len(img))
	h, w := dims.Height, dims.Width
	for c := 0; c < dims.Channels; c++ {
		base := c * h * w
		for y := 0; y < h; y++ {
			sy := y + dy
			if sy < 0 || sy >= h {
				continue
			}
			for x := 0; x < w; x++ {
				sx := x + dx
				if sx < 0 || sx >= w {
					continue
				}
				out[base+y*w+x] = img[base+sy*w+sx]
			}
		}
	}
	return out
}

func flip(img []float32, dims Dims) {
	w := dims.Width
	for row := 0; row < dims.Channels*dims.Height; row++ {
		px := img[row*w : (row+1)*w]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			px[l], px[r] = px[r], px[l]
		}
	}
}
