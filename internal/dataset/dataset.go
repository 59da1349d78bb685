// Package dataset provides image classification datasets, splits and a
// batching loader.
//
// Images are float32 in channel-major (C, H, W) order. Raw datasets scale
// pixels to [0, 1]; wrap them with Normalized to apply per-channel
// standardization.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidFormat is returned when a data file cannot be parsed.
var ErrInvalidFormat = errors.New("dataset: invalid file format")

// Sample is one labeled image.
type Sample struct {
	Image []float32
	Label int
}

// Dims describes the image layout of a dataset.
type Dims struct {
	Channels int
	Height   int
	Width    int
}

// Size returns C*H*W.
func (d Dims) Size() int { return d.Channels * d.Height * d.Width }

// Dataset is a random-access collection of samples.
type Dataset interface {
	Len() int
	Get(i int) (Sample, error)
	Dims() Dims
	Classes() []string
}

// Subset is a view of a dataset restricted to a list of indices.
type Subset struct {
	ds      Dataset
	indices []int
}

// NewSubset returns the samples of ds at indices.
func NewSubset(ds Dataset, indices []int) *Subset {
	return &Subset{ds: ds, indices: indices}
}

// Len returns the number of indices.
func (s *Subset) Len() int { return len(s.indices) }

// Get returns the i-th sample of the subset.
func (s *Subset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(s.indices) {
		return Sample{}, fmt.Errorf("subset: index %d out of range [0, %d)", i, len(s.indices))
	}
	return s.ds.Get(s.indices[i])
}

// Dims forwards to the underlying dataset.
func (s *Subset) Dims() Dims { return s.ds.Dims() }

// Classes forwards to the underlying dataset.
func (s *Subset) Classes() []string { return s.ds.Classes() }

// Indices returns the underlying indices.
func (s *Subset) Indices() []int { return s.indices }

// RandomSplit partitions ds into non-overlapping subsets. fractions must sum
// to 1; each subset gets floor(n*f) samples and the remainder is handed out
// one at a time starting from the first subset. The permutation is fully
// determined by seed.
func RandomSplit(ds Dataset, fractions []float64, seed int64) ([]*Subset, error) {
	if len(fractions) == 0 {
		return nil, errors.New("random split: no fractions")
	}
	var total float64
	for _, f := range fractions {
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("random split: fraction %v out of [0, 1]", f)
		}
		total += f
	}
	if math.Abs(total-1) > 1e-6 {
		return nil, fmt.Errorf("random split: fractions sum to %v, want 1", total)
	}

	n := ds.Len()
	lengths := make([]int, len(fractions))
	assigned := 0
	for i, f := range fractions {
		lengths[i] = int(math.Floor(float64(n) * f))
		assigned += lengths[i]
	}
	for i := 0; assigned < n; i = (i + 1) % len(lengths) {
		lengths[i]++
		assigned++
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	out := make([]*Subset, len(lengths))
	offset := 0
	for i, l := range lengths {
		out[i] = NewSubset(ds, perm[offset:offset+l])
		offset += l
	}
	return out, nil
}

// checkIndex is shared by the in-memory datasets.
func checkIndex(name string, i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%s: index %d out of range [0, %d)", name, i, n)
	}
	return nil
}
