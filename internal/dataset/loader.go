package dataset

import (
	"errors"
	"fmt"
	"iter"
	"math/rand"

	"github.com/born-ml/vit/internal/parallel"
	"github.com/born-ml/vit/internal/tensor"
)

// Batch is a mini-batch ready for the model.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B] // [N, C, H, W]
	Labels *tensor.Tensor[int32, B]   // [N]
	Size   int
}

// LabelSlice returns the labels as a host slice.
func (b *Batch[B]) LabelSlice() []int32 { return b.Labels.Data() }

// LoaderConfig controls batching.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	DropLast  bool  // skip a trailing partial batch
	Seed      int64 // shuffle seed
}

// Loader groups dataset samples into batches on a backend.
type Loader[B tensor.Backend] struct {
	ds      Dataset
	cfg     LoaderConfig
	rng     *rand.Rand
	backend B
}

// NewLoader creates a loader. The shuffle order changes every epoch but is
// reproducible from cfg.Seed.
func NewLoader[B tensor.Backend](ds Dataset, cfg LoaderConfig, backend B) (*Loader[B], error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.New("loader: batch size must be positive")
	}
	if ds.Len() == 0 {
		return nil, errors.New("loader: empty dataset")
	}
	return &Loader[B]{ds: ds, cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed)), backend: backend}, nil
}

// SetEpoch reseeds the shuffle from (cfg.Seed, epoch), so the order of a
// given epoch does not depend on how many epochs this loader already ran.
func (l *Loader[B]) SetEpoch(epoch int) {
	l.rng = rand.New(rand.NewSource(l.cfg.Seed*1_000_003 + int64(epoch))) //nolint:gosec // reproducible order
}

// NumBatches returns the number of batches per epoch.
func (l *Loader[B]) NumBatches() int {
	n := l.ds.Len()
	if l.cfg.DropLast {
		return n / l.cfg.BatchSize
	}
	return (n + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Dataset returns the underlying dataset.
func (l *Loader[B]) Dataset() Dataset { return l.ds }

// Batches iterates one epoch. Iteration stops at the first error.
func (l *Loader[B]) Batches() iter.Seq2[*Batch[B], error] {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	return func(yield func(*Batch[B], error) bool) {
		for b := 0; b < l.NumBatches(); b++ {
			start := b * l.cfg.BatchSize
			end := min(start+l.cfg.BatchSize, len(order))
			batch, err := l.collate(order[start:end])
			if !yield(batch, err) || err != nil {
				return
			}
		}
	}
}

// collate fetches samples concurrently and packs them into tensors.
func (l *Loader[B]) collate(indices []int) (*Batch[B], error) {
	dims := l.ds.Dims()
	size := dims.Size()
	n := len(indices)

	images := tensor.Zeros[float32](tensor.Shape{n, dims.Channels, dims.Height, dims.Width}, l.backend)
	labels := tensor.Zeros[int32](tensor.Shape{n}, l.backend)
	imgData, lblData := images.Data(), labels.Data()

	errs := make([]error, n)
	parallel.For(n, func(i int) {
		s, err := l.ds.Get(indices[i])
		if err != nil {
			errs[i] = err
			return
		}
		if len(s.Image) != size {
			errs[i] = fmt.Errorf("%w: sample %d has %d values, want %d", ErrInvalidFormat, indices[i], len(s.Image), size)
			return
		}
		copy(imgData[i*size:(i+1)*size], s.Image)
		lblData[i] = int32(s.Label)
	}, parallel.DefaultConfig())

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Batch[B]{Images: images, Labels: labels, Size: n}, nil
}
