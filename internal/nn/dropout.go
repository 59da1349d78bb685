package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// Dropout zeroes each element with probability p during training and scales
// the survivors by 1/(1-p). In evaluation mode it returns its input
// unchanged.
//
// Layers of one model share a single *rand.Rand, so a fixed seed reproduces
// the same masks. Forward is not safe for concurrent use.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
	rng      *rand.Rand
	backend  B
}

// NewDropout creates a dropout layer in training mode.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand, backend B) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p, training: true, rng: rng, backend: backend}
}

// Forward applies the dropout mask.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return x
	}
	scale := 1 / (1 - d.p)
	mask := tensor.Zeros[float32](x.Shape(), d.backend)
	data := mask.Data()
	for i := range data {
		if d.rng.Float32() >= d.p {
			data[i] = scale
		}
	}
	return x.Mul(mask)
}

// Parameters returns nil; dropout has no weights.
func (d *Dropout[B]) Parameters() []*Parameter[B] { return nil }

// SetTraining switches between training and evaluation behavior.
func (d *Dropout[B]) SetTraining(training bool) { d.training = training }

// Training reports the current mode.
func (d *Dropout[B]) Training() bool { return d.training }

// P returns the drop probability.
func (d *Dropout[B]) P() float32 { return d.p }
