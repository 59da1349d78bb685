package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// DefaultLayerNormEps is the variance floor used by AddNorm.
const DefaultLayerNormEps = 1e-5

// LayerNorm normalizes over the last axis:
//
//	y = gamma * (x - mean(x)) / sqrt(var(x) + eps) + beta
//
// Variance is the biased (population) variance. Gamma starts at ones and
// beta at zeros.
type LayerNorm[B tensor.Backend] struct {
	dim     int
	eps     float32
	gamma   *Parameter[B]
	beta    *Parameter[B]
	backend B
}

// NewLayerNorm creates a LayerNorm over a last axis of size dim.
func NewLayerNorm[B tensor.Backend](dim int, eps float32, backend B) *LayerNorm[B] {
	return &LayerNorm[B]{
		dim:     dim,
		eps:     eps,
		gamma:   NewParameter("gamma", tensor.Ones[float32](tensor.Shape{dim}, backend)),
		beta:    NewParameter("beta", tensor.Zeros[float32](tensor.Shape{dim}, backend)),
		backend: backend,
	}
}

// Forward normalizes x of shape [..., dim].
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != l.dim {
		panic(fmt.Sprintf("layernorm: expected input [..., %d], got %v", l.dim, shape))
	}

	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).MeanDim(-1, true)
	normalized := centered.Mul(variance.AddScalar(l.eps).Rsqrt())

	return normalized.Mul(l.gamma.Tensor()).Add(l.beta.Tensor())
}

// Parameters returns [gamma, beta].
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.gamma, l.beta}
}

// Initialize resets gamma to ones and beta to zeros. It draws nothing from rng.
func (l *LayerNorm[B]) Initialize(_ *rand.Rand) {
	fillConst(l.gamma, 1)
	fillConst(l.beta, 0)
}

// Gamma returns the scale parameter.
func (l *LayerNorm[B]) Gamma() *Parameter[B] { return l.gamma }

// Beta returns the shift parameter.
func (l *LayerNorm[B]) Beta() *Parameter[B] { return l.beta }
