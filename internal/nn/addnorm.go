package nn

import (
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// AddNorm is the residual + normalize sub-layer: LayerNorm(input + output).
type AddNorm[B tensor.Backend] struct {
	norm *LayerNorm[B]
}

// NewAddNorm creates an AddNorm over embedDim features.
func NewAddNorm[B tensor.Backend](embedDim int, backend B) *AddNorm[B] {
	return &AddNorm[B]{norm: NewLayerNorm[B](embedDim, DefaultLayerNormEps, backend)}
}

// Forward returns LayerNorm(input + output). Both tensors must share a shape.
func (a *AddNorm[B]) Forward(input, output *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !input.Shape().Equal(output.Shape()) {
		panic("addnorm: input " + input.Shape().String() + " and output " + output.Shape().String() + " differ")
	}
	return a.norm.Forward(input.Add(output))
}

// Parameters returns gamma and beta.
func (a *AddNorm[B]) Parameters() []*Parameter[B] { return a.norm.Parameters() }

// Initialize resets the normalization to identity.
func (a *AddNorm[B]) Initialize(rng *rand.Rand) { a.norm.Initialize(rng) }

// Norm returns the inner LayerNorm.
func (a *AddNorm[B]) Norm() *LayerNorm[B] { return a.norm }
