package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// W has shape [out_features, in_features] and b has shape [out_features].
// Inputs of any rank are accepted; all leading axes are treated as batch:
//
//	[..., in_features] -> [..., out_features]
//
// Parameters start at zero. Call Initialize (directly or through the owning
// model) before use.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
}

// NewLinear creates a linear layer with bias: y = x @ W^T + b.
//
// Parameters:
//   - inFeatures: size of each input sample
//   - outFeatures: size of each output sample
//   - backend: computation backend
//
// Weights and bias start at zero until Initialize is called.
//
// Returns a new Linear layer.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", tensor.Zeros[float32](tensor.Shape{outFeatures, inFeatures}, backend)),
		bias:        NewParameter("bias", tensor.Zeros[float32](tensor.Shape{outFeatures}, backend)),
	}
}

// Forward applies the affine map to the last axis of input.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != l.inFeatures {
		panic(fmt.Sprintf("linear: expected input [..., %d], got %v", l.inFeatures, shape))
	}

	x := input
	if len(shape) != 2 {
		x = input.Reshape(-1, l.inFeatures)
	}

	out := x.MatMul(l.weight.Tensor().Transpose())
	out = out.Add(l.bias.Tensor().Reshape(1, l.outFeatures))

	if len(shape) != 2 {
		outShape := append(tensor.Shape{}, shape[:len(shape)-1]...)
		out = out.Reshape(append(outShape, l.outFeatures)...)
	}
	return out
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Initialize draws weights from N(0, WeightStd²) and biases from
// U(-1/sqrt(in), 1/sqrt(in)), in that order.
func (l *Linear[B]) Initialize(rng *rand.Rand) {
	fillNormal(l.weight, WeightStd, rng)
	fillUniform(l.bias, fanInBound(l.inFeatures), rng)
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input width.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }
