package nn

import (
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// FFN is the position-wise feed-forward sub-layer: Linear -> GELU -> Linear.
// Each token is transformed independently.
type FFN[B tensor.Backend] struct {
	fc1  *Linear[B]
	act  *GELU[B]
	fc2  *Linear[B]
	dim  int
	dFFN int
}

// NewFFN creates an embed -> dFFN -> embed feed-forward layer.
func NewFFN[B tensor.Backend](embedDim, dFFN int, backend B) *FFN[B] {
	f := &FFN[B]{
		fc1:  NewLinear[B](embedDim, dFFN, backend),
		act:  NewGELU[B](),
		fc2:  NewLinear[B](dFFN, embedDim, backend),
		dim:  embedDim,
		dFFN: dFFN,
	}
	prefixParams("fc1", f.fc1.Parameters())
	prefixParams("fc2", f.fc2.Parameters())
	return f
}

// Forward maps [..., embed] to [..., embed].
func (f *FFN[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return f.fc2.Forward(f.act.Forward(f.fc1.Forward(x)))
}

// Parameters returns fc1 then fc2 parameters.
func (f *FFN[B]) Parameters() []*Parameter[B] {
	return append(f.fc1.Parameters(), f.fc2.Parameters()...)
}

// Initialize initializes fc1, then fc2.
func (f *FFN[B]) Initialize(rng *rand.Rand) {
	f.fc1.Initialize(rng)
	f.fc2.Initialize(rng)
}
