package nn

import "github.com/born-ml/vit/internal/tensor"

// GELU is the Gaussian error linear unit, x * Φ(x), in its exact erf form.
type GELU[B tensor.Backend] struct{}

// NewGELU creates a GELU activation.
func NewGELU[B tensor.Backend]() *GELU[B] { return &GELU[B]{} }

// Forward applies GELU element-wise.
func (g *GELU[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.GELU()
}

// Parameters returns nil.
func (g *GELU[B]) Parameters() []*Parameter[B] { return nil }

// Tanh squashes values into (-1, 1).
type Tanh[B tensor.Backend] struct{}

// NewTanh creates a Tanh activation.
func NewTanh[B tensor.Backend]() *Tanh[B] { return &Tanh[B]{} }

// Forward applies tanh element-wise.
func (t *Tanh[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.Tanh()
}

// Parameters returns nil.
func (t *Tanh[B]) Parameters() []*Parameter[B] { return nil }
