package nn

import (
	"github.com/born-ml/vit/internal/tensor"
)

// Parameter is a trainable tensor with a stable dotted name such as
// "encoder.blocks.0.attn.q.weight".
//
// Names start local ("weight") and containers prefix them once at
// construction, so the full name reflects the module path.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
}

// NewParameter creates a named parameter around an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the full dotted name.
func (p *Parameter[B]) Name() string { return p.name }

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

// Grad returns the last gradient set by the training loop, or nil.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] { return p.grad }

// SetGrad stores a gradient.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) { p.grad = grad }

// ZeroGrad clears the gradient.
func (p *Parameter[B]) ZeroGrad() { p.grad = nil }

// prefixParams prepends prefix + "." to every parameter name.
func prefixParams[B tensor.Backend](prefix string, params []*Parameter[B]) {
	for _, p := range params {
		p.name = prefix + "." + p.name
	}
}
