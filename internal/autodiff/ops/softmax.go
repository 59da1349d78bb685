package ops

import "github.com/born-ml/vit/internal/tensor"

// SoftmaxOp is softmax along dim.
//
// Backward, with y = softmax(x):
//
//	dL/dx = y * (g - sum(g * y, dim))
type SoftmaxOp struct {
	node
	dim int
}

// NewSoftmaxOp records a softmax; dim must be normalized.
func NewSoftmaxOp(input, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{node: newNode(output, input), dim: dim}
}

// Backward computes the Jacobian-vector product along dim.
func (op *SoftmaxOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	dot := backend.SumDim(backend.Mul(g, y), op.dim, true)
	return []*tensor.RawTensor{backend.Mul(y, backend.Sub(g, dot))}
}
