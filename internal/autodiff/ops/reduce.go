package ops

import "github.com/born-ml/vit/internal/tensor"

// SumOp reduces everything to a scalar. Backward broadcasts g.
type SumOp struct{ node }

// NewSumOp records a full sum.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{newNode(output, input)}
}

// Backward expands the scalar gradient to the input shape.
func (op *SumOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{expandGrad(g, op.inputs[0].Shape(), backend)}
}

// SumDimOp sums along dim.
type SumDimOp struct {
	node
	dim     int
	keepDim bool
}

// NewSumDimOp records a reduction along a normalized dim.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{node: newNode(output, input), dim: dim, keepDim: keepDim}
}

// Backward broadcasts g back across dim.
func (op *SumDimOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{restoreDim(g, op.inputs[0].Shape(), op.dim, op.keepDim, 1, backend)}
}

// MeanDimOp averages along dim.
type MeanDimOp struct {
	node
	dim     int
	keepDim bool
}

// NewMeanDimOp records a mean along a normalized dim.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	return &MeanDimOp{node: newNode(output, input), dim: dim, keepDim: keepDim}
}

// Backward broadcasts g/n back across dim.
func (op *MeanDimOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.inputs[0].Shape()
	scale := 1 / float32(shape[op.dim])
	return []*tensor.RawTensor{restoreDim(g, shape, op.dim, op.keepDim, scale, backend)}
}

func restoreDim(g *tensor.RawTensor, inShape tensor.Shape, dim int, keepDim bool, scale float32, backend tensor.Backend) *tensor.RawTensor {
	if !keepDim {
		kept := inShape.Clone()
		kept[dim] = 1
		g = backend.Reshape(g, kept)
	}
	if scale != 1 {
		g = backend.MulScalar(g, scale)
	}
	return backend.Expand(g, inShape)
}

func expandGrad(g *tensor.RawTensor, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if g.Shape().Equal(shape) {
		return g
	}
	ones := make(tensor.Shape, len(shape))
	for i := range ones {
		ones[i] = 1
	}
	return backend.Expand(backend.Reshape(g, ones), shape)
}
