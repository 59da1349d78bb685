package ops

import "github.com/born-ml/vit/internal/tensor"

// ReshapeOp changes shape without moving data. Backward reshapes back.
type ReshapeOp struct{ node }

// NewReshapeOp records a reshape.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{newNode(output, input)}
}

// Backward reshapes the gradient to the input shape.
func (op *ReshapeOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(g, op.inputs[0].Shape())}
}

// TransposeOp permutes axes. Backward applies the inverse permutation.
type TransposeOp struct {
	node
	axes []int
}

// NewTransposeOp records a permutation; axes must be normalized.
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	return &TransposeOp{node: newNode(output, input), axes: append([]int(nil), axes...)}
}

// Backward applies the inverse permutation to the gradient.
func (op *TransposeOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(g, inverse...)}
}

// CatOp concatenates inputs along dim. Backward slices the gradient back.
type CatOp struct {
	node
	dim int
}

// NewCatOp records a concatenation; dim must be normalized.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{node: newNode(output, inputs...), dim: dim}
}

// Backward narrows the gradient into one slice per input.
func (op *CatOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		n := in.Shape()[op.dim]
		grads[i] = backend.Narrow(g, op.dim, start, n)
		start += n
	}
	return grads
}

// NarrowOp selects [start, start+length) of dim. Backward zero-pads.
type NarrowOp struct {
	node
	dim, start int
}

// NewNarrowOp records a slice; dim must be normalized.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{node: newNode(output, input), dim: dim, start: start}
}

// Backward places the gradient back at its offset, zeros elsewhere.
func (op *NarrowOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.inputs[0].Shape()
	length := g.Shape()[op.dim]
	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		s := inShape.Clone()
		s[op.dim] = op.start
		parts = append(parts, zeros(s, g.DType(), g.Device()))
	}
	parts = append(parts, g)
	if rest := inShape[op.dim] - op.start - length; rest > 0 {
		s := inShape.Clone()
		s[op.dim] = rest
		parts = append(parts, zeros(s, g.DType(), g.Device()))
	}
	if len(parts) == 1 {
		return []*tensor.RawTensor{g}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

// ExpandOp broadcasts the input. Backward sums over the expanded axes.
type ExpandOp struct{ node }

// NewExpandOp records a broadcast.
func NewExpandOp(input, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{newNode(output, input)}
}

// Backward reduces the gradient to the input shape.
func (op *ExpandOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceBroadcast(g, op.inputs[0].Shape(), backend)}
}
