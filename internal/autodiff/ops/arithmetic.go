package ops

import "github.com/born-ml/vit/internal/tensor"

// AddOp is output = a + b.
type AddOp struct{ node }

// NewAddOp records an addition.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{newNode(output, a, b)}
}

// Backward passes the gradient through, summed over broadcast dimensions.
func (op *AddOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(g, a.Shape(), backend),
		reduceBroadcast(g, b.Shape(), backend),
	}
}

// SubOp is output = a - b.
type SubOp struct{ node }

// NewSubOp records a subtraction.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{newNode(output, a, b)}
}

// Backward returns (g, -g).
func (op *SubOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(g, a.Shape(), backend),
		reduceBroadcast(backend.MulScalar(g, -1), b.Shape(), backend),
	}
}

// MulOp is output = a * b.
type MulOp struct{ node }

// NewMulOp records an element-wise product.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{newNode(output, a, b)}
}

// Backward returns (g*b, g*a).
func (op *MulOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(backend.Mul(g, b), a.Shape(), backend),
		reduceBroadcast(backend.Mul(g, a), b.Shape(), backend),
	}
}

// DivOp is output = a / b.
type DivOp struct{ node }

// NewDivOp records an element-wise quotient.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{newNode(output, a, b)}
}

// Backward returns (g/b, -g*a/b²).
func (op *DivOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := backend.Div(g, b)
	gradB := backend.MulScalar(backend.Div(backend.Mul(g, op.output), b), -1)
	return []*tensor.RawTensor{
		reduceBroadcast(gradA, a.Shape(), backend),
		reduceBroadcast(gradB, b.Shape(), backend),
	}
}

// MulScalarOp is output = x * s.
type MulScalarOp struct {
	node
	scalar float32
}

// NewMulScalarOp records a scalar product.
func NewMulScalarOp(x, output *tensor.RawTensor, s float32) *MulScalarOp {
	return &MulScalarOp{node: newNode(output, x), scalar: s}
}

// Backward returns g*s.
func (op *MulScalarOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(g, op.scalar)}
}

// AddScalarOp is output = x + s.
type AddScalarOp struct{ node }

// NewAddScalarOp records a scalar shift.
func NewAddScalarOp(x, output *tensor.RawTensor) *AddScalarOp {
	return &AddScalarOp{newNode(output, x)}
}

// Backward passes g through.
func (op *AddScalarOp) Backward(g *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{g}
}
