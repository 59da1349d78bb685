package ops

import "github.com/born-ml/vit/internal/tensor"

// WhereOp is output = condition ? x : y. The condition gets no gradient.
type WhereOp struct{ node }

// NewWhereOp records a selection.
func NewWhereOp(condition, x, y, output *tensor.RawTensor) *WhereOp {
	return &WhereOp{newNode(output, condition, x, y)}
}

// Backward routes g to x where the condition held and to y elsewhere.
func (op *WhereOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	cond, x, y := op.inputs[0], op.inputs[1], op.inputs[2]
	zero := scalarLike(0, g.Device())
	gx := backend.Where(cond, g, zero)
	gy := backend.Where(cond, zero, g)
	return []*tensor.RawTensor{
		nil,
		reduceBroadcast(gx, x.Shape(), backend),
		reduceBroadcast(gy, y.Shape(), backend),
	}
}
