package ops

import "github.com/born-ml/vit/internal/tensor"

// MatMulOp is output = a @ b for 2D a and b.
//
// Backward:
//   - dA = outputGrad @ Bᵀ
//   - dB = Aᵀ @ outputGrad
type MatMulOp struct{ node }

// NewMatMulOp records a matrix product.
func NewMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{newNode(output, a, b)}
}

// Backward computes both operand gradients.
func (op *MatMulOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.MatMul(g, backend.Transpose(b, 1, 0)),
		backend.MatMul(backend.Transpose(a, 1, 0), g),
	}
}

// BatchMatMulOp is output = a @ b over the trailing two axes of 3D/4D
// tensors. Backward mirrors MatMulOp with the last two axes swapped.
type BatchMatMulOp struct{ node }

// NewBatchMatMulOp records a batched matrix product.
func NewBatchMatMulOp(a, b, output *tensor.RawTensor) *BatchMatMulOp {
	return &BatchMatMulOp{newNode(output, a, b)}
}

// Backward computes both operand gradients.
func (op *BatchMatMulOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.BatchMatMul(g, swapLast(b, backend)),
		backend.BatchMatMul(swapLast(a, backend), g),
	}
}

func swapLast(t *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	nd := len(t.Shape())
	axes := make([]int, nd)
	for i := range axes {
		axes[i] = i
	}
	axes[nd-2], axes[nd-1] = axes[nd-1], axes[nd-2]
	return backend.Transpose(t, axes...)
}
