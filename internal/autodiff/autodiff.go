// Package autodiff implements reverse-mode automatic differentiation as a
// backend decorator.
//
// AutodiffBackend[B] wraps any tensor.Backend. Every differentiable call is
// forwarded to the wrapped backend and, while the tape is recording, logged
// as an ops.Operation. Backward replays the tape in reverse.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := x.Mul(x)
//	grads := autodiff.Backward(y, backend)
//	dx := grads[x.Raw()]
package autodiff

import (
	"github.com/born-ml/vit/internal/autodiff/ops"
	"github.com/born-ml/vit/internal/tensor"
)

// AutodiffBackend wraps a Backend and records differentiable operations.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New wraps backend with gradient tracking.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{inner: backend, tape: NewGradientTape()}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape { return b.tape }

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B { return b.inner }

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string { return "Autodiff(" + b.inner.Name() + ")" }

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device { return b.inner.Device() }

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	b.tape.Record(op)
}

// Add records a + c.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Add(a, c)
	b.record(ops.NewAddOp(a, c, out))
	return out
}

// Sub records a - c.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sub(a, c)
	b.record(ops.NewSubOp(a, c, out))
	return out
}

// Mul records a * c.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Mul(a, c)
	b.record(ops.NewMulOp(a, c, out))
	return out
}

// Div records a / c.
func (b *AutodiffBackend[B]) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Div(a, c)
	b.record(ops.NewDivOp(a, c, out))
	return out
}

// MulScalar records x * s.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := b.inner.MulScalar(x, s)
	b.record(ops.NewMulScalarOp(x, out, s))
	return out
}

// AddScalar records x + s.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := b.inner.AddScalar(x, s)
	b.record(ops.NewAddScalarOp(x, out))
	return out
}

// Exp records e^x.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, out))
	return out
}

// Log records ln(x).
func (b *AutodiffBackend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Log(x)
	b.record(ops.NewLogOp(x, out))
	return out
}

// Sqrt records sqrt(x).
func (b *AutodiffBackend[B]) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sqrt(x)
	b.record(ops.NewSqrtOp(x, out))
	return out
}

// Rsqrt records 1/sqrt(x).
func (b *AutodiffBackend[B]) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Rsqrt(x)
	b.record(ops.NewRsqrtOp(x, out))
	return out
}

// Tanh records tanh(x).
func (b *AutodiffBackend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Tanh(x)
	b.record(ops.NewTanhOp(x, out))
	return out
}

// GELU records gelu(x).
func (b *AutodiffBackend[B]) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.GELU(x)
	b.record(ops.NewGELUOp(x, out))
	return out
}

// MatMul records a @ c.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.MatMul(a, c)
	b.record(ops.NewMatMulOp(a, c, out))
	return out
}

// BatchMatMul records a batched a @ c.
func (b *AutodiffBackend[B]) BatchMatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.BatchMatMul(a, c)
	b.record(ops.NewBatchMatMulOp(a, c, out))
	return out
}

// Conv2D records a convolution.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	out := b.inner.Conv2D(input, kernel, stride, padding)
	b.record(ops.NewConv2DOp(input, kernel, out, stride, padding))
	return out
}

// Conv2DInputBackward is not recorded; it only runs inside Backward.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// Conv2DKernelBackward is not recorded; it only runs inside Backward.
func (b *AutodiffBackend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, stride, padding)
}

// Reshape records a reshape. Without it, gradients of reshaped parameters
// (a conv bias viewed as [1, F, 1, 1]) would never reach the parameter.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Reshape(t, newShape)
	b.record(ops.NewReshapeOp(t, out))
	return out
}

// Transpose records an axis permutation.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	nd := len(shape)
	if len(axes) != 0 && len(axes) != nd {
		return b.inner.Transpose(t, axes...)
	}
	perm := make([]int, nd)
	for i := range perm {
		if len(axes) == 0 {
			perm[i] = nd - 1 - i
		} else {
			perm[i] = shape.NormalizeDim(axes[i])
		}
	}
	out := b.inner.Transpose(t, perm...)
	b.record(ops.NewTransposeOp(t, out, perm))
	return out
}

// Cat records a concatenation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Cat(tensors, dim)
	b.record(ops.NewCatOp(tensors, out, out.Shape().NormalizeDim(dim)))
	return out
}

// Narrow records a slice.
func (b *AutodiffBackend[B]) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	out := b.inner.Narrow(t, dim, start, length)
	b.record(ops.NewNarrowOp(t, out, t.Shape().NormalizeDim(dim), start))
	return out
}

// Expand records a broadcast.
func (b *AutodiffBackend[B]) Expand(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Expand(t, shape)
	b.record(ops.NewExpandOp(t, out))
	return out
}

// Softmax records a softmax along dim.
func (b *AutodiffBackend[B]) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Softmax(x, dim)
	b.record(ops.NewSoftmaxOp(x, out, x.Shape().NormalizeDim(dim)))
	return out
}

// Sum records a full reduction.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, out))
	return out
}

// SumDim records a reduction along dim.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	out := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, out, x.Shape().NormalizeDim(dim), keepDim))
	return out
}

// MeanDim records a mean along dim.
func (b *AutodiffBackend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	out := b.inner.MeanDim(x, dim, keepDim)
	b.record(ops.NewMeanDimOp(x, out, x.Shape().NormalizeDim(dim), keepDim))
	return out
}

// Argmax is not differentiable.
func (b *AutodiffBackend[B]) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.Argmax(x, dim)
}

// NotEqual is not differentiable.
func (b *AutodiffBackend[B]) NotEqual(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.NotEqual(a, c)
}

// And is not differentiable.
func (b *AutodiffBackend[B]) And(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.And(a, c)
}

// Where records a selection; the gradient flows to x and y only.
func (b *AutodiffBackend[B]) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Where(condition, x, y)
	b.record(ops.NewWhereOp(condition, x, y, out))
	return out
}

// CrossEntropy records the fused loss.
func (b *AutodiffBackend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.CrossEntropy(logits, targets)
	b.record(ops.NewCrossEntropyOp(logits, targets, out))
	return out
}
