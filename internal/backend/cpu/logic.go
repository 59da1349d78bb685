package cpu

import (
	"fmt"

	"github.com/born-ml/vit/internal/tensor"
)

// NotEqual compares two float32 tensors element-wise with broadcasting.
func (cpu *CPUBackend) NotEqual(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("notEqual", a, b)
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("notEqual: %v", err))
	}
	out := cpu.alloc("notEqual", outShape, tensor.Bool)
	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsBool()
	forEachBroadcast(outShape, a.Shape(), b.Shape(), func(o, ia, ib int) {
		od[o] = ad[ia] != bd[ib]
	})
	return out
}

// And computes the logical AND of two bool tensors with broadcasting.
func (cpu *CPUBackend) And(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != tensor.Bool || b.DType() != tensor.Bool {
		panic(fmt.Sprintf("and: requires bool tensors, got %s and %s", a.DType(), b.DType()))
	}
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("and: %v", err))
	}
	out := cpu.alloc("and", outShape, tensor.Bool)
	ad, bd, od := a.AsBool(), b.AsBool(), out.AsBool()
	forEachBroadcast(outShape, a.Shape(), b.Shape(), func(o, ia, ib int) {
		od[o] = ad[ia] && bd[ib]
	})
	return out
}

// Where selects x where condition holds and y elsewhere. The three inputs
// broadcast to a common shape.
func (cpu *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	if condition.DType() != tensor.Bool {
		panic(fmt.Sprintf("where: condition must be bool, got %s", condition.DType()))
	}
	requireFloat32("where", x, y)
	xy, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}
	outShape, err := tensor.BroadcastShapes(condition.Shape(), xy)
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}
	out := cpu.alloc("where", outShape, tensor.Float32)
	cd, xd, yd, od := condition.AsBool(), x.AsFloat32(), y.AsFloat32(), out.AsFloat32()

	sy := tensor.BroadcastStrides(y.Shape(), outShape)
	yIdx := make([]int, outShape.NumElements())
	forEachFlat(outShape, sy, func(o, iy int) { yIdx[o] = iy })

	forEachBroadcast(outShape, condition.Shape(), x.Shape(), func(o, ic, ix int) {
		if cd[ic] {
			od[o] = xd[ix]
		} else {
			od[o] = yd[yIdx[o]]
		}
	})
	return out
}

// forEachFlat walks shape in row-major order with one strided input.
func forEachFlat(shape tensor.Shape, strides []int, visit func(o, i int)) {
	nd := len(shape)
	idx := make([]int, nd)
	off := 0
	n := shape.NumElements()
	for o := 0; o < n; o++ {
		visit(o, off)
		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			off += strides[d]
			if idx[d] < shape[d] {
				break
			}
			off -= strides[d] * idx[d]
			idx[d] = 0
		}
	}
}
