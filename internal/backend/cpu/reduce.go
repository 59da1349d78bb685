package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/vit/internal/parallel"
	"github.com/born-ml/vit/internal/tensor"
)

// splitAxis describes a tensor as [outer, size, inner] around one axis.
func splitAxis(shape tensor.Shape, dim int) (outer, size, inner int) {
	return shape[:dim].NumElements(), shape[dim], shape[dim+1:].NumElements()
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	return append(out, shape[dim+1:]...)
}

// Softmax computes a numerically stable softmax along dim.
// Rows are independent and run in parallel.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("softmax", x)
	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}
	dim = shape.NormalizeDim(dim)
	outer, size, inner := splitAxis(shape, dim)
	out := cpu.alloc("softmax", shape, tensor.Float32)
	src, dst := x.AsFloat32(), out.AsFloat32()

	parallel.For(outer*inner, func(r int) {
		o, i := r/inner, r%inner
		base := o*size*inner + i
		maxVal := float32(math.Inf(-1))
		for j := 0; j < size; j++ {
			maxVal = max(maxVal, src[base+j*inner])
		}
		var sum float64
		for j := 0; j < size; j++ {
			e := math.Exp(float64(src[base+j*inner] - maxVal))
			dst[base+j*inner] = float32(e)
			sum += e
		}
		inv := float32(1 / sum)
		for j := 0; j < size; j++ {
			dst[base+j*inner] *= inv
		}
	}, cpu.par)
	return out
}

// Sum reduces all elements to a scalar (shape []).
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("sum", x)
	out := cpu.alloc("sum", tensor.Shape{}, tensor.Float32)
	var acc float64
	for _, v := range x.AsFloat32() {
		acc += float64(v)
	}
	out.AsFloat32()[0] = float32(acc)
	return out
}

// SumDim sums along dim.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sumDim", x, dim, keepDim, 1)
}

// MeanDim averages along dim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("meanDim: scalar input")
	}
	d := shape.NormalizeDim(dim)
	return cpu.reduceDim("meanDim", x, dim, keepDim, 1/float64(shape[d]))
}

func (cpu *CPUBackend) reduceDim(op string, x *tensor.RawTensor, dim int, keepDim bool, scale float64) *tensor.RawTensor {
	requireFloat32(op, x)
	shape := x.Shape()
	if len(shape) == 0 {
		panic(fmt.Sprintf("%s: scalar input", op))
	}
	dim = shape.NormalizeDim(dim)
	outer, size, inner := splitAxis(shape, dim)
	out := cpu.alloc(op, reducedShape(shape, dim, keepDim), tensor.Float32)
	src, dst := x.AsFloat32(), out.AsFloat32()
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var acc float64
			base := o*size*inner + i
			for j := 0; j < size; j++ {
				acc += float64(src[base+j*inner])
			}
			dst[o*inner+i] = float32(acc * scale)
		}
	}
	return out
}

// Argmax returns int32 indices of the maximum along dim; dim is removed.
// Ties resolve to the lowest index.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("argmax", x)
	shape := x.Shape()
	if len(shape) == 0 {
		panic("argmax: scalar input")
	}
	dim = shape.NormalizeDim(dim)
	outer, size, inner := splitAxis(shape, dim)
	out := cpu.alloc("argmax", reducedShape(shape, dim, false), tensor.Int32)
	src, dst := x.AsFloat32(), out.AsInt32()
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*size*inner + i
			best := 0
			for j := 1; j < size; j++ {
				if src[base+j*inner] > src[base+best*inner] {
					best = j
				}
			}
			dst[o*inner+i] = int32(best) //nolint:gosec // bounded by tensor dimension
		}
	}
	return out
}
