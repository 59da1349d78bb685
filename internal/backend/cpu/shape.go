package cpu

import (
	"fmt"

	"github.com/born-ml/vit/internal/tensor"
)

// Reshape returns a copy of t with a new shape of equal element count.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	out := cpu.alloc("reshape", newShape, t.DType())
	copy(out.Data(), t.Data())
	return out
}

// Transpose permutes axes. With no axes given the order is reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	nd := len(shape)
	if len(axes) == 0 {
		axes = make([]int, nd)
		for i := range axes {
			axes[i] = nd - 1 - i
		}
	}
	if len(axes) != nd {
		panic(fmt.Sprintf("transpose: %d axes given for %dD tensor", len(axes), nd))
	}
	seen := make([]bool, nd)
	perm := make([]int, nd)
	outShape := make(tensor.Shape, nd)
	for i, ax := range axes {
		ax = shape.NormalizeDim(ax)
		if seen[ax] {
			panic(fmt.Sprintf("transpose: repeated axis in %v", axes))
		}
		seen[ax] = true
		perm[i] = ax
		outShape[i] = shape[ax]
	}

	out := cpu.alloc("transpose", outShape, t.DType())
	es := t.DType().Size()
	src, dst := t.Data(), out.Data()
	inStrides := t.Strides()

	// Walk the output in order; srcStrides[i] is the input stride of output axis i.
	srcStrides := make([]int, nd)
	for i, ax := range perm {
		srcStrides[i] = inStrides[ax]
	}
	idx := make([]int, nd)
	off := 0
	n := outShape.NumElements()
	for o := 0; o < n; o++ {
		copy(dst[o*es:(o+1)*es], src[off*es:(off+1)*es])
		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			off += srcStrides[d]
			if idx[d] < outShape[d] {
				break
			}
			off -= srcStrides[d] * idx[d]
			idx[d] = 0
		}
	}
	return out
}

// Cat concatenates tensors of equal rank along dim. All other dimensions
// and the dtype must match.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	first := tensors[0].Shape()
	dim = first.NormalizeDim(dim)
	outShape := first.Clone()
	outShape[dim] = 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) || t.DType() != tensors[0].DType() {
			panic(fmt.Sprintf("cat: incompatible tensor %v (%s) with %v (%s)", s, t.DType(), first, tensors[0].DType()))
		}
		for d := range s {
			if d != dim && s[d] != first[d] {
				panic(fmt.Sprintf("cat: shape %v does not match %v outside dim %d", s, first, dim))
			}
		}
		outShape[dim] += s[dim]
	}

	out := cpu.alloc("cat", outShape, tensors[0].DType())
	es := tensors[0].DType().Size()
	outer := outShape[:dim].NumElements()
	inner := outShape[dim+1:].NumElements() * es
	dst := out.Data()
	rowBytes := outShape[dim] * inner
	pos := 0
	for _, t := range tensors {
		chunk := t.Shape()[dim] * inner
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*rowBytes+pos:o*rowBytes+pos+chunk], src[o*chunk:(o+1)*chunk])
		}
		pos += chunk
	}
	return out
}

// Narrow copies the slice [start, start+length) of dim.
func (cpu *CPUBackend) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := t.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dim %d of %v", start, start+length, dim, shape))
	}
	outShape := shape.Clone()
	outShape[dim] = length
	out := cpu.alloc("narrow", outShape, t.DType())

	es := t.DType().Size()
	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements() * es
	src, dst := t.Data(), out.Data()
	srcRow, dstRow := shape[dim]*inner, length*inner
	for o := 0; o < outer; o++ {
		copy(dst[o*dstRow:(o+1)*dstRow], src[o*srcRow+start*inner:o*srcRow+(start+length)*inner])
	}
	return out
}

// Expand broadcasts t to shape; only size-1 or missing leading dimensions
// may grow.
func (cpu *CPUBackend) Expand(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	bs, err := tensor.BroadcastShapes(t.Shape(), shape)
	if err != nil || !bs.Equal(shape) {
		panic(fmt.Sprintf("expand: cannot expand %v to %v", t.Shape(), shape))
	}
	out := cpu.alloc("expand", shape, t.DType())
	es := t.DType().Size()
	src, dst := t.Data(), out.Data()
	forEachBroadcast(shape, t.Shape(), t.Shape(), func(o, i, _ int) {
		copy(dst[o*es:(o+1)*es], src[i*es:(i+1)*es])
	})
	return out
}
