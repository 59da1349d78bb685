package ops

import (
	"fmt"

	"github.com/born-ml/vit/internal/tensor"
)

// reduceBroadcast sums grad over the dimensions that broadcasting expanded
// so the result matches targetShape.
//
//	Forward:  a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}
	if targetShape.NumElements() == 1 {
		return backend.Reshape(backend.Sum(grad), targetShape)
	}

	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}
	for i, d := range targetShape {
		if d == 1 && result.Shape()[i] != 1 {
			result = backend.SumDim(result, i, true)
		}
	}
	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// zerosLike allocates a zero tensor with t's shape and dtype.
func zerosLike(t *tensor.RawTensor) *tensor.RawTensor {
	return zeros(t.Shape(), t.DType(), t.Device())
}

func zeros(shape tensor.Shape, dtype tensor.DataType, device tensor.Device) *tensor.RawTensor {
	r, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		panic(fmt.Sprintf("ops: failed to allocate gradient: %v", err))
	}
	return r
}

// scalarLike returns a one-element float32 tensor holding v.
func scalarLike(v float32, device tensor.Device) *tensor.RawTensor {
	r := zeros(tensor.Shape{1}, tensor.Float32, device)
	r.AsFloat32()[0] = v
	return r
}

// mapFloat32 builds a tensor shaped like a with f applied to each pair.
func mapFloat32(a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	out := zerosLike(a)
	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	for i := range od {
		od[i] = f(ad[i], bd[i])
	}
	return out
}
