package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/vit/internal/tensor"
)

// Add performs element-wise addition with broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return cpu.unary("mul_scalar", x, func(v float32) float32 { return v * s })
}

// AddScalar adds s to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return cpu.unary("add_scalar", x, func(v float32) float32 { return v + s })
}

// Exp computes e^x.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes the natural logarithm.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("log", x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// Sqrt computes the square root.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x, func(v float32) float32 { return float32(math.Sqrt(float64(v))) })
}

// Rsqrt computes 1/sqrt(x).
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("rsqrt", x, func(v float32) float32 { return float32(1 / math.Sqrt(float64(v))) })
}

// Tanh computes the hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// GELU computes x * Φ(x) with the exact erf formulation.
func (cpu *CPUBackend) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("gelu", x, GELUScalar)
}

// GELUScalar is the scalar form of GELU.
func GELUScalar(v float32) float32 {
	x := float64(v)
	return float32(0.5 * x * (1 + math.Erf(x/math.Sqrt2)))
}

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	requireFloat32(op, x)
	out := cpu.alloc(op, x.Shape(), tensor.Float32)
	src, dst := x.AsFloat32(), out.AsFloat32()
	for i, v := range src {
		dst[i] = f(v)
	}
	return out
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	requireFloat32(op, a, b)
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	out := cpu.alloc(op, outShape, tensor.Float32)
	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()

	if a.Shape().Equal(b.Shape()) {
		for i := range od {
			od[i] = f(ad[i], bd[i])
		}
		return out
	}
	if b.NumElements() == 1 {
		s := bd[0]
		for i := range od {
			od[i] = f(ad[i%len(ad)], s)
		}
		return out
	}

	forEachBroadcast(outShape, a.Shape(), b.Shape(), func(o, ia, ib int) {
		od[o] = f(ad[ia], bd[ib])
	})
	return out
}

// forEachBroadcast walks outShape in row-major order and reports the flat
// output index together with the matching flat indices of two inputs.
func forEachBroadcast(outShape, aShape, bShape tensor.Shape, visit func(o, ia, ib int)) {
	sa := tensor.BroadcastStrides(aShape, outShape)
	sb := tensor.BroadcastStrides(bShape, outShape)
	nd := len(outShape)
	idx := make([]int, nd)
	ia, ib := 0, 0
	n := outShape.NumElements()
	for o := 0; o < n; o++ {
		visit(o, ia, ib)
		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			ia += sa[d]
			ib += sb[d]
			if idx[d] < outShape[d] {
				break
			}
			ia -= sa[d] * idx[d]
			ib -= sb[d] * idx[d]
			idx[d] = 0
		}
	}
}
