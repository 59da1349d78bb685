package ops

import (
	"math"

	"github.com/born-ml/vit/internal/tensor"
)

// ExpOp is output = e^x. Backward: g * output.
type ExpOp struct{ node }

// NewExpOp records an exponential.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp { return &ExpOp{newNode(output, x)} }

// Backward returns g * e^x.
func (op *ExpOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(g, op.output)}
}

// LogOp is output = ln(x). Backward: g / x.
type LogOp struct{ node }

// NewLogOp records a logarithm.
func NewLogOp(x, output *tensor.RawTensor) *LogOp { return &LogOp{newNode(output, x)} }

// Backward returns g / x.
func (op *LogOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(g, op.inputs[0])}
}

// SqrtOp is output = sqrt(x). Backward: g / (2*output).
type SqrtOp struct{ node }

// NewSqrtOp records a square root.
func NewSqrtOp(x, output *tensor.RawTensor) *SqrtOp { return &SqrtOp{newNode(output, x)} }

// Backward returns g * 0.5 / sqrt(x).
func (op *SqrtOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(backend.MulScalar(g, 0.5), op.output)}
}

// RsqrtOp is output = x^(-1/2). Backward: -0.5 * g * output³.
type RsqrtOp struct{ node }

// NewRsqrtOp records a reciprocal square root.
func NewRsqrtOp(x, output *tensor.RawTensor) *RsqrtOp { return &RsqrtOp{newNode(output, x)} }

// Backward returns -0.5 * g * x^(-3/2).
func (op *RsqrtOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	cube := backend.Mul(backend.Mul(y, y), y)
	return []*tensor.RawTensor{backend.MulScalar(backend.Mul(g, cube), -0.5)}
}

// TanhOp is output = tanh(x). Backward: g * (1 - output²).
type TanhOp struct{ node }

// NewTanhOp records a hyperbolic tangent.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp { return &TanhOp{newNode(output, x)} }

// Backward returns g * (1 - tanh²(x)).
func (op *TanhOp) Backward(g *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{mapFloat32(g, op.output, func(gv, y float32) float32 {
		return gv * (1 - y*y)
	})}
}

// GELUOp is output = x * Φ(x).
type GELUOp struct{ node }

// NewGELUOp records a GELU activation.
func NewGELUOp(x, output *tensor.RawTensor) *GELUOp { return &GELUOp{newNode(output, x)} }

// Backward returns g * (Φ(x) + x φ(x)).
func (op *GELUOp) Backward(g *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{mapFloat32(g, op.inputs[0], func(gv, x float32) float32 {
		return gv * geluGrad(x)
	})}
}

func geluGrad(v float32) float32 {
	x := float64(v)
	cdf := 0.5 * (1 + math.Erf(x/math.Sqrt2))
	pdf := math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
	return float32(cdf + x*pdf)
}
