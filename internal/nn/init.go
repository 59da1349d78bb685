package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// Initialization constants used by the vision transformer.
const (
	// WeightStd is the standard deviation of the normal draw for linear and
	// convolution weights. Near-zero weights keep the early attention
	// scores small.
	WeightStd = 0.001

	// TokenStd is the standard deviation of the truncated normal draw for
	// the class token and the positional table.
	TokenStd = 0.02

	// Truncation bounds for TokenStd draws. They are absolute values, not
	// multiples of the standard deviation.
	truncLow  = -2.0
	truncHigh = 2.0
)

// fillNormal overwrites p with N(0, std²) samples.
func fillNormal[B tensor.Backend](p *Parameter[B], std float64, rng *rand.Rand) {
	data := p.Tensor().Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
}

// fillTruncNormal overwrites p with N(0, std²) samples restricted to [lo, hi].
func fillTruncNormal[B tensor.Backend](p *Parameter[B], std, lo, hi float64, rng *rand.Rand) {
	data := p.Tensor().Data()
	for i := range data {
		v := rng.NormFloat64() * std
		for v < lo || v > hi {
			v = rng.NormFloat64() * std
		}
		data[i] = float32(v)
	}
}

// fillUniform overwrites p with U(-bound, bound) samples.
func fillUniform[B tensor.Backend](p *Parameter[B], bound float64, rng *rand.Rand) {
	data := p.Tensor().Data()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// fillConst overwrites p with a constant.
func fillConst[B tensor.Backend](p *Parameter[B], v float32) {
	data := p.Tensor().Data()
	for i := range data {
		data[i] = v
	}
}

// fanInBound is the default bias bound 1/sqrt(fanIn).
func fanInBound(fanIn int) float64 {
	return 1 / math.Sqrt(float64(fanIn))
}

// SinusoidalTable fills a [1, length, dim] table with the fixed sin/cos
// encoding: even columns sin(pos * w_i), odd columns cos(pos * w_i) with
// w_i = exp(-2i * ln(10000) / dim).
func SinusoidalTable(length, dim int) []float32 {
	out := make([]float32, length*dim)
	for pos := 0; pos < length; pos++ {
		row := out[pos*dim : (pos+1)*dim]
		for c := 0; c < dim; c += 2 {
			w := math.Exp(float64(c) * -math.Log(10000) / float64(dim))
			row[c] = float32(math.Sin(float64(pos) * w))
			if c+1 < dim {
				row[c+1] = float32(math.Cos(float64(pos) * w))
			}
		}
	}
	return out
}
