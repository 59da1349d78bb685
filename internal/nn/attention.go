package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/vit/internal/tensor"
)

// MaskSentinel replaces masked attention scores before softmax. It is large
// and negative but finite, so a fully masked row still normalizes to a
// uniform distribution instead of NaN.
const MaskSentinel float32 = -1e9

// AttentionOptions controls masking in ScaledDotProductAttention.
type AttentionOptions struct {
	// Causal restricts row i to columns j <= i.
	Causal bool

	// Mask is an optional Bool tensor broadcastable to [batch, heads, seq, seq];
	// true means attend. Nil applies no explicit mask.
	Mask *tensor.RawTensor
}

// ScaledDotProductAttention computes
//
//	softmax(mask(Q @ K^T / sqrt(d_key))) @ V
//
// for q, k, v shaped [batch, heads, seq, d_key] and returns the output
// [batch, heads, seq, d_key] together with the attention weights
// [batch, heads, seq, seq].
//
// The mask always includes scores != 0: a score that is exactly zero is
// treated as padding and suppressed. Causal and opts.Mask are ANDed on top.
// Suppressed scores become MaskSentinel. Every (batch, head) slice is
// independent; the backend spreads them across workers.
//
// Malformed shapes panic.
func ScaledDotProductAttention[B tensor.Backend](
	q, k, v *tensor.Tensor[float32, B],
	opts AttentionOptions,
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	validateAttentionInputs(q, k, v)
	backend := q.Backend()
	dKey := q.Shape()[3]

	scores := q.BatchMatMul(k.Transpose(0, 1, 3, 2)).MulScalar(float32(1 / math.Sqrt(float64(dKey))))

	zero := tensor.Zeros[float32](tensor.Shape{1}, backend)
	mask := scores.NotEqual(zero)
	if opts.Causal {
		mask = mask.And(CausalMask(q.Shape()[2], k.Shape()[2], backend))
	}
	if opts.Mask != nil {
		mask = mask.And(tensor.New[bool](opts.Mask, backend))
	}

	fill := tensor.Full[float32](tensor.Shape{1}, MaskSentinel, backend)
	weights := tensor.Where(mask, scores, fill).Softmax(-1)

	return weights.BatchMatMul(v), weights
}

// CausalMask returns a [seqQ, seqK] bool tensor that is true where
// col <= row (lower triangle, diagonal included).
func CausalMask[B tensor.Backend](seqQ, seqK int, backend B) *tensor.Tensor[bool, B] {
	mask := tensor.Zeros[bool](tensor.Shape{seqQ, seqK}, backend)
	data := mask.Data()
	for i := 0; i < seqQ; i++ {
		for j := 0; j <= i && j < seqK; j++ {
			data[i*seqK+j] = true
		}
	}
	return mask
}

func validateAttentionInputs[B tensor.Backend](q, k, v *tensor.Tensor[float32, B]) {
	qs, ks, vs := q.Shape(), k.Shape(), v.Shape()
	if len(qs) != 4 || len(ks) != 4 || len(vs) != 4 {
		panic(fmt.Sprintf("attention: q, k, v must be 4D [batch, heads, seq, d_key], got %v, %v, %v", qs, ks, vs))
	}
	if qs[0] != ks[0] || qs[1] != ks[1] || ks[0] != vs[0] || ks[1] != vs[1] {
		panic(fmt.Sprintf("attention: batch and head axes differ: %v, %v, %v", qs, ks, vs))
	}
	if qs[3] != ks[3] {
		panic(fmt.Sprintf("attention: query d_key %d != key d_key %d", qs[3], ks[3]))
	}
	if ks[2] != vs[2] {
		panic(fmt.Sprintf("attention: key length %d != value length %d", ks[2], vs[2]))
	}
}
