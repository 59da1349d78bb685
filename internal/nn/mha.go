package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// MHAConfig configures a MultiHeadAttention layer.
type MHAConfig struct {
	EmbedDim int  // model width, split evenly across heads
	NumHeads int  // number of attention heads
	Causal   bool // restrict each token to itself and earlier tokens
}

// Validate checks that the width splits evenly into heads.
func (c MHAConfig) Validate() error {
	if c.EmbedDim <= 0 || c.NumHeads <= 0 {
		return fmt.Errorf("%w: embed dim %d, heads %d must be positive", ErrInvalidConfig, c.EmbedDim, c.NumHeads)
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return fmt.Errorf("%w: embed dim %d, heads %d", ErrHeadsNotDivisible, c.EmbedDim, c.NumHeads)
	}
	return nil
}

// MultiHeadAttention is self-attention over [batch, seq, embed] tokens.
//
// Q, K and V are independent embed -> embed projections. They are split into
// NumHeads heads of width EmbedDim/NumHeads, attended in one batched call,
// and the heads are concatenated back to [batch, seq, embed]. There is no
// output projection.
type MultiHeadAttention[B tensor.Backend] struct {
	cfg     MHAConfig
	headDim int
	q       *Linear[B]
	k       *Linear[B]
	v       *Linear[B]
}

// NewMultiHeadAttention creates a multi-head self-attention layer.
//
// Parameters:
//   - cfg: EmbedDim must be divisible by NumHeads; Causal masks future tokens
//   - backend: computation backend
//
// The Q, K and V projections are EmbedDim x EmbedDim linear layers.
// Each head attends over EmbedDim/NumHeads features.
//
// Returns ErrHeadsNotDivisible when EmbedDim is not a multiple of NumHeads.
//
// Example:
//
//	mha, err := nn.NewMultiHeadAttention(nn.MHAConfig{EmbedDim: 128, NumHeads: 8}, backend)
//	if err != nil {
//	    return err
//	}
//	out := mha.Forward(x) // x: [batch, seq, 128] -> [batch, seq, 128]
func NewMultiHeadAttention[B tensor.Backend](cfg MHAConfig, backend B) (*MultiHeadAttention[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("multi-head attention: %w", err)
	}
	m := &MultiHeadAttention[B]{
		cfg:     cfg,
		headDim: cfg.EmbedDim / cfg.NumHeads,
		q:       NewLinear[B](cfg.EmbedDim, cfg.EmbedDim, backend),
		k:       NewLinear[B](cfg.EmbedDim, cfg.EmbedDim, backend),
		v:       NewLinear[B](cfg.EmbedDim, cfg.EmbedDim, backend),
	}
	prefixParams("q", m.q.Parameters())
	prefixParams("k", m.k.Parameters())
	prefixParams("v", m.v.Parameters())
	return m, nil
}

// Forward attends x [batch, seq, embed] to itself and returns the same shape.
func (m *MultiHeadAttention[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, _ := m.ForwardWithWeights(x, nil)
	return out
}

// ForwardWithWeights is Forward with an optional explicit Bool mask
// (broadcastable to [batch, heads, seq, seq]) that also returns the attention
// weights.
func (m *MultiHeadAttention[B]) ForwardWithWeights(
	x *tensor.Tensor[float32, B],
	mask *tensor.RawTensor,
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != m.cfg.EmbedDim {
		panic(fmt.Sprintf("multi-head attention: expected [batch, seq, %d], got %v", m.cfg.EmbedDim, shape))
	}
	batch, seq := shape[0], shape[1]

	q := m.splitHeads(m.q.Forward(x), batch, seq)
	k := m.splitHeads(m.k.Forward(x), batch, seq)
	v := m.splitHeads(m.v.Forward(x), batch, seq)

	out, weights := ScaledDotProductAttention(q, k, v, AttentionOptions{Causal: m.cfg.Causal, Mask: mask})

	out = out.Transpose(0, 2, 1, 3).Reshape(batch, seq, m.cfg.EmbedDim)
	return out, weights
}

// splitHeads turns [batch, seq, embed] into [batch, heads, seq, head_dim].
func (m *MultiHeadAttention[B]) splitHeads(t *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	return t.Reshape(batch, seq, m.cfg.NumHeads, m.headDim).Transpose(0, 2, 1, 3)
}

// Parameters returns q, k, v weights and biases in that order.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 6)
	params = append(params, m.q.Parameters()...)
	params = append(params, m.k.Parameters()...)
	return append(params, m.v.Parameters()...)
}

// Initialize initializes q, then k, then v.
func (m *MultiHeadAttention[B]) Initialize(rng *rand.Rand) {
	m.q.Initialize(rng)
	m.k.Initialize(rng)
	m.v.Initialize(rng)
}

// Config returns the layer configuration.
func (m *MultiHeadAttention[B]) Config() MHAConfig { return m.cfg }

// HeadDim returns EmbedDim / NumHeads.
func (m *MultiHeadAttention[B]) HeadDim() int { return m.headDim }
