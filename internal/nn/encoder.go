package nn

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/born-ml/vit/internal/tensor"
)

// EncoderConfig configures one encoder block and the stack built from it.
type EncoderConfig struct {
	EmbedDim  int
	NumHeads  int
	FFNDim    int
	NumBlocks int
	Dropout   float32
	Causal    bool
}

// Validate checks the block dimensions.
func (c EncoderConfig) Validate() error {
	if err := (MHAConfig{EmbedDim: c.EmbedDim, NumHeads: c.NumHeads}).Validate(); err != nil {
		return err
	}
	if c.FFNDim <= 0 || c.NumBlocks <= 0 {
		return fmt.Errorf("%w: ffn dim %d, blocks %d must be positive", ErrInvalidConfig, c.FFNDim, c.NumBlocks)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v not in [0, 1)", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// EncoderBlock is one transformer encoder layer (post-norm):
//
//	a  = dropout(attn(x))
//	x' = AddNorm1(a, x)
//	f  = dropout(ffn(x'))
//	y  = AddNorm2(x', f)
//
// Input and output are [batch, seq, embed].
type EncoderBlock[B tensor.Backend] struct {
	attn     *MultiHeadAttention[B]
	dropout1 *Dropout[B]
	norm1    *AddNorm[B]
	ffn      *FFN[B]
	dropout2 *Dropout[B]
	norm2    *AddNorm[B]
}

// NewEncoderBlock creates one post-norm transformer block.
//
// Parameters:
//   - cfg: block dimensions; NumBlocks is ignored here
//   - rng: drives the two dropout masks
//   - backend: computation backend
//
// Layout:
//
//	x -> MHA -> Dropout -> AddNorm(x, .) -> FFN -> Dropout -> AddNorm(., .)
func NewEncoderBlock[B tensor.Backend](cfg EncoderConfig, rng *rand.Rand, backend B) (*EncoderBlock[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("encoder block: %w", err)
	}
	attn, err := NewMultiHeadAttention[B](MHAConfig{EmbedDim: cfg.EmbedDim, NumHeads: cfg.NumHeads, Causal: cfg.Causal}, backend)
	if err != nil {
		return nil, fmt.Errorf("encoder block: %w", err)
	}
	b := &EncoderBlock[B]{
		attn:     attn,
		dropout1: NewDropout[B](cfg.Dropout, rng, backend),
		norm1:    NewAddNorm[B](cfg.EmbedDim, backend),
		ffn:      NewFFN[B](cfg.EmbedDim, cfg.FFNDim, backend),
		dropout2: NewDropout[B](cfg.Dropout, rng, backend),
		norm2:    NewAddNorm[B](cfg.EmbedDim, backend),
	}
	prefixParams("attn", b.attn.Parameters())
	prefixParams("norm1", b.norm1.Parameters())
	prefixParams("ffn", b.ffn.Parameters())
	prefixParams("norm2", b.norm2.Parameters())
	return b, nil
}

// Forward runs the block.
func (b *EncoderBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	a := b.dropout1.Forward(b.attn.Forward(x))
	x = b.norm1.Forward(a, x)

	f := b.dropout2.Forward(b.ffn.Forward(x))
	return b.norm2.Forward(x, f)
}

// Parameters returns attn, norm1, ffn, norm2 parameters in that order.
func (b *EncoderBlock[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, b.attn.Parameters()...)
	params = append(params, b.norm1.Parameters()...)
	params = append(params, b.ffn.Parameters()...)
	return append(params, b.norm2.Parameters()...)
}

// Initialize initializes attention, norm1, ffn, norm2.
func (b *EncoderBlock[B]) Initialize(rng *rand.Rand) {
	b.attn.Initialize(rng)
	b.norm1.Initialize(rng)
	b.ffn.Initialize(rng)
	b.norm2.Initialize(rng)
}

// SetTraining toggles both dropouts.
func (b *EncoderBlock[B]) SetTraining(training bool) {
	b.dropout1.SetTraining(training)
	b.dropout2.SetTraining(training)
}

// Attention returns the block's attention layer.
func (b *EncoderBlock[B]) Attention() *MultiHeadAttention[B] { return b.attn }

// Encoder applies a fixed sequence of encoder blocks. Blocks share no
// parameters and are owned by the encoder.
type Encoder[B tensor.Backend] struct {
	blocks []*EncoderBlock[B]
}

// NewEncoder creates a stack of cfg.NumBlocks encoder blocks.
//
// Parameters:
//   - cfg: shared block dimensions and the block count
//   - rng: shared by every block for dropout masks
//   - backend: computation backend
//
// Parameter names are prefixed "blocks.<i>.".
//
// Example:
//
//	cfg := nn.EncoderConfig{EmbedDim: 64, NumHeads: 4, FFNDim: 128, NumBlocks: 2}
//	enc, err := nn.NewEncoder(cfg, rng, backend)
//	y := enc.Forward(x) // shape preserved: [batch, seq, 64]
func NewEncoder[B tensor.Backend](cfg EncoderConfig, rng *rand.Rand, backend B) (*Encoder[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	e := &Encoder[B]{blocks: make([]*EncoderBlock[B], cfg.NumBlocks)}
	for i := range e.blocks {
		block, err := NewEncoderBlock[B](cfg, rng, backend)
		if err != nil {
			return nil, err
		}
		prefixParams("blocks."+strconv.Itoa(i), block.Parameters())
		e.blocks[i] = block
	}
	return e, nil
}

// Forward runs every block in order. Shape is preserved.
func (e *Encoder[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for _, block := range e.blocks {
		x = block.Forward(x)
	}
	return x
}

// Parameters returns all block parameters, block 0 first.
func (e *Encoder[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, block := range e.blocks {
		params = append(params, block.Parameters()...)
	}
	return params
}

// Initialize initializes blocks in order.
func (e *Encoder[B]) Initialize(rng *rand.Rand) {
	for _, block := range e.blocks {
		block.Initialize(rng)
	}
}

// SetTraining propagates the mode to every block.
func (e *Encoder[B]) SetTraining(training bool) {
	for _, block := range e.blocks {
		block.SetTraining(training)
	}
}

// Blocks returns the blocks in execution order.
func (e *Encoder[B]) Blocks() []*EncoderBlock[B] { return e.blocks }
