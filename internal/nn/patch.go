package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// PositionalInit selects how the positional table is initialized. Either
// way the table is a trainable parameter.
type PositionalInit string

// Positional table initializations.
const (
	// PositionalLearned draws the table from a truncated normal.
	PositionalLearned PositionalInit = "learned"

	// PositionalSinusoidal starts the table from the fixed sin/cos encoding.
	PositionalSinusoidal PositionalInit = "sinusoidal"
)

// PatchEmbeddingConfig configures a PatchEmbedding.
type PatchEmbeddingConfig struct {
	ImageSize int     // side length of the square input image
	PatchSize int     // side length of one patch; must divide ImageSize
	Channels  int     // input channels
	EmbedDim  int     // token width
	Dropout   float32 // dropout probability applied to the final tokens

	// NumPositions is the positional table length. Zero derives it from the
	// image and patch sizes; any other value must match (k*k + 1).
	NumPositions int

	// PositionalInit defaults to PositionalLearned.
	PositionalInit PositionalInit
}

// GridSize returns k = ImageSize / PatchSize.
func (c PatchEmbeddingConfig) GridSize() int { return c.ImageSize / c.PatchSize }

// NumPatches returns k*k.
func (c PatchEmbeddingConfig) NumPatches() int { return c.GridSize() * c.GridSize() }

// SeqLen returns the token count including the class token, k*k + 1.
func (c PatchEmbeddingConfig) SeqLen() int { return c.NumPatches() + 1 }

// Validate checks sizes and the positional table length.
func (c PatchEmbeddingConfig) Validate() error {
	if c.ImageSize <= 0 || c.PatchSize <= 0 {
		return fmt.Errorf("%w: image size %d, patch size %d must be positive", ErrInvalidPatchSize, c.ImageSize, c.PatchSize)
	}
	if c.ImageSize%c.PatchSize != 0 {
		return fmt.Errorf("%w: image size %d is not a multiple of patch size %d", ErrInvalidPatchSize, c.ImageSize, c.PatchSize)
	}
	if c.Channels <= 0 || c.EmbedDim <= 0 {
		return fmt.Errorf("%w: channels %d, embed dim %d must be positive", ErrInvalidConfig, c.Channels, c.EmbedDim)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v not in [0, 1)", ErrInvalidConfig, c.Dropout)
	}
	if c.NumPositions != 0 && c.NumPositions != c.SeqLen() {
		return fmt.Errorf("%w: table has %d positions, %dx%d patches need %d",
			ErrPositionalMismatch, c.NumPositions, c.GridSize(), c.GridSize(), c.SeqLen())
	}
	switch c.PositionalInit {
	case "", PositionalLearned, PositionalSinusoidal:
	default:
		return fmt.Errorf("%w: unknown positional init %q", ErrInvalidConfig, c.PositionalInit)
	}
	return nil
}

// PatchEmbedding turns images into token sequences.
//
//	[B, C, H, H] --conv(k=s=patch)--> [B, E, k, k] --> [B, k*k, E]
//	prepend class token             --> [B, k*k+1, E]
//	+ positional table, dropout     --> [B, k*k+1, E]
//
// Token 0 is the class token; tokens 1.. are patches in row-major order.
type PatchEmbedding[B tensor.Backend] struct {
	cfg        PatchEmbeddingConfig
	proj       *Conv2D[B]
	classToken *Parameter[B] // [1, 1, E]
	posTable   *Parameter[B] // [1, k*k+1, E]
	dropout    *Dropout[B]
}

// NewPatchEmbedding creates the patch embedding stage of a ViT.
//
// Parameters:
//   - cfg: image, patch and embedding sizes; ImageSize must be a multiple of PatchSize
//   - rng: drives dropout masks; pass the same generator to Initialize
//   - backend: computation backend
//
// The input is cut into k*k non-overlapping patches (k = ImageSize/PatchSize),
// each projected to EmbedDim features. A learned class token is prepended and
// a positional table of length k*k+1 is added. PositionalInit defaults to
// PositionalLearned. Parameters start at zero until Initialize is called.
//
// Returns ErrInvalidPatchSize or ErrInvalidConfig.
//
// Example:
//
//	cfg := nn.PatchEmbeddingConfig{ImageSize: 28, PatchSize: 7, Channels: 1, EmbedDim: 64}
//	rng := rand.New(rand.NewSource(1))
//	pe, err := nn.NewPatchEmbedding(cfg, rng, backend)
//	pe.Initialize(rng)
//	tokens := pe.Forward(images) // [batch, 1, 28, 28] -> [batch, 17, 64]
func NewPatchEmbedding[B tensor.Backend](cfg PatchEmbeddingConfig, rng *rand.Rand, backend B) (*PatchEmbedding[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("patch embedding: %w", err)
	}
	if cfg.PositionalInit == "" {
		cfg.PositionalInit = PositionalLearned
	}
	cfg.NumPositions = cfg.SeqLen()

	p := &PatchEmbedding[B]{
		cfg:        cfg,
		proj:       NewConv2D[B](cfg.Channels, cfg.EmbedDim, cfg.PatchSize, cfg.PatchSize, 0, backend),
		classToken: NewParameter("class_token", tensor.Zeros[float32](tensor.Shape{1, 1, cfg.EmbedDim}, backend)),
		posTable:   NewParameter("pos_embedding", tensor.Zeros[float32](tensor.Shape{1, cfg.NumPositions, cfg.EmbedDim}, backend)),
		dropout:    NewDropout[B](cfg.Dropout, rng, backend),
	}
	prefixParams("proj", p.proj.Parameters())
	return p, nil
}

// Forward embeds x [batch, channels, H, H] into [batch, k*k+1, embed].
func (p *PatchEmbedding[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	p.checkInput(x.Shape())
	batch := x.Shape()[0]
	e := p.cfg.EmbedDim

	patches := p.proj.Forward(x).
		Reshape(batch, e, p.cfg.NumPatches()).
		Transpose(0, 2, 1)

	cls := p.classToken.Tensor().Expand(tensor.Shape{batch, 1, e})
	tokens := tensor.Cat([]*tensor.Tensor[float32, B]{cls, patches}, 1)

	if got := tokens.Shape()[1]; got != p.cfg.NumPositions {
		panic(fmt.Sprintf("patch embedding: %d tokens but %d positions", got, p.cfg.NumPositions))
	}
	tokens = tokens.Add(p.posTable.Tensor())
	return p.dropout.Forward(tokens)
}

func (p *PatchEmbedding[B]) checkInput(shape tensor.Shape) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("patch embedding: expected [batch, channels, H, W], got %v", shape))
	}
	if shape[1] != p.cfg.Channels {
		panic(fmt.Sprintf("patch embedding: expected %d channels, got %d", p.cfg.Channels, shape[1]))
	}
	h, w := shape[2], shape[3]
	if h != w {
		panic(fmt.Sprintf("patch embedding: image must be square, got %dx%d", h, w))
	}
	if h%p.cfg.PatchSize != 0 {
		panic(fmt.Sprintf("patch embedding: side %d is not a multiple of patch size %d", h, p.cfg.PatchSize))
	}
	if h != p.cfg.ImageSize {
		panic(fmt.Sprintf("patch embedding: expected %dx%d images, got %dx%d", p.cfg.ImageSize, p.cfg.ImageSize, h, w))
	}
}

// Parameters returns proj.weight, proj.bias, class_token, pos_embedding.
func (p *PatchEmbedding[B]) Parameters() []*Parameter[B] {
	return append(p.proj.Parameters(), p.classToken, p.posTable)
}

// Initialize draws the projection, then the class token, then the
// positional table.
func (p *PatchEmbedding[B]) Initialize(rng *rand.Rand) {
	p.proj.Initialize(rng)
	fillTruncNormal(p.classToken, TokenStd, truncLow, truncHigh, rng)
	if p.cfg.PositionalInit == PositionalSinusoidal {
		copy(p.posTable.Tensor().Data(), SinusoidalTable(p.cfg.NumPositions, p.cfg.EmbedDim))
		return
	}
	fillTruncNormal(p.posTable, TokenStd, truncLow, truncHigh, rng)
}

// SetTraining toggles dropout.
func (p *PatchEmbedding[B]) SetTraining(training bool) { p.dropout.SetTraining(training) }

// Config returns the effective configuration.
func (p *PatchEmbedding[B]) Config() PatchEmbeddingConfig { return p.cfg }

// ClassToken returns the class token parameter.
func (p *PatchEmbedding[B]) ClassToken() *Parameter[B] { return p.classToken }

// PositionalTable returns the positional table parameter.
func (p *PatchEmbedding[B]) PositionalTable() *Parameter[B] { return p.posTable }
