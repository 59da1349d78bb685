package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// ViTConfig holds the vision transformer hyperparameters.
type ViTConfig struct {
	ImageSize      int            `yaml:"image_size" json:"image_size"`
	PatchSize      int            `yaml:"patch_size" json:"patch_size"`
	Channels       int            `yaml:"channels" json:"channels"`
	NumClasses     int            `yaml:"num_classes" json:"num_classes"`
	EmbedDim       int            `yaml:"embed_dim" json:"embed_dim"`
	NumHeads       int            `yaml:"num_heads" json:"num_heads"`
	NumBlocks      int            `yaml:"num_blocks" json:"num_blocks"`
	FFNDim         int            `yaml:"ffn_dim" json:"ffn_dim"`
	Dropout        float32        `yaml:"dropout" json:"dropout"`
	PositionalInit PositionalInit `yaml:"positional_init" json:"positional_init"`
	Seed           int64          `yaml:"seed" json:"seed"`
}

// DefaultViTConfig returns the CIFAR-10 configuration: 32x32 RGB images,
// 4x4 patches, 6 blocks of 8 heads at width 128.
func DefaultViTConfig() ViTConfig {
	return ViTConfig{
		ImageSize:      32,
		PatchSize:      4,
		Channels:       3,
		NumClasses:     10,
		EmbedDim:       128,
		NumHeads:       8,
		NumBlocks:      6,
		FFNDim:         512,
		Dropout:        0.1,
		PositionalInit: PositionalLearned,
		Seed:           3,
	}
}

// Validate checks every derived sub-layer config.
func (c ViTConfig) Validate() error {
	if err := c.patchConfig().Validate(); err != nil {
		return err
	}
	if err := c.encoderConfig().Validate(); err != nil {
		return err
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("%w: num classes %d must be positive", ErrInvalidConfig, c.NumClasses)
	}
	return nil
}

// SeqLen returns (ImageSize/PatchSize)^2 + 1.
func (c ViTConfig) SeqLen() int { return c.patchConfig().SeqLen() }

func (c ViTConfig) patchConfig() PatchEmbeddingConfig {
	return PatchEmbeddingConfig{
		ImageSize:      c.ImageSize,
		PatchSize:      c.PatchSize,
		Channels:       c.Channels,
		EmbedDim:       c.EmbedDim,
		Dropout:        c.Dropout,
		PositionalInit: c.PositionalInit,
	}
}

func (c ViTConfig) encoderConfig() EncoderConfig {
	return EncoderConfig{
		EmbedDim:  c.EmbedDim,
		NumHeads:  c.NumHeads,
		FFNDim:    c.FFNDim,
		NumBlocks: c.NumBlocks,
		Dropout:   c.Dropout,
	}
}

// ViT is a vision transformer classifier:
//
//	images [B, C, H, H]
//	  -> PatchEmbedding     [B, L, E]
//	  -> Encoder            [B, L, E]
//	  -> token 0, tanh      [B, E]
//	  -> Linear head        [B, NumClasses]
//
// The model starts in training mode. Call SetTraining(false) for
// deterministic inference.
type ViT[B tensor.Backend] struct {
	cfg       ViTConfig
	embedding *PatchEmbedding[B]
	encoder   *Encoder[B]
	squash    *Tanh[B]
	head      *Linear[B]
	training  bool
}

// NewViT creates a vision transformer classifier.
//
// Architecture:
//
//	images [B, C, H, W]
//	  -> PatchEmbedding  [B, k*k+1, E]  (class token + positions)
//	  -> Encoder         [B, k*k+1, E]  (NumBlocks encoder blocks)
//	  -> class token     [B, E]
//	  -> Tanh -> Linear  [B, NumClasses]
//
// Parameters:
//   - cfg: model hyperparameters; see ViTConfig.Validate for the constraints
//   - backend: computation backend (wrap it with autodiff to train)
//
// All weights and dropout masks are drawn from one generator seeded with
// cfg.Seed, so the same Seed always yields the same model.
//
// Returns ErrInvalidPatchSize, ErrHeadsNotDivisible or ErrInvalidConfig
// wrapped with the failing component.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model, err := nn.NewViT(nn.DefaultViTConfig(), backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := model.Forward(images) // [batch, NumClasses]
func NewViT[B tensor.Backend](cfg ViTConfig, backend B) (*ViT[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vit: %w", err)
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible init, not security

	embedding, err := NewPatchEmbedding[B](cfg.patchConfig(), rng, backend)
	if err != nil {
		return nil, fmt.Errorf("vit: %w", err)
	}
	encoder, err := NewEncoder[B](cfg.encoderConfig(), rng, backend)
	if err != nil {
		return nil, fmt.Errorf("vit: %w", err)
	}

	m := &ViT[B]{
		cfg:       cfg,
		embedding: embedding,
		encoder:   encoder,
		squash:    NewTanh[B](),
		head:      NewLinear[B](cfg.EmbedDim, cfg.NumClasses, backend),
		training:  true,
	}
	prefixParams("embedding", m.embedding.Parameters())
	prefixParams("encoder", m.encoder.Parameters())
	prefixParams("head", m.head.Parameters())

	m.Initialize(rng)
	return m, nil
}

// Forward maps images [batch, C, H, H] to logits [batch, NumClasses].
func (m *ViT[B]) Forward(images *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	tokens := m.encoder.Forward(m.embedding.Forward(images))
	batch := tokens.Shape()[0]

	cls := tokens.Narrow(1, 0, 1).Reshape(batch, m.cfg.EmbedDim)
	return m.head.Forward(m.squash.Forward(cls))
}

// Parameters returns embedding, encoder, then head parameters.
func (m *ViT[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, m.embedding.Parameters()...)
	params = append(params, m.encoder.Parameters()...)
	return append(params, m.head.Parameters()...)
}

// Initialize re-draws every parameter in a fixed order:
//
//  1. embedding: projection kernel and bias, class token, positional table
//  2. encoder blocks in order: q, k, v, norm1, fc1, fc2, norm2
//  3. head
//
// Weights of linear and convolution layers use N(0, WeightStd²); the class
// token and positional table use a truncated N(0, TokenStd²).
func (m *ViT[B]) Initialize(rng *rand.Rand) {
	m.embedding.Initialize(rng)
	m.encoder.Initialize(rng)
	m.head.Initialize(rng)
}

// SetTraining switches every dropout between training and evaluation.
func (m *ViT[B]) SetTraining(training bool) {
	m.training = training
	m.embedding.SetTraining(training)
	m.encoder.SetTraining(training)
}

// Training reports the current mode.
func (m *ViT[B]) Training() bool { return m.training }

// Config returns the model configuration.
func (m *ViT[B]) Config() ViTConfig { return m.cfg }

// Embedding returns the patch embedding layer.
func (m *ViT[B]) Embedding() *PatchEmbedding[B] { return m.embedding }

// Encoder returns the encoder stack.
func (m *ViT[B]) Encoder() *Encoder[B] { return m.encoder }

// Head returns the classification layer.
func (m *ViT[B]) Head() *Linear[B] { return m.head }

// NumParameters counts trainable scalars.
func (m *ViT[B]) NumParameters() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// StateDict maps every parameter name to its tensor. The tensors are live:
// later optimizer steps are visible through them.
func (m *ViT[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDict(m.Parameters())
}

// LoadStateDict copies tensors into the model. Every parameter must be
// present with a matching shape and dtype; unknown names are rejected.
func (m *ViT[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return LoadStateDict(m.Parameters(), state)
}
