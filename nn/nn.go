// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the vision transformer and its building blocks.
//
//	backend := cpu.New()
//	model, err := nn.NewViT(nn.DefaultViTConfig(), backend)
//	if err != nil {
//	    return err
//	}
//	model.SetTraining(false)
//	logits := model.Forward(images) // [batch, NumClasses]
package nn

import (
	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/tensor"
)

// Configuration errors.
var (
	ErrHeadsNotDivisible  = nn.ErrHeadsNotDivisible
	ErrInvalidPatchSize   = nn.ErrInvalidPatchSize
	ErrPositionalMismatch = nn.ErrPositionalMismatch
	ErrInvalidConfig      = nn.ErrInvalidConfig
)

// Module is a layer with trainable parameters.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a named trainable tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// ViTConfig holds the model hyperparameters.
type ViTConfig = nn.ViTConfig

// ViT is the vision transformer classifier.
type ViT[B tensor.Backend] = nn.ViT[B]

// DefaultViTConfig returns the CIFAR-10 configuration.
func DefaultViTConfig() ViTConfig { return nn.DefaultViTConfig() }

// NewViT builds a model with initialized weights.
func NewViT[B tensor.Backend](cfg ViTConfig, backend B) (*ViT[B], error) {
	return nn.NewViT(cfg, backend)
}

// MHAConfig configures multi-head attention.
type MHAConfig = nn.MHAConfig

// MultiHeadAttention is self-attention over NumHeads heads.
type MultiHeadAttention[B tensor.Backend] = nn.MultiHeadAttention[B]

// NewMultiHeadAttention validates cfg and builds the Q, K and V projections.
func NewMultiHeadAttention[B tensor.Backend](cfg MHAConfig, backend B) (*MultiHeadAttention[B], error) {
	return nn.NewMultiHeadAttention(cfg, backend)
}

// AttentionOptions selects causal and explicit masking.
type AttentionOptions = nn.AttentionOptions

// ScaledDotProductAttention returns softmax(QKᵀ/√d)V and the attention
// weights for [batch, heads, seq, dim] inputs.
func ScaledDotProductAttention[B tensor.Backend](q, k, v *tensor.Tensor[float32, B], opts AttentionOptions) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	return nn.ScaledDotProductAttention(q, k, v, opts)
}

// CrossEntropyLoss is the mean classification loss.
type CrossEntropyLoss[B tensor.Backend] = nn.CrossEntropyLoss[B]

// NewCrossEntropyLoss creates the loss.
func NewCrossEntropyLoss[B tensor.Backend]() *CrossEntropyLoss[B] {
	return nn.NewCrossEntropyLoss[B]()
}

// Checkpoint is training progress stored with the weights.
type Checkpoint = nn.Checkpoint

// SaveCheckpoint writes model and progress to path.
func SaveCheckpoint[B tensor.Backend](path string, model *ViT[B], ckpt Checkpoint) error {
	return nn.SaveCheckpoint(path, model, ckpt)
}

// LoadCheckpoint restores model weights from path.
func LoadCheckpoint[B tensor.Backend](path string, model *ViT[B]) (Checkpoint, error) {
	return nn.LoadCheckpoint(path, model)
}

// ReadConfig returns the model configuration stored in a checkpoint.
func ReadConfig(path string) (ViTConfig, error) { return nn.ReadConfig(path) }

// Accuracy returns the fraction of rows whose argmax equals the target and
// the number of correct rows.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets []int32) (float64, int) {
	return nn.Accuracy(logits, targets)
}
