// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff adds reverse-mode differentiation to any backend by
// recording operations on a gradient tape.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := criterion.Forward(model.Forward(images), labels)
//	grads := autodiff.Backward(loss, backend)
package autodiff

import (
	"github.com/born-ml/vit/internal/autodiff"
	"github.com/born-ml/vit/tensor"
)

// Backend wraps B and records differentiable operations.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New wraps backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape is the recorded operation list.
type GradientTape = autodiff.GradientTape

// BackwardCapable is a backend owning a tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward returns gradients of t with respect to every recorded input,
// keyed by raw tensor.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
