// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go compute backend. Batched products,
// convolutions and softmax rows are spread across goroutines.
package cpu

import (
	internalcpu "github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/tensor"
)

// Backend is the CPU backend.
type Backend = internalcpu.CPUBackend

var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend using every available core.
func New() *Backend {
	return internalcpu.New()
}
