// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides a backend that runs matrix products as WebGPU
// compute shaders and everything else on the CPU.
//
//	backend, err := webgpu.New()
//	if errors.Is(err, webgpu.ErrUnavailable) {
//	    // use cpu.New() instead
//	}
//	defer backend.Release()
package webgpu

import (
	internalwebgpu "github.com/born-ml/vit/internal/backend/webgpu"
	"github.com/born-ml/vit/tensor"
)

// Backend is the WebGPU backend.
type Backend = internalwebgpu.Backend

var _ tensor.Backend = (*Backend)(nil)

// ErrUnavailable is returned by New when no adapter can be used.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New opens the high-performance GPU adapter.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether New can succeed.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
