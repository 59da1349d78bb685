//go:build !windows

package webgpu

import (
	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

// Backend is a placeholder on platforms without the native wgpu library.
// New never returns one.
type Backend struct {
	*cpu.CPUBackend
}

// New returns ErrUnavailable.
func New() (*Backend, error) { return nil, ErrUnavailable }

// IsAvailable returns false.
func IsAvailable() bool { return false }

// Release is a no-op.
func (b *Backend) Release() {}

// Name returns "WebGPU".
func (b *Backend) Name() string { return "WebGPU" }

// Device returns tensor.WebGPU.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }
