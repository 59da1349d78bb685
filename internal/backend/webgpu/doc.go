// Package webgpu offloads the transformer's matrix products to the GPU
// through WebGPU compute shaders (github.com/go-webgpu/webgpu, no CGO).
//
// The backend embeds the CPU backend: MatMul and BatchMatMul run as WGSL
// kernels once a product is large enough to amortize the transfer, and every
// other operation runs on the host. Tensors stay in host memory between
// operations, so the backend composes with autodiff like the CPU backend.
//
// The native wgpu library is only wired up on Windows; on other platforms
// New returns ErrUnavailable and callers fall back to the CPU backend.
package webgpu

import "errors"

// ErrUnavailable is returned when no WebGPU adapter can be used.
var ErrUnavailable = errors.New("webgpu: not available")

// minGPUWork is the M*K*N product below which matrix products stay on the
// CPU.
const minGPUWork = 1 << 16

// batchShape flattens leading axes of a 3D or 4D batched product. ok is
// false for shapes the kernel cannot take; the CPU path reports those.
func batchShape(a, b []int) (batch, m, k, n int, ok bool) {
	if len(a) != len(b) || (len(a) != 3 && len(a) != 4) {
		return 0, 0, 0, 0, false
	}
	batch = 1
	for i := 0; i < len(a)-2; i++ {
		if a[i] != b[i] {
			return 0, 0, 0, 0, false
		}
		batch *= a[i]
	}
	m, k, n = a[len(a)-2], a[len(a)-1], b[len(b)-1]
	if b[len(b)-2] != k {
		return 0, 0, 0, 0, false
	}
	return batch, m, k, n, true
}
