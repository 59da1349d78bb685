//go:build windows

package webgpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

// Backend runs matrix products on a WebGPU device and everything else on
// the embedded CPU backend.
type Backend struct {
	*cpu.CPUBackend

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfoGo

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// submit serializes queue submission and buffer mapping; CPU kernels
	// call matrix products from several goroutines.
	submit sync.Mutex
}

// New opens the high-performance adapter. It returns ErrUnavailable when
// the native library or an adapter is missing.
func New() (backend *Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrUnavailable, err)
	}
	// Adapter info only labels the backend; a failed query is not fatal.
	info, _ := adapter.GetInfo()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrUnavailable, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	return &Backend{
		CPUBackend:  cpu.New(),
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: info,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// IsAvailable reports whether an adapter can be opened.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Release frees every GPU object. The backend must not be used afterwards.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend and adapter name.
func (b *Backend) Name() string { return adapterLabel(b.adapterInfo) }

// adapterLabel formats "WebGPU (<device> <vendor>)", falling back to the
// description and then to plain "WebGPU" when the driver reports nothing.
func adapterLabel(info *wgpu.AdapterInfoGo) string {
	if info == nil {
		return "WebGPU"
	}
	parts := make([]string, 0, 2)
	for _, s := range []string{info.Device, info.Vendor} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		if d := strings.TrimSpace(info.Description); d != "" {
			parts = append(parts, d)
		}
	}
	if len(parts) == 0 {
		return "WebGPU"
	}
	return "WebGPU (" + strings.Join(parts, " ") + ")"
}

// Device returns tensor.WebGPU.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// MatMul multiplies [M, K] @ [K, N], on the GPU for large products.
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	as, bs := a.Shape(), other.Shape()
	if a.DType() != tensor.Float32 || len(as) != 2 || len(bs) != 2 || as[1] != bs[0] ||
		as[0]*as[1]*bs[1] < minGPUWork {
		return b.CPUBackend.MatMul(a, other)
	}
	out, err := b.runMatMul(a, other, 1, as[0], as[1], bs[1], tensor.Shape{as[0], bs[1]})
	if err != nil {
		panic("webgpu: matmul: " + err.Error())
	}
	return out
}

// BatchMatMul multiplies the last two axes of 3D or 4D tensors, on the GPU
// for large products.
func (b *Backend) BatchMatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	batch, m, k, n, ok := batchShape(a.Shape(), other.Shape())
	if !ok || a.DType() != tensor.Float32 || batch*m*k*n < minGPUWork {
		return b.CPUBackend.BatchMatMul(a, other)
	}
	shape := a.Shape().Clone()
	shape[len(shape)-1] = n
	out, err := b.runMatMul(a, other, batch, m, k, n, shape)
	if err != nil {
		panic("webgpu: batch matmul: " + err.Error())
	}
	return out
}
