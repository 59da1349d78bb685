//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/vit/internal/tensor"
)

// compileShader compiles WGSL once per name.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	shader, ok := b.shaders[name]
	b.mu.RUnlock()
	if ok {
		return shader
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if shader, ok := b.shaders[name]; ok {
		return shader
	}
	shader = b.device.CreateShaderModuleWGSL(code)
	b.shaders[name] = shader
	return shader
}

func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	p, ok := b.pipelines[name]
	b.mu.RUnlock()
	if ok {
		return p
	}

	shader := b.compileShader(name, code)
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[name]; ok {
		return p
	}
	p = b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

// createBuffer uploads data into a new storage buffer.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // mapped range is exactly size bytes
	copy(unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size), data)
	buf.Unmap()
	return buf
}

// createUniformBuffer uploads params padded to 16 bytes.
func (b *Backend) createUniformBuffer(params []uint32) *wgpu.Buffer {
	size := uint64((len(params)*4 + 15) &^ 15)
	data := make([]byte, size)
	for i, p := range params {
		binary.LittleEndian.PutUint32(data[i*4:], p)
	}
	return b.createBuffer(data, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
}

// readBuffer copies a storage buffer back through a staging buffer.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	out := make([]byte, size)
	//nolint:gosec // mapped range is exactly size bytes
	copy(out, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return out, nil
}

// runMatMul dispatches batch products of [m, k] @ [k, n]. batch == 1 uses
// the 2D kernel.
func (b *Backend) runMatMul(a, other *tensor.RawTensor, batch, m, k, n int, shape tensor.Shape) (*tensor.RawTensor, error) {
	b.submit.Lock()
	defer b.submit.Unlock()

	var (
		pipeline *wgpu.ComputePipeline
		params   []uint32
		groups   [3]uint32
	)
	//nolint:gosec // G115: dimensions are positive ints
	if batch == 1 && len(shape) == 2 {
		pipeline = b.pipeline("matmul", matmulShader)
		params = []uint32{uint32(m), uint32(k), uint32(n)}
		groups = [3]uint32{ceilDiv(n, matmulTile), ceilDiv(m, matmulTile), 1}
	} else {
		pipeline = b.pipeline("batch_matmul", batchMatMulShader)
		params = []uint32{uint32(batch), uint32(m), uint32(k), uint32(n)}
		groups = [3]uint32{ceilDiv(n, batchMatMulTile), ceilDiv(m, batchMatMulTile), uint32(batch)}
	}

	bufA := b.createBuffer(a.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufA.Release()
	bufB := b.createBuffer(other.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufB.Release()

	resultSize := uint64(batch * m * n * 4)
	bufOut := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufOut.Release()
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	//nolint:gosec // G115: byte sizes are non-negative
	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, uint64(a.ByteSize())),
		wgpu.BufferBindingEntry(1, bufB, 0, uint64(other.ByteSize())),
		wgpu.BufferBindingEntry(2, bufOut, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.readBuffer(bufOut, resultSize)
	if err != nil {
		return nil, err
	}
	out, err := tensor.RawFromBytes(data, shape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ceilDiv(a, b int) uint32 {
	//nolint:gosec // G115: result is non-negative
	return uint32((a + b - 1) / b)
}
