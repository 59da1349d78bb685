package cpu

import (
	"fmt"

	"github.com/born-ml/vit/internal/parallel"
	"github.com/born-ml/vit/internal/tensor"
)

type convGeom struct {
	n, c, h, w     int
	f, kh, kw      int
	oh, ow         int
	stride, padOff int
}

func conv2dGeometry(op string, input, kernel *tensor.RawTensor, stride, padding int) convGeom {
	is, ks := input.Shape(), kernel.Shape()
	if len(is) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %v", op, is))
	}
	if len(ks) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [F,C,KH,KW], got %v", op, ks))
	}
	if is[1] != ks[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, is[1], ks[1]))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d or padding %d", op, stride, padding))
	}
	g := convGeom{
		n: is[0], c: is[1], h: is[2], w: is[3],
		f: ks[0], kh: ks[2], kw: ks[3],
		stride: stride, padOff: padding,
	}
	g.oh = (g.h+2*padding-g.kh)/stride + 1
	g.ow = (g.w+2*padding-g.kw)/stride + 1
	if g.oh <= 0 || g.ow <= 0 {
		panic(fmt.Sprintf("%s: invalid output size %dx%d (check stride/padding)", op, g.oh, g.ow))
	}
	return g
}

// forEachTap visits every (output pixel, kernel tap) pair of one
// (batch, filter, channel) plane that reads a pixel inside the input.
func (g convGeom) forEachTap(visit func(outIdx, inIdx, kIdx int)) {
	for oy := 0; oy < g.oh; oy++ {
		for ox := 0; ox < g.ow; ox++ {
			for ky := 0; ky < g.kh; ky++ {
				iy := oy*g.stride + ky - g.padOff
				if iy < 0 || iy >= g.h {
					continue
				}
				for kx := 0; kx < g.kw; kx++ {
					ix := ox*g.stride + kx - g.padOff
					if ix < 0 || ix >= g.w {
						continue
					}
					visit(oy*g.ow+ox, iy*g.w+ix, ky*g.kw+kx)
				}
			}
		}
	}
}

// Conv2D performs a direct 2D convolution. Batch elements run in parallel.
//
// Input [N, C, H, W], kernel [F, C, KH, KW], output [N, F, OH, OW] with
// OH = (H + 2*padding - KH)/stride + 1.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d", input, kernel)
	g := conv2dGeometry("conv2d", input, kernel, stride, padding)
	out := cpu.alloc("conv2d", tensor.Shape{g.n, g.f, g.oh, g.ow}, tensor.Float32)
	in, k, o := input.AsFloat32(), kernel.AsFloat32(), out.AsFloat32()

	plane, kplane, oplane := g.h*g.w, g.kh*g.kw, g.oh*g.ow
	parallel.ForBatch(g.n, g.f, func(b, f int) {
		dst := o[(b*g.f+f)*oplane : (b*g.f+f+1)*oplane]
		for c := 0; c < g.c; c++ {
			src := in[(b*g.c+c)*plane : (b*g.c+c+1)*plane]
			ker := k[(f*g.c+c)*kplane : (f*g.c+c+1)*kplane]
			g.forEachTap(func(oi, ii, ki int) {
				dst[oi] += src[ii] * ker[ki]
			})
		}
	}, cpu.par.WithMinChunk(1))
	return out
}

// Conv2DInputBackward returns dL/dinput given dL/doutput.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d_input_backward", input, kernel, grad)
	g := conv2dGeometry("conv2d_input_backward", input, kernel, stride, padding)
	out := cpu.alloc("conv2d_input_backward", input.Shape(), tensor.Float32)
	k, gd, o := kernel.AsFloat32(), grad.AsFloat32(), out.AsFloat32()

	plane, kplane, oplane := g.h*g.w, g.kh*g.kw, g.oh*g.ow
	parallel.ForBatch(g.n, g.c, func(b, c int) {
		dst := o[(b*g.c+c)*plane : (b*g.c+c+1)*plane]
		for f := 0; f < g.f; f++ {
			src := gd[(b*g.f+f)*oplane : (b*g.f+f+1)*oplane]
			ker := k[(f*g.c+c)*kplane : (f*g.c+c+1)*kplane]
			g.forEachTap(func(oi, ii, ki int) {
				dst[ii] += src[oi] * ker[ki]
			})
		}
	}, cpu.par.WithMinChunk(1))
	return out
}

// Conv2DKernelBackward returns dL/dkernel given dL/doutput.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d_kernel_backward", input, kernel, grad)
	g := conv2dGeometry("conv2d_kernel_backward", input, kernel, stride, padding)
	out := cpu.alloc("conv2d_kernel_backward", kernel.Shape(), tensor.Float32)
	in, gd, o := input.AsFloat32(), grad.AsFloat32(), out.AsFloat32()

	plane, kplane, oplane := g.h*g.w, g.kh*g.kw, g.oh*g.ow
	// Each (filter, channel) kernel slice is owned by one goroutine.
	parallel.ForBatch(g.f, g.c, func(f, c int) {
		dst := o[(f*g.c+c)*kplane : (f*g.c+c+1)*kplane]
		for b := 0; b < g.n; b++ {
			src := in[(b*g.c+c)*plane : (b*g.c+c+1)*plane]
			gr := gd[(b*g.f+f)*oplane : (b*g.f+f+1)*oplane]
			g.forEachTap(func(oi, ii, ki int) {
				dst[ki] += src[ii] * gr[oi]
			})
		}
	}, cpu.par.WithMinChunk(1))
	return out
}
