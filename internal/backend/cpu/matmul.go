package cpu

import (
	"fmt"

	"github.com/born-ml/vit/internal/parallel"
	"github.com/born-ml/vit/internal/tensor"
)

// MatMul computes [M, K] @ [K, N] -> [M, N]. Rows run in parallel.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("matmul", a, b)
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("matmul: requires 2D tensors, got %v and %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("matmul: shape mismatch %v @ %v", as, bs))
	}
	m, k, n := as[0], as[1], bs[1]
	out := cpu.alloc("matmul", tensor.Shape{m, n}, tensor.Float32)
	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()

	parallel.For(m, func(i int) {
		matmulRow(od[i*n:(i+1)*n], ad[i*k:(i+1)*k], bd, k, n)
	}, cpu.par.WithMinChunk(max(1, 4096/max(k*n, 1))))
	return out
}

// BatchMatMul computes [..., M, K] @ [..., K, N] -> [..., M, N] for 3D and
// 4D inputs with identical leading axes. Each (batch, head) matrix is an
// independent work item.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("batchMatMul", a, b)
	as, bs := a.Shape(), b.Shape()
	nd := len(as)
	if (nd != 3 && nd != 4) || len(bs) != nd {
		panic(fmt.Sprintf("batchMatMul: requires matching 3D or 4D tensors, got %v and %v", as, bs))
	}
	if !as[:nd-2].Equal(bs[:nd-2]) {
		panic(fmt.Sprintf("batchMatMul: batch dimensions differ: %v vs %v", as, bs))
	}
	if as[nd-1] != bs[nd-2] {
		panic(fmt.Sprintf("batchMatMul: inner dimensions differ: %v @ %v", as, bs))
	}

	m, k, n := as[nd-2], as[nd-1], bs[nd-1]
	batch := as[:nd-2].NumElements()
	outShape := append(as[:nd-2].Clone(), m, n)
	out := cpu.alloc("batchMatMul", outShape, tensor.Float32)
	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()

	parallel.For(batch, func(p int) {
		aOff, bOff, oOff := p*m*k, p*k*n, p*m*n
		bMat := bd[bOff : bOff+k*n]
		for i := 0; i < m; i++ {
			matmulRow(od[oOff+i*n:oOff+(i+1)*n], ad[aOff+i*k:aOff+(i+1)*k], bMat, k, n)
		}
	}, cpu.par.WithMinChunk(1))
	return out
}

// matmulRow computes one output row: dst = aRow @ b, b is [k, n].
// The i-k-j order keeps b accesses sequential. Zero entries of aRow are not
// skipped, so a NaN or Inf in b still reaches dst (0 * Inf = NaN).
func matmulRow(dst, aRow, b []float32, k, n int) {
	for j := range dst {
		dst[j] = 0
	}
	for p := 0; p < k; p++ {
		av := aRow[p]
		bRow := b[p*n : (p+1)*n]
		for j, bv := range bRow {
			dst[j] += av * bv
		}
	}
}
