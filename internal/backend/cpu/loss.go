package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/vit/internal/tensor"
)

// CrossEntropy returns mean(-log softmax(logits)[target]) as a scalar.
// logits are [N, C] float32, targets are [N] int32 class indices.
func (cpu *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("crossEntropy", logits)
	n, c := checkCrossEntropy(logits, targets)
	ld, td := logits.AsFloat32(), targets.AsInt32()

	var total float64
	for i := 0; i < n; i++ {
		row := ld[i*c : (i+1)*c]
		total += logSumExp(row) - float64(row[td[i]])
	}
	out := cpu.alloc("crossEntropy", tensor.Shape{}, tensor.Float32)
	out.AsFloat32()[0] = float32(total / float64(n))
	return out
}

func checkCrossEntropy(logits, targets *tensor.RawTensor) (n, c int) {
	ls, ts := logits.Shape(), targets.Shape()
	if len(ls) != 2 {
		panic(fmt.Sprintf("crossEntropy: logits must be [N, C], got %v", ls))
	}
	if targets.DType() != tensor.Int32 || len(ts) != 1 || ts[0] != ls[0] {
		panic(fmt.Sprintf("crossEntropy: targets must be int32 [%d], got %s %v", ls[0], targets.DType(), ts))
	}
	n, c = ls[0], ls[1]
	for i, t := range targets.AsInt32() {
		if t < 0 || int(t) >= c {
			panic(fmt.Sprintf("crossEntropy: target %d at index %d out of range [0, %d)", t, i, c))
		}
	}
	return n, c
}

func logSumExp(row []float32) float64 {
	m := math.Inf(-1)
	for _, v := range row {
		m = math.Max(m, float64(v))
	}
	var s float64
	for _, v := range row {
		s += math.Exp(float64(v) - m)
	}
	return m + math.Log(s)
}
