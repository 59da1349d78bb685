package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

type cpuT = *cpu.CPUBackend

func randn(t *testing.T, rng *rand.Rand, backend cpuT, shape ...int) *tensor.Tensor[float32, cpuT] {
	t.Helper()
	return tensor.Randn(tensor.Shape(shape), 1, rng, backend)
}

func fromSlice(t *testing.T, backend cpuT, data []float32, shape ...int) *tensor.Tensor[float32, cpuT] {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), backend)
	require.NoError(t, err)
	return x
}

func meanStd(data []float32) (mean, std float64) {
	for _, v := range data {
		mean += float64(v)
	}
	mean /= float64(len(data))
	for _, v := range data {
		d := float64(v) - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(data)))
}

func paramNames[B tensor.Backend](params []*Parameter[B]) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	return names
}
