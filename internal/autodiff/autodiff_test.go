package autodiff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/backend/cpu"
	"github.com/born-ml/vit/internal/tensor"
)

type backendT = *AutodiffBackend[*cpu.CPUBackend]

func TestBackward_Square(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{2, -3}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	y := x.Mul(x).Sum()

	grads := Backward(y, backend)

	assert.Equal(t, []float32{4, -6}, grads[x.Raw()].AsFloat32())
}

func TestBackward_AccumulatesReusedTensor(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	// y = sum(x + x*3) -> dy/dx = 4
	y := x.Add(x.MulScalar(3)).Sum()

	grads := Backward(y, backend)

	assert.Equal(t, []float32{4, 4}, grads[x.Raw()].AsFloat32())
}

func TestBackward_BroadcastBiasGradientIsSummed(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.Ones[float32](tensor.Shape{3, 2}, backend)
	bias, err := tensor.FromSlice([]float32{0.5, -0.5}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	grads := Backward(x.Add(bias).Sum(), backend)

	assert.Equal(t, []float32{3, 3}, grads[bias.Raw()].AsFloat32())
}

func TestBackward_NoOpsPanics(t *testing.T) {
	backend := New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{1}, backend)
	assert.Panics(t, func() { Backward(x, backend) })
}

func TestTape_NotRecordingByDefault(t *testing.T) {
	backend := New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	x.Add(x)
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StartRecording()
	x.Add(x)
	assert.Equal(t, 1, backend.Tape().NumOps())

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

// checkGradient compares autodiff gradients of f at x against central
// finite differences.
func checkGradient(t *testing.T, name string, shape tensor.Shape, f func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT]) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}

	backend := New(cpu.New())
	backend.Tape().StartRecording()
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	grads := Backward(f(x), backend)
	analytic := grads[x.Raw()]
	require.NotNil(t, analytic, name)
	backend.Tape().StopRecording()

	eval := func(d []float32) float64 {
		xt, err := tensor.FromSlice(d, shape, backend)
		require.NoError(t, err)
		return float64(f(xt).Item())
	}

	const eps = 1e-2
	for i := range data {
		orig := data[i]
		data[i] = orig + eps
		up := eval(data)
		data[i] = orig - eps
		down := eval(data)
		data[i] = orig
		numeric := (up - down) / (2 * eps)
		assert.InDelta(t, numeric, float64(analytic.AsFloat32()[i]), 2e-2, "%s: element %d", name, i)
	}
}

func TestGradientCheck(t *testing.T) {
	weights := func(x *tensor.Tensor[float32, backendT], n int) *tensor.Tensor[float32, backendT] {
		w := make([]float32, n)
		for i := range w {
			w[i] = float32(i%5) - 1.5
		}
		wt, err := tensor.FromSlice(w, x.Shape(), x.Backend())
		require.NoError(t, err)
		return wt
	}

	tests := []struct {
		name  string
		shape tensor.Shape
		f     func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT]
	}{
		{"tanh", tensor.Shape{2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Tanh().Mul(weights(x, 6)).Sum()
		}},
		{"gelu", tensor.Shape{2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.GELU().Mul(weights(x, 6)).Sum()
		}},
		{"softmax", tensor.Shape{2, 4}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			return x.Softmax(-1).Mul(weights(x, 8)).Sum()
		}},
		{"layernorm", tensor.Shape{2, 4}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			mean := x.MeanDim(-1, true)
			xc := x.Sub(mean)
			inv := xc.Mul(xc).MeanDim(-1, true).AddScalar(1e-5).Rsqrt()
			return xc.Mul(inv).Mul(weights(x, 8)).Sum()
		}},
		{"batchmatmul", tensor.Shape{1, 2, 2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			scores := x.BatchMatMul(x.Transpose(0, 1, 3, 2))
			return scores.Mul(scores).Sum().MulScalar(0.1)
		}},
		{"narrow-cat", tensor.Shape{2, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			head := x.Narrow(1, 0, 1)
			tail := x.Narrow(1, 1, 2)
			return tensor.Cat([]*tensor.Tensor[float32, backendT]{tail, head.MulScalar(2)}, 1).Mul(weights(x, 6)).Sum()
		}},
		{"expand-reshape", tensor.Shape{1, 3}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			e := x.Expand(tensor.Shape{2, 3}).Reshape(3, 2)
			return e.Mul(e).Sum()
		}},
		{"div-exp-log", tensor.Shape{4}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			e := x.Exp()
			return e.Div(e.AddScalar(1)).Log().Sum()
		}},
		{"where", tensor.Shape{2, 2}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			zero := tensor.Zeros[float32](tensor.Shape{1}, x.Backend())
			fill := tensor.Full[float32](tensor.Shape{1}, -3, x.Backend())
			return tensor.Where(x.NotEqual(zero), x.MulScalar(2), fill).Mul(weights(x, 4)).Sum()
		}},
		{"cross-entropy", tensor.Shape{3, 4}, func(x *tensor.Tensor[float32, backendT]) *tensor.Tensor[float32, backendT] {
			targets, err := tensor.FromSlice([]int32{0, 3, 1}, tensor.Shape{3}, x.Backend())
			require.NoError(t, err)
			return tensor.New[float32](x.Backend().CrossEntropy(x.Raw(), targets.Raw()), x.Backend())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkGradient(t, tt.name, tt.shape, tt.f)
		})
	}
}

func TestConv2DGradientReachesKernel(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.Ones[float32](tensor.Shape{1, 1, 4, 4}, backend)
	k := tensor.Ones[float32](tensor.Shape{2, 1, 2, 2}, backend)
	y := x.Conv2D(k, 2, 0).Sum()

	grads := Backward(y, backend)

	// Every kernel tap sees four patches of ones.
	for _, v := range grads[k.Raw()].AsFloat32() {
		assert.Equal(t, float32(4), v)
	}
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, grads[x.Raw()].Shape())
}
