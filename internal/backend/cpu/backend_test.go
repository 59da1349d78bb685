package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/internal/tensor"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func TestAdd_Broadcast(t *testing.T) {
	b := New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	bias := raw(t, []float32{10, 20, 30}, 3)

	out := b.Add(a, bias)

	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestMul_BroadcastColumn(t *testing.T) {
	b := New()
	a := raw(t, []float32{1, 2, 3, 4}, 2, 2)
	col := raw(t, []float32{2, 3}, 2, 1)

	out := b.Mul(a, col)

	assert.Equal(t, []float32{2, 4, 9, 12}, out.AsFloat32())
}

func TestAdd_IncompatibleShapesPanics(t *testing.T) {
	b := New()
	assert.Panics(t, func() {
		b.Add(raw(t, make([]float32, 6), 2, 3), raw(t, make([]float32, 2), 2))
	})
}

func TestMatMul(t *testing.T) {
	b := New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	c := raw(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := b.MatMul(a, c)

	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMul_PropagatesNonFinite(t *testing.T) {
	b := New()
	zeros := raw(t, []float32{0, 0}, 1, 2)
	inf := raw(t, []float32{float32(math.Inf(1)), 1, 2, float32(math.NaN())}, 2, 2)

	out := b.MatMul(zeros, inf).AsFloat32()
	assert.True(t, math.IsNaN(float64(out[0])), "0 * Inf")
	assert.True(t, math.IsNaN(float64(out[1])), "0 * NaN")

	batched := b.BatchMatMul(raw(t, []float32{0, 0}, 1, 1, 2), raw(t, inf.AsFloat32(), 1, 2, 2)).AsFloat32()
	assert.True(t, math.IsNaN(float64(batched[0])))
}

func TestBatchMatMul_4D(t *testing.T) {
	b := New()
	// Two heads, identity on the first, doubling on the second.
	q := raw(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, 1, 2, 2, 2)
	w := raw(t, []float32{1, 0, 0, 1, 2, 0, 0, 2}, 1, 2, 2, 2)

	out := b.BatchMatMul(q, w)

	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 2, 4, 6, 8}, out.AsFloat32())
}

func TestBatchMatMul_MismatchPanics(t *testing.T) {
	b := New()
	assert.Panics(t, func() {
		b.BatchMatMul(raw(t, make([]float32, 8), 2, 2, 2), raw(t, make([]float32, 12), 3, 2, 2))
	})
}

func TestTranspose_Permute4D(t *testing.T) {
	b := New()
	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i)
	}
	x := raw(t, data, 2, 3, 2, 2)

	out := b.Transpose(x, 0, 2, 1, 3)

	require.Equal(t, tensor.Shape{2, 2, 3, 2}, out.Shape())
	// out[0,1,2,1] == x[0,2,1,1]
	assert.Equal(t, x.AsFloat32()[0*12+2*4+1*2+1], out.AsFloat32()[0*12+1*6+2*2+1])

	back := b.Transpose(out, 0, 2, 1, 3)
	assert.Equal(t, data, back.AsFloat32())
}

func TestCatAndNarrow(t *testing.T) {
	b := New()
	cls := raw(t, []float32{9, 9}, 1, 1, 2)
	patches := raw(t, []float32{1, 2, 3, 4}, 1, 2, 2)

	seq := b.Cat([]*tensor.RawTensor{cls, patches}, 1)
	require.Equal(t, tensor.Shape{1, 3, 2}, seq.Shape())
	assert.Equal(t, []float32{9, 9, 1, 2, 3, 4}, seq.AsFloat32())

	first := b.Narrow(seq, 1, 0, 1)
	assert.Equal(t, tensor.Shape{1, 1, 2}, first.Shape())
	assert.Equal(t, []float32{9, 9}, first.AsFloat32())

	rest := b.Narrow(seq, 1, 1, 2)
	assert.Equal(t, patches.AsFloat32(), rest.AsFloat32())
}

func TestExpand(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2}, 1, 1, 2)

	out := b.Expand(x, tensor.Shape{3, 1, 2})

	assert.Equal(t, []float32{1, 2, 1, 2, 1, 2}, out.AsFloat32())
	assert.Panics(t, func() { b.Expand(x, tensor.Shape{3, 1, 3}) })
}

func TestSoftmax_RowsSumToOne(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 1000, 1001, 1002}, 2, 3)

	out := b.Softmax(x, -1).AsFloat32()

	for r := 0; r < 2; r++ {
		var s float32
		for c := 0; c < 3; c++ {
			s += out[r*3+c]
		}
		assert.InDelta(t, 1.0, s, 1e-6)
	}
	// Shift invariance keeps large logits finite.
	assert.InDelta(t, out[0], out[3], 1e-6)
}

func TestSoftmax_AllSentinelRowIsUniform(t *testing.T) {
	b := New()
	x := raw(t, []float32{-1e9, -1e9, -1e9, -1e9}, 1, 4)

	out := b.Softmax(x, 1).AsFloat32()

	for _, v := range out {
		assert.InDelta(t, 0.25, v, 1e-7)
	}
}

func TestReductions(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	assert.Equal(t, []float32{21}, b.Sum(x).AsFloat32())
	assert.Equal(t, []float32{5, 7, 9}, b.SumDim(x, 0, false).AsFloat32())
	mean := b.MeanDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, mean.Shape())
	assert.Equal(t, []float32{2, 5}, mean.AsFloat32())
	assert.Equal(t, []int32{2, 2}, b.Argmax(x, 1).AsInt32())
}

func TestWhere_ScalarFill(t *testing.T) {
	b := New()
	scores := raw(t, []float32{0.5, 0, -0.25, 0}, 2, 2)
	zero := raw(t, []float32{0}, 1)
	fill := raw(t, []float32{-1e9}, 1)

	mask := b.NotEqual(scores, zero)
	out := b.Where(mask, scores, fill)

	assert.Equal(t, []bool{true, false, true, false}, mask.AsBool())
	assert.Equal(t, []float32{0.5, -1e9, -0.25, -1e9}, out.AsFloat32())
}

func TestAnd_BroadcastTril(t *testing.T) {
	b := New()
	m, err := tensor.NewRaw(tensor.Shape{2, 1, 2, 2}, tensor.Bool, tensor.CPU)
	require.NoError(t, err)
	for i := range m.AsBool() {
		m.AsBool()[i] = true
	}
	tril, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Bool, tensor.CPU)
	require.NoError(t, err)
	copy(tril.AsBool(), []bool{true, false, true, true})

	out := b.And(m, tril)

	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, out.Shape())
	assert.Equal(t, []bool{true, false, true, true, true, false, true, true}, out.AsBool())
}

func TestConv2D_PatchProjection(t *testing.T) {
	b := New()
	// 4x4 single-channel image, 2x2 patches, one summing filter.
	img := make([]float32, 16)
	for i := range img {
		img[i] = float32(i)
	}
	x := raw(t, img, 1, 1, 4, 4)
	k := raw(t, []float32{1, 1, 1, 1}, 1, 1, 2, 2)

	out := b.Conv2D(x, k, 2, 0)

	require.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{0 + 1 + 4 + 5, 2 + 3 + 6 + 7, 8 + 9 + 12 + 13, 10 + 11 + 14 + 15}, out.AsFloat32())
}

func TestConv2DBackward_MatchesFiniteDifference(t *testing.T) {
	b := New()
	x := raw(t, []float32{0.1, -0.2, 0.3, 0.4, 0.5, -0.6, 0.7, 0.8, -0.9}, 1, 1, 3, 3)
	k := raw(t, []float32{0.2, -0.1, 0.05, 0.3}, 1, 1, 2, 2)
	grad := raw(t, []float32{1, 1, 1, 1}, 1, 1, 2, 2)

	dk := b.Conv2DKernelBackward(x, k, grad, 1, 0).AsFloat32()
	dx := b.Conv2DInputBackward(x, k, grad, 1, 0).AsFloat32()

	sumConv := func() float64 {
		var s float64
		for _, v := range b.Conv2D(x, k, 1, 0).AsFloat32() {
			s += float64(v)
		}
		return s
	}
	const eps = 1e-3
	for i := range k.AsFloat32() {
		kd := k.AsFloat32()
		orig := kd[i]
		kd[i] = orig + eps
		up := sumConv()
		kd[i] = orig - eps
		down := sumConv()
		kd[i] = orig
		assert.InDelta(t, (up-down)/(2*eps), float64(dk[i]), 1e-2, "kernel %d", i)
	}
	for i := range x.AsFloat32() {
		xd := x.AsFloat32()
		orig := xd[i]
		xd[i] = orig + eps
		up := sumConv()
		xd[i] = orig - eps
		down := sumConv()
		xd[i] = orig
		assert.InDelta(t, (up-down)/(2*eps), float64(dx[i]), 1e-2, "input %d", i)
	}
}

func TestCrossEntropy(t *testing.T) {
	b := New()
	logits := raw(t, []float32{0, 0, 0, 0}, 2, 2)
	targets, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(targets.AsInt32(), []int32{0, 1})

	loss := b.CrossEntropy(logits, targets).AsFloat32()[0]

	assert.InDelta(t, math.Log(2), float64(loss), 1e-6)

	copy(targets.AsInt32(), []int32{0, 2})
	assert.Panics(t, func() { b.CrossEntropy(logits, targets) })
}

func TestGELU(t *testing.T) {
	assert.InDelta(t, 0.0, GELUScalar(0), 1e-7)
	assert.InDelta(t, 0.8413, GELUScalar(1), 1e-4)
}

func BenchmarkBatchMatMul_Attention(b *testing.B) {
	cpu := New()
	q, _ := tensor.NewRaw(tensor.Shape{8, 8, 65, 16}, tensor.Float32, tensor.CPU)
	k, _ := tensor.NewRaw(tensor.Shape{8, 8, 16, 65}, tensor.Float32, tensor.CPU)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cpu.BatchMatMul(q, k)
	}
}
