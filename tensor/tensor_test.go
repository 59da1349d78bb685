// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vit/backend/cpu"
	"github.com/born-ml/vit/tensor"
)

func TestTensor_BasicOps(t *testing.T) {
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	y := tensor.Ones[float32](tensor.Shape{3}, backend)

	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7}, x.Add(y).Data())
	assert.Equal(t, tensor.Shape{3, 2}, x.Transpose(1, 0).Shape())
	assert.Equal(t, tensor.Shape{6}, x.Reshape(-1).Shape())
	assert.Equal(t, []int32{2, 2}, x.Argmax(-1).Data())
	assert.Equal(t, tensor.Float32, x.DType())
}

func TestTensor_Softmax(t *testing.T) {
	backend := cpu.New()
	x := tensor.Randn(tensor.Shape{4, 5}, 3, rand.New(rand.NewSource(1)), backend)

	sums := x.Softmax(-1).SumDim(-1, false).Data()

	for _, s := range sums {
		assert.InDelta(t, 1, s, 1e-5)
	}
}

func TestTensor_WhereAndCat(t *testing.T) {
	backend := cpu.New()
	a := tensor.Full(tensor.Shape{1, 2}, float32(1), backend)
	b := tensor.Zeros[float32](tensor.Shape{1, 2}, backend)

	c := tensor.Cat([]*tensor.Tensor[float32, *cpu.Backend]{a, b}, 0)
	require.Equal(t, tensor.Shape{2, 2}, c.Shape())

	mask := c.NotEqual(tensor.Zeros[float32](tensor.Shape{1}, backend))
	out := tensor.Where(mask, c, tensor.Full(tensor.Shape{1}, float32(-1), backend))
	assert.Equal(t, []float32{1, 1, -1, -1}, out.Data())
}

func TestFromSlice_ShapeMismatch(t *testing.T) {
	_, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}, cpu.New())
	assert.Error(t, err)
}
