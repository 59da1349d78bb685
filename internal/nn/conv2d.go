package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// Conv2D is a 2D convolution with bias over [N, C, H, W] inputs.
//
// The kernel has shape [out_channels, in_channels, k, k] and the bias
// [out_channels]. The patch embedding uses it with stride == kernel size,
// which cuts the image into non-overlapping patches.
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	weight      *Parameter[B]
	bias        *Parameter[B]
}

// NewConv2D creates a square-kernel convolution.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelSize, stride, padding int, backend B) *Conv2D[B] {
	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight: NewParameter("weight", tensor.Zeros[float32](
			tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, backend)),
		bias: NewParameter("bias", tensor.Zeros[float32](tensor.Shape{outChannels}, backend)),
	}
}

// Forward convolves input [N, C, H, W] into [N, F, OH, OW].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: expected input [N, %d, H, W], got %v", c.inChannels, shape))
	}
	out := input.Conv2D(c.weight.Tensor(), c.stride, c.padding)
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}

// Initialize draws the kernel from N(0, WeightStd²) and the bias from
// U(-1/sqrt(fan_in), 1/sqrt(fan_in)), fan_in = C*k*k.
func (c *Conv2D[B]) Initialize(rng *rand.Rand) {
	fillNormal(c.weight, WeightStd, rng)
	fillUniform(c.bias, fanInBound(c.inChannels*c.kernelSize*c.kernelSize), rng)
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter.
func (c *Conv2D[B]) Bias() *Parameter[B] { return c.bias }
