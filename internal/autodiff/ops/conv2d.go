package ops

import "github.com/born-ml/vit/internal/tensor"

// Conv2DOp is output = conv2d(input, kernel).
type Conv2DOp struct {
	node
	stride, padding int
}

// NewConv2DOp records a convolution.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{node: newNode(output, input, kernel), stride: stride, padding: padding}
}

// Backward computes input and kernel gradients via the backend kernels.
func (op *Conv2DOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(input, kernel, g, op.stride, op.padding),
		backend.Conv2DKernelBackward(input, kernel, g, op.stride, op.padding),
	}
}
