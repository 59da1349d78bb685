// Package ops defines the differentiable operations recorded on the
// gradient tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and, given dL/doutput, returns dL/dinput for every input in order.
// A nil entry means the input receives no gradient (integer targets,
// boolean masks).
package ops

import "github.com/born-ml/vit/internal/tensor"

// Operation is a differentiable node in the computation graph.
type Operation interface {
	// Backward returns one gradient per input, in Inputs() order.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors of the forward call.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by the forward call.
	Output() *tensor.RawTensor
}

// node stores the forward-pass tensors shared by every operation.
type node struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func newNode(output *tensor.RawTensor, inputs ...*tensor.RawTensor) node {
	return node{inputs: inputs, output: output}
}

// Inputs returns the recorded inputs.
func (n *node) Inputs() []*tensor.RawTensor { return n.inputs }

// Output returns the recorded output.
func (n *node) Output() *tensor.RawTensor { return n.output }
