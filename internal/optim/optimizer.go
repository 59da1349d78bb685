// Package optim implements the optimizers and learning-rate schedules used to
// train the vision transformer.
//
// Example:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.DefaultAdamConfig(), backend)
//	plateau := optim.NewReduceLROnPlateau(optimizer, optim.DefaultPlateauConfig())
//
//	for epoch := range epochs {
//	    backend.Tape().StartRecording()
//	    loss := criterion.Forward(model.Forward(images), labels)
//	    grads := autodiff.Backward(loss, backend)
//	    optimizer.Step(grads)
//	    backend.Tape().Clear()
//
//	    plateau.Step(valLoss)
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/internal/tensor"
)

// Optimizer updates parameters from a gradient map produced by
// autodiff.Backward.
type Optimizer interface {
	// Step applies one update. Parameters without a gradient are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears stored parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR replaces the learning rate; schedulers call it.
	SetLR(lr float32)

	// State exports hyperparameters and buffers for checkpoints.
	State() *nn.OptimizerState

	// LoadState restores a previously exported state.
	LoadState(state *nn.OptimizerState) error
}

// getGradient returns the gradient of param, or nil if it took no part in
// the forward pass.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	grad, ok := grads[param.Tensor().Raw()]
	if !ok {
		return nil
	}
	if !grad.Shape().Equal(param.Tensor().Shape()) {
		panic(fmt.Sprintf("optim: gradient shape %v does not match parameter %s %v",
			grad.Shape(), param.Name(), param.Tensor().Shape()))
	}
	return grad
}

// loadBuffer copies a saved buffer into dst after checking its shape.
func loadBuffer(state *nn.OptimizerState, key string, dst *tensor.RawTensor) error {
	src, ok := state.Tensors[key]
	if !ok {
		return nil
	}
	if src.DType() != tensor.Float32 || !src.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("optimizer buffer %s: got %v %s, want %v float32", key, src.Shape(), src.DType(), dst.Shape())
	}
	copy(dst.AsFloat32(), src.AsFloat32())
	return nil
}
