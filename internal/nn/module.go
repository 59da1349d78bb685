// Package nn implements the vision transformer and the layers it is built
// from.
//
// Every layer is generic over the compute backend so the same model runs on
// the CPU backend, the WebGPU backend, or either one wrapped by autodiff for
// training:
//
//	backend := autodiff.New(cpu.New())
//	model, err := nn.NewViT(nn.DefaultViTConfig(), backend)
//	logits := model.Forward(images) // [batch, num_classes]
package nn

import (
	"math/rand"

	"github.com/born-ml/vit/internal/tensor"
)

// Module is the common interface of all layers.
type Module[B tensor.Backend] interface {
	// Forward computes the layer output.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, nested ones included,
	// in a fixed order.
	Parameters() []*Parameter[B]
}

// Initializer is implemented by layers that can re-draw their parameters.
// Containers call their children in a fixed, documented order so that a
// given seed always produces the same weights.
type Initializer interface {
	Initialize(rng *rand.Rand)
}

// Trainable is implemented by layers whose behavior differs between
// training and evaluation (dropout).
type Trainable interface {
	SetTraining(training bool)
}
