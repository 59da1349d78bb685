package nn

import (
	"fmt"

	"github.com/born-ml/vit/internal/tensor"
)

// CrossEntropyLoss is the mean negative log-likelihood of integer class
// targets under softmax(logits). The log-softmax is fused for stability.
//
// Example:
//
//	criterion := nn.NewCrossEntropyLoss[B]()
//	loss := criterion.Forward(logits, labels) // scalar
type CrossEntropyLoss[B tensor.Backend] struct{}

// NewCrossEntropyLoss creates the loss.
func NewCrossEntropyLoss[B tensor.Backend]() *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{}
}

// Forward returns the scalar loss for logits [N, C] and targets [N].
// Targets outside [0, C) panic.
func (c *CrossEntropyLoss[B]) Forward(logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	ls, ts := logits.Shape(), targets.Shape()
	if len(ls) != 2 || len(ts) != 1 || ls[0] != ts[0] {
		panic(fmt.Sprintf("cross entropy: logits %v and targets %v do not match", ls, ts))
	}
	return tensor.New[float32](logits.Backend().CrossEntropy(logits.Raw(), targets.Raw()), logits.Backend())
}

// Accuracy returns the fraction of rows whose argmax equals the target,
// and the number of correct rows.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets []int32) (float64, int) {
	pred := logits.Argmax(-1).Data()
	if len(pred) != len(targets) {
		panic(fmt.Sprintf("accuracy: %d predictions for %d targets", len(pred), len(targets)))
	}
	if len(pred) == 0 {
		return 0, 0
	}
	correct := 0
	for i, p := range pred {
		if p == targets[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(pred)), correct
}
