package ops

import "github.com/born-ml/vit/internal/tensor"

// CrossEntropyOp is the mean negative log-likelihood of integer targets
// under softmax(logits).
//
// Backward:
//
//	dL/dlogits = (softmax(logits) - onehot(targets)) / N
type CrossEntropyOp struct{ node }

// NewCrossEntropyOp records a loss evaluation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{newNode(output, logits, targets)}
}

// Backward returns the logits gradient; targets get none.
func (op *CrossEntropyOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	logits, targets := op.inputs[0], op.inputs[1]
	probs := backend.Softmax(logits, 1)
	n, c := logits.Shape()[0], logits.Shape()[1]

	grad := probs.Clone()
	gd := grad.AsFloat32()
	scale := g.AsFloat32()[0] / float32(n)
	for i, t := range targets.AsInt32() {
		gd[i*c+int(t)]--
	}
	for i := range gd {
		gd[i] *= scale
	}
	return []*tensor.RawTensor{grad, nil}
}
