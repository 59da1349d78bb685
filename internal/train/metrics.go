package train

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// ConfusionMatrix counts (target, prediction) pairs.
type ConfusionMatrix struct {
	classes []string
	counts  [][]int // [target][prediction]
}

// NewConfusionMatrix creates an empty matrix over classes.
func NewConfusionMatrix(classes []string) *ConfusionMatrix {
	counts := make([][]int, len(classes))
	for i := range counts {
		counts[i] = make([]int, len(classes))
	}
	return &ConfusionMatrix{classes: classes, counts: counts}
}

// Add records one prediction. Out-of-range classes panic.
func (m *ConfusionMatrix) Add(target, pred int) {
	m.counts[target][pred]++
}

// AddBatch records paired slices.
func (m *ConfusionMatrix) AddBatch(targets, preds []int32) {
	if len(targets) != len(preds) {
		panic(fmt.Sprintf("confusion matrix: %d targets for %d predictions", len(targets), len(preds)))
	}
	for i, t := range targets {
		m.Add(int(t), int(preds[i]))
	}
}

// Count returns how often target was predicted as pred.
func (m *ConfusionMatrix) Count(target, pred int) int { return m.counts[target][pred] }

// Total returns the number of recorded predictions.
func (m *ConfusionMatrix) Total() int {
	n := 0
	for _, row := range m.counts {
		for _, c := range row {
			n += c
		}
	}
	return n
}

// Accuracy returns the trace over the total, or 0 when empty.
func (m *ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	correct := 0
	for i := range m.counts {
		correct += m.counts[i][i]
	}
	return float64(correct) / float64(total)
}

// PerClassAccuracy returns recall per target class; classes never seen
// as a target report 0.
func (m *ConfusionMatrix) PerClassAccuracy() []float64 {
	out := make([]float64, len(m.classes))
	for i, row := range m.counts {
		n := 0
		for _, c := range row {
			n += c
		}
		if n > 0 {
			out[i] = float64(row[i]) / float64(n)
		}
	}
	return out
}

// String renders rows as targets and columns as predictions, followed by
// per-class accuracy.
func (m *ConfusionMatrix) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 1, ' ', tabwriter.AlignRight)

	fmt.Fprint(w, "\t")
	for _, c := range m.classes {
		fmt.Fprintf(w, "%s\t", c)
	}
	fmt.Fprint(w, "acc\t\n")

	acc := m.PerClassAccuracy()
	for i, row := range m.counts {
		fmt.Fprintf(w, "%s\t", m.classes[i])
		for _, c := range row {
			fmt.Fprintf(w, "%d\t", c)
		}
		fmt.Fprintf(w, "%.3f\t\n", acc[i])
	}
	w.Flush()
	return sb.String()
}

// Metrics summarizes a pass over a dataset.
type Metrics struct {
	Loss      float64
	Accuracy  float64
	Samples   int
	Confusion *ConfusionMatrix
}

// EpochResult is one epoch of Fit.
type EpochResult struct {
	Epoch     int
	TrainLoss float64
	TrainAcc  float64
	Val       Metrics
	LR        float32
}

// History is the sequence of completed epochs.
type History []EpochResult

// Best returns the epoch with the lowest validation loss.
func (h History) Best() (EpochResult, bool) {
	if len(h) == 0 {
		return EpochResult{}, false
	}
	best := h[0]
	for _, e := range h[1:] {
		if e.Val.Loss < best.Val.Loss {
			best = e
		}
	}
	return best, true
}
