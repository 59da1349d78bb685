package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/vit/internal/tensor"
)

// StateDict maps parameter names to their raw tensors.
func StateDict[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies state into params after validating names, shapes and
// dtypes. Nothing is written unless the whole dict matches.
func LoadStateDict[B tensor.Backend](params []*Parameter[B], state map[string]*tensor.RawTensor) error {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name()] = true
		raw, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrStateDict, p.Name())
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("%w: %q has dtype %s, want float32", ErrStateDict, p.Name(), raw.DType())
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%w: %q has shape %v, want %v", ErrStateDict, p.Name(), raw.Shape(), p.Tensor().Shape())
		}
	}

	var unknown []string
	for name := range state {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unexpected %s", ErrStateDict, strings.Join(unknown, ", "))
	}

	for _, p := range params {
		copy(p.Tensor().Data(), state[p.Name()].AsFloat32())
	}
	return nil
}
