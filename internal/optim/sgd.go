package optim

import (
	"fmt"

	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/internal/tensor"
)

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR          float32
	Momentum    float32
	WeightDecay float32
}

// SGD is stochastic gradient descent with optional momentum:
//
//	v = momentum * v + g
//	param -= lr * v
type SGD[B tensor.Backend] struct {
	params   []*nn.Parameter[B]
	cfg      SGDConfig
	t        int64
	velocity map[string]*tensor.Tensor[float32, B]
	backend  B
}

// NewSGD creates an SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], cfg SGDConfig, backend B) *SGD[B] {
	return &SGD[B]{
		params:   params,
		cfg:      cfg,
		velocity: make(map[string]*tensor.Tensor[float32, B]),
		backend:  backend,
	}
}

// Step performs one update.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	s.t++
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		p, g := param.Tensor().Raw().AsFloat32(), grad.AsFloat32()

		if s.cfg.Momentum == 0 {
			for i := range p {
				p[i] -= s.cfg.LR * (g[i] + s.cfg.WeightDecay*p[i])
			}
			continue
		}

		vel, ok := s.velocity[param.Name()]
		if !ok {
			vel = tensor.Zeros[float32](param.Tensor().Shape(), s.backend)
			s.velocity[param.Name()] = vel
		}
		v := vel.Data()
		for i := range p {
			v[i] = s.cfg.Momentum*v[i] + g[i] + s.cfg.WeightDecay*p[i]
			p[i] -= s.cfg.LR * v[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the learning rate.
func (s *SGD[B]) GetLR() float32 { return s.cfg.LR }

// SetLR sets the learning rate.
func (s *SGD[B]) SetLR(lr float32) { s.cfg.LR = lr }

// State exports hyperparameters and momentum buffers ("<param>.velocity").
func (s *SGD[B]) State() *nn.OptimizerState {
	st := &nn.OptimizerState{
		Kind: "sgd",
		Step: s.t,
		Config: map[string]float64{
			"lr":           float64(s.cfg.LR),
			"momentum":     float64(s.cfg.Momentum),
			"weight_decay": float64(s.cfg.WeightDecay),
		},
		Tensors: make(map[string]*tensor.RawTensor, len(s.velocity)),
	}
	for name, v := range s.velocity {
		st.Tensors[name+".velocity"] = v.Raw()
	}
	return st
}

// LoadState restores an SGD state exported by State.
func (s *SGD[B]) LoadState(state *nn.OptimizerState) error {
	if state.Kind != "sgd" {
		return fmt.Errorf("sgd: cannot load %q optimizer state", state.Kind)
	}
	if lr, ok := state.Config["lr"]; ok {
		s.cfg.LR = float32(lr)
	}
	s.t = state.Step
	if s.cfg.Momentum == 0 {
		return nil
	}
	for _, param := range s.params {
		key := param.Name() + ".velocity"
		if _, ok := state.Tensors[key]; !ok {
			continue
		}
		vel := tensor.Zeros[float32](param.Tensor().Shape(), s.backend)
		if err := loadBuffer(state, key, vel.Raw()); err != nil {
			return err
		}
		s.velocity[param.Name()] = vel
	}
	return nil
}
