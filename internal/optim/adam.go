package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/vit/internal/nn"
	"github.com/born-ml/vit/internal/tensor"
)

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LR          float32    // learning rate
	Betas       [2]float32 // running average coefficients
	Eps         float32    // denominator floor
	WeightDecay float32    // L2 penalty added to the gradient
}

// DefaultAdamConfig returns lr 1e-5, betas (0.9, 0.999), eps 1e-8, the
// settings the vision transformer is trained with.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{LR: 1e-5, Betas: [2]float32{0.9, 0.999}, Eps: 1e-8}
}

// Adam implements Adaptive Moment Estimation:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * g
//	v_t = beta2 * v_{t-1} + (1-beta2) * g²
//	param -= lr * (m_t / (1-beta1^t)) / (sqrt(v_t / (1-beta2^t)) + eps)
//
// Moment buffers are keyed by parameter name so they survive a checkpoint.
type Adam[B tensor.Backend] struct {
	params  []*nn.Parameter[B]
	cfg     AdamConfig
	t       int64
	m       map[string]*tensor.Tensor[float32, B]
	v       map[string]*tensor.Tensor[float32, B]
	backend B
}

// NewAdam creates an Adam optimizer. Zero fields of cfg take their defaults.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], cfg AdamConfig, backend B) *Adam[B] {
	def := DefaultAdamConfig()
	if cfg.LR == 0 {
		cfg.LR = def.LR
	}
	if cfg.Betas[0] == 0 {
		cfg.Betas[0] = def.Betas[0]
	}
	if cfg.Betas[1] == 0 {
		cfg.Betas[1] = def.Betas[1]
	}
	if cfg.Eps == 0 {
		cfg.Eps = def.Eps
	}
	return &Adam[B]{
		params:  params,
		cfg:     cfg,
		m:       make(map[string]*tensor.Tensor[float32, B]),
		v:       make(map[string]*tensor.Tensor[float32, B]),
		backend: backend,
	}
}

// Step performs one Adam update.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	bc1 := float32(1 - math.Pow(float64(a.cfg.Betas[0]), float64(a.t)))
	bc2 := float32(1 - math.Pow(float64(a.cfg.Betas[1]), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		m, v := a.moments(param)
		a.update(param.Tensor().Raw().AsFloat32(), grad.AsFloat32(), m.Data(), v.Data(), bc1, bc2)
	}
}

func (a *Adam[B]) moments(param *nn.Parameter[B]) (m, v *tensor.Tensor[float32, B]) {
	name := param.Name()
	m, ok := a.m[name]
	if !ok {
		m = tensor.Zeros[float32](param.Tensor().Shape(), a.backend)
		a.m[name] = m
	}
	v, ok = a.v[name]
	if !ok {
		v = tensor.Zeros[float32](param.Tensor().Shape(), a.backend)
		a.v[name] = v
	}
	return m, v
}

func (a *Adam[B]) update(p, g, m, v []float32, bc1, bc2 float32) {
	beta1, beta2 := a.cfg.Betas[0], a.cfg.Betas[1]
	for i := range p {
		gi := g[i]
		if a.cfg.WeightDecay != 0 {
			gi += a.cfg.WeightDecay * p[i]
		}
		m[i] = beta1*m[i] + (1-beta1)*gi
		v[i] = beta2*v[i] + (1-beta2)*gi*gi
		mHat := m[i] / bc1
		vHat := v[i] / bc2
		p[i] -= a.cfg.LR * mHat / (float32(math.Sqrt(float64(vHat))) + a.cfg.Eps)
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the learning rate.
func (a *Adam[B]) GetLR() float32 { return a.cfg.LR }

// SetLR sets the learning rate.
func (a *Adam[B]) SetLR(lr float32) { a.cfg.LR = lr }

// Steps returns the number of updates applied.
func (a *Adam[B]) Steps() int64 { return a.t }

// State exports the step count, hyperparameters and moment buffers
// ("<param>.m", "<param>.v").
func (a *Adam[B]) State() *nn.OptimizerState {
	s := &nn.OptimizerState{
		Kind: "adam",
		Step: a.t,
		Config: map[string]float64{
			"lr":           float64(a.cfg.LR),
			"beta1":        float64(a.cfg.Betas[0]),
			"beta2":        float64(a.cfg.Betas[1]),
			"eps":          float64(a.cfg.Eps),
			"weight_decay": float64(a.cfg.WeightDecay),
		},
		Tensors: make(map[string]*tensor.RawTensor, 2*len(a.m)),
	}
	for name, m := range a.m {
		s.Tensors[name+".m"] = m.Raw()
	}
	for name, v := range a.v {
		s.Tensors[name+".v"] = v.Raw()
	}
	return s
}

// LoadState restores an Adam state exported by State.
func (a *Adam[B]) LoadState(state *nn.OptimizerState) error {
	if state.Kind != "adam" {
		return fmt.Errorf("adam: cannot load %q optimizer state", state.Kind)
	}
	if lr, ok := state.Config["lr"]; ok {
		a.cfg.LR = float32(lr)
	}
	if b1, ok := state.Config["beta1"]; ok {
		a.cfg.Betas[0] = float32(b1)
	}
	if b2, ok := state.Config["beta2"]; ok {
		a.cfg.Betas[1] = float32(b2)
	}
	a.t = state.Step
	for _, param := range a.params {
		m, v := a.moments(param)
		if err := loadBuffer(state, param.Name()+".m", m.Raw()); err != nil {
			return err
		}
		if err := loadBuffer(state, param.Name()+".v", v.Raw()); err != nil {
			return err
		}
	}
	return nil
}
