package optim

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/vit/internal/nn"
)

// Scheduler adjusts an optimizer's learning rate over training.
type Scheduler interface {
	// Step advances the schedule. metric is the monitored value for
	// metric-driven schedules and ignored by step-driven ones.
	Step(metric float64)

	// LR returns the learning rate most recently applied.
	LR() float32

	// State exports the schedule position for checkpoints.
	State() *nn.SchedulerState

	// LoadState restores a position exported by a schedule of the same kind.
	LoadState(state *nn.SchedulerState) error
}

// Scheduler kinds recorded in checkpoints.
const (
	kindPlateau = "plateau"
	kindWarmup  = "warmup"
)

// PlateauConfig configures ReduceLROnPlateau. The monitored metric is
// minimized; an epoch counts as an improvement when
// metric < best * (1 - Threshold).
type PlateauConfig struct {
	Factor    float64 // multiplier applied on reduction, in (0, 1)
	Patience  int     // epochs without improvement tolerated
	Threshold float64 // relative improvement threshold
	Cooldown  int     // epochs to wait after a reduction
	MinLR     float64
	Eps       float64 // reductions smaller than this are ignored
}

// DefaultPlateauConfig returns factor 0.1, patience 10, threshold 1e-4,
// no cooldown, min lr 0 and eps 1e-8.
func DefaultPlateauConfig() PlateauConfig {
	return PlateauConfig{Factor: 0.1, Patience: 10, Threshold: 1e-4, Eps: 1e-8}
}

// Validate checks the configuration.
func (c PlateauConfig) Validate() error {
	switch {
	case c.Factor <= 0 || c.Factor >= 1:
		return errors.New("plateau: factor must be in (0, 1)")
	case c.Patience < 0 || c.Cooldown < 0:
		return errors.New("plateau: patience and cooldown must be non-negative")
	case c.Threshold < 0 || c.MinLR < 0 || c.Eps < 0:
		return errors.New("plateau: threshold, min lr and eps must be non-negative")
	}
	return nil
}

// ReduceLROnPlateau lowers the learning rate once the monitored metric has
// stopped improving for more than Patience epochs.
type ReduceLROnPlateau struct {
	opt      Optimizer
	cfg      PlateauConfig
	best     float64
	numBad   int
	cooldown int
	lastLR   float32
}

// NewReduceLROnPlateau wraps opt. An invalid cfg panics.
func NewReduceLROnPlateau(opt Optimizer, cfg PlateauConfig) *ReduceLROnPlateau {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &ReduceLROnPlateau{opt: opt, cfg: cfg, best: math.Inf(1), lastLR: opt.GetLR()}
}

// Step records metric for one epoch.
func (s *ReduceLROnPlateau) Step(metric float64) {
	if metric < s.best*(1-s.cfg.Threshold) {
		s.best = metric
		s.numBad = 0
	} else {
		s.numBad++
	}

	if s.cooldown > 0 {
		s.cooldown--
		s.numBad = 0
	}

	if s.numBad > s.cfg.Patience {
		s.reduce()
		s.cooldown = s.cfg.Cooldown
		s.numBad = 0
	}
	s.lastLR = s.opt.GetLR()
}

func (s *ReduceLROnPlateau) reduce() {
	old := float64(s.opt.GetLR())
	next := math.Max(old*s.cfg.Factor, s.cfg.MinLR)
	if old-next > s.cfg.Eps {
		s.opt.SetLR(float32(next))
	}
}

// LR returns the current learning rate.
func (s *ReduceLROnPlateau) LR() float32 { return s.lastLR }

// Best returns the best metric seen so far.
func (s *ReduceLROnPlateau) Best() float64 { return s.best }

// State returns best, num_bad and cooldown. best is omitted until a metric
// has been seen.
func (s *ReduceLROnPlateau) State() *nn.SchedulerState {
	values := map[string]float64{
		"num_bad":  float64(s.numBad),
		"cooldown": float64(s.cooldown),
	}
	if !math.IsInf(s.best, 1) {
		values["best"] = s.best
	}
	return &nn.SchedulerState{Kind: kindPlateau, Values: values}
}

// LoadState restores the plateau counters.
func (s *ReduceLROnPlateau) LoadState(state *nn.SchedulerState) error {
	if state.Kind != kindPlateau {
		return fmt.Errorf("plateau: cannot load %q scheduler state", state.Kind)
	}
	s.best = math.Inf(1)
	if best, ok := state.Values["best"]; ok {
		s.best = best
	}
	s.numBad = int(state.Values["num_bad"])
	s.cooldown = int(state.Values["cooldown"])
	s.lastLR = s.opt.GetLR()
	return nil
}

// DefaultWarmupSteps is the warmup length used when none is given.
const DefaultWarmupSteps = 4000

// WarmupScheduler is the inverse square root schedule with linear warmup:
//
//	lr = scale * d_model^-0.5 * min(step^-0.5, step * warmup^-1.5)
//
// It is stepped once per optimizer update.
type WarmupScheduler struct {
	opt    Optimizer
	dModel int
	warmup int
	scale  float64
	step   int
}

// NewWarmupScheduler wraps opt. warmup <= 0 selects DefaultWarmupSteps and
// scale <= 0 selects 1.
func NewWarmupScheduler(opt Optimizer, dModel, warmup int, scale float64) *WarmupScheduler {
	if dModel <= 0 {
		panic("warmup scheduler: d_model must be positive")
	}
	if warmup <= 0 {
		warmup = DefaultWarmupSteps
	}
	if scale <= 0 {
		scale = 1
	}
	s := &WarmupScheduler{opt: opt, dModel: dModel, warmup: warmup, scale: scale}
	return s
}

// Step advances one update and applies the new learning rate.
func (s *WarmupScheduler) Step(float64) {
	s.step++
	s.opt.SetLR(float32(s.rate(s.step)))
}

func (s *WarmupScheduler) rate(step int) float64 {
	st := float64(step)
	return s.scale * math.Pow(float64(s.dModel), -0.5) *
		math.Min(math.Pow(st, -0.5), st*math.Pow(float64(s.warmup), -1.5))
}

// LR returns the current learning rate.
func (s *WarmupScheduler) LR() float32 { return s.opt.GetLR() }

// Steps returns the number of updates seen.
func (s *WarmupScheduler) Steps() int { return s.step }

// State returns the update count.
func (s *WarmupScheduler) State() *nn.SchedulerState {
	return &nn.SchedulerState{Kind: kindWarmup, Values: map[string]float64{"step": float64(s.step)}}
}

// LoadState moves the schedule to the stored update count and applies the
// rate for that step.
func (s *WarmupScheduler) LoadState(state *nn.SchedulerState) error {
	if state.Kind != kindWarmup {
		return fmt.Errorf("warmup: cannot load %q scheduler state", state.Kind)
	}
	step := int(state.Values["step"])
	if step < 0 {
		return fmt.Errorf("warmup: negative step %d", step)
	}
	s.step = step
	if step > 0 {
		s.opt.SetLR(float32(s.rate(step)))
	}
	return nil
}
