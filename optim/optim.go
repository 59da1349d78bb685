// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers and learning-rate schedules.
package optim

import (
	"github.com/born-ml/vit/internal/optim"
	"github.com/born-ml/vit/nn"
	"github.com/born-ml/vit/tensor"
)

// Optimizer updates parameters from gradients.
type Optimizer = optim.Optimizer

// Adam is the Adam optimizer.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig holds Adam hyperparameters.
type AdamConfig = optim.AdamConfig

// DefaultAdamConfig returns lr 1e-5, betas (0.9, 0.999), eps 1e-8.
func DefaultAdamConfig() AdamConfig { return optim.DefaultAdamConfig() }

// NewAdam creates an Adam optimizer over params.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], cfg AdamConfig, backend B) *Adam[B] {
	return optim.NewAdam(params, cfg, backend)
}

// SGD is stochastic gradient descent with momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig holds SGD hyperparameters.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer over params.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], cfg SGDConfig, backend B) *SGD[B] {
	return optim.NewSGD(params, cfg, backend)
}

// Scheduler adjusts the learning rate during training.
type Scheduler = optim.Scheduler

// PlateauConfig configures ReduceLROnPlateau.
type PlateauConfig = optim.PlateauConfig

// ReduceLROnPlateau lowers the rate when a metric stops improving.
type ReduceLROnPlateau = optim.ReduceLROnPlateau

// DefaultPlateauConfig returns factor 0.1, patience 10, threshold 1e-4.
func DefaultPlateauConfig() PlateauConfig { return optim.DefaultPlateauConfig() }

// NewReduceLROnPlateau wraps opt.
func NewReduceLROnPlateau(opt Optimizer, cfg PlateauConfig) *ReduceLROnPlateau {
	return optim.NewReduceLROnPlateau(opt, cfg)
}

// WarmupScheduler is the inverse square root schedule with linear warmup.
type WarmupScheduler = optim.WarmupScheduler

// NewWarmupScheduler wraps opt; warmup <= 0 selects 4000 steps.
func NewWarmupScheduler(opt Optimizer, dModel, warmup int, scale float64) *WarmupScheduler {
	return optim.NewWarmupScheduler(opt, dModel, warmup, scale)
}
