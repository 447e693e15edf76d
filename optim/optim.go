// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training the tagger.
//
// # Overview
//
// This package contains:
//   - SGD with optional momentum
//   - Adagrad, RMSProp and Adam
//   - ExponentialDecay learning-rate schedule
//   - ClipByGlobalNorm gradient clipping
//
// # Basic Usage
//
//	optimizer, err := optim.New("Adam", model.Parameters(), 0.001)
//	schedule := optim.ExponentialDecay{Base: 0.001, DecaySteps: 1000, DecayRate: 0.9}
//
//	optimizer.SetLR(schedule.At(step))
//	optimizer.Step(grads)
package optim

import (
	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// Optimizer names accepted by New.
const (
	NameSGD      = optim.NameSGD
	NameMomentum = optim.NameMomentum
	NameAdagrad  = optim.NameAdagrad
	NameRMSProp  = optim.NameRMSProp
	NameAdam     = optim.NameAdam
)

// ErrUnknownOptimizer is returned by New for unsupported names.
var ErrUnknownOptimizer = optim.ErrUnknownOptimizer

// New creates an optimizer by name with default hyper-parameters.
func New(name string, params []*nn.Parameter, lr float64) (Optimizer, error) {
	return optim.New(name, params, lr)
}

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// Adagrad represents the Adagrad optimizer.
type Adagrad = optim.Adagrad

// AdagradConfig contains configuration for Adagrad.
type AdagradConfig = optim.AdagradConfig

// NewAdagrad creates a new Adagrad optimizer.
func NewAdagrad(params []*nn.Parameter, config AdagradConfig) *Adagrad {
	return optim.NewAdagrad(params, config)
}

// RMSProp represents the RMSProp optimizer.
type RMSProp = optim.RMSProp

// RMSPropConfig contains configuration for RMSProp.
type RMSPropConfig = optim.RMSPropConfig

// NewRMSProp creates a new RMSProp optimizer.
func NewRMSProp(params []*nn.Parameter, config RMSPropConfig) *RMSProp {
	return optim.NewRMSProp(params, config)
}

// ExponentialDecay is a step-driven learning-rate schedule.
type ExponentialDecay = optim.ExponentialDecay

// ClipByGlobalNorm rescales grads so that their joint norm is at most
// maxNorm and returns the norm before clipping.
func ClipByGlobalNorm(params []*nn.Parameter, grads autodiff.Gradients, maxNorm float64) float64 {
	return optim.ClipByGlobalNorm(params, grads, maxNorm)
}
