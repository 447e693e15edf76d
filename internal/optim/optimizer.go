// Package optim implements optimization algorithms for training the tagger.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with optional momentum
//   - Adagrad, RMSProp, Adam: adaptive per-weight learning rates
//   - ExponentialDecay: learning-rate schedule driven by the global step
//   - ClipByGlobalNorm: gradient clipping across all parameters
//
// Example usage:
//
//	optimizer, _ := optim.New("Adam", model.Parameters(), 0.001)
//	schedule := optim.ExponentialDecay{Base: 0.001, DecaySteps: 1000, DecayRate: 0.96, Staircase: true}
//
//	for step := range steps {
//	    tape := autodiff.NewGradientTape()
//	    tape.StartRecording()
//	    loss := computeLoss(tape, model, batch)
//	    grads := tape.Backward(loss)
//
//	    optimizer.SetLR(schedule.At(step))
//	    optimizer.Step(grads)
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"errors"
	"fmt"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/tensor"
)

// ErrUnknownOptimizer is returned by New for unsupported names.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters in place based on computed gradients
// to minimize the loss function during training.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes the gradient map from GradientTape.Backward. Parameters without
	// an entry did not influence the loss and are left unchanged.
	Step(grads autodiff.Gradients)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR replaces the learning rate, e.g. from a schedule.
	SetLR(lr float64)
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}

// Names accepted by New.
const (
	NameSGD      = "SGD"
	NameMomentum = "Momentum"
	NameAdagrad  = "Adagrad"
	NameRMSProp  = "RMSProp"
	NameAdam     = "Adam"
)

// New creates an optimizer by name with its default hyper-parameters and
// the given learning rate. "Momentum" is SGD with momentum 0.9.
func New(name string, params []*nn.Parameter, lr float64) (Optimizer, error) {
	switch name {
	case NameSGD:
		return NewSGD(params, SGDConfig{LR: lr}), nil
	case NameMomentum:
		return NewSGD(params, SGDConfig{LR: lr, Momentum: 0.9}), nil
	case NameAdagrad:
		return NewAdagrad(params, AdagradConfig{LR: lr}), nil
	case NameRMSProp:
		return NewRMSProp(params, RMSPropConfig{LR: lr}), nil
	case NameAdam:
		return NewAdam(params, AdamConfig{LR: lr}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, name)
	}
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient(param *nn.Parameter, grads autodiff.Gradients) *tensor.Tensor {
	if param == nil {
		return nil
	}
	return grads.Of(param.Tensor())
}

// zeroGrads clears the stored gradients of params.
func zeroGrads(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// state returns the per-parameter slot of m, allocating zeros on first use.
func state(m map[*nn.Parameter]*tensor.Tensor, p *nn.Parameter) []float64 {
	s, ok := m[p]
	if !ok {
		s = tensor.ZerosLike(p.Tensor())
		m[p] = s
	}
	return s.Data()
}
