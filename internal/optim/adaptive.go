package optim

import (
	"math"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Adagrad scales each weight's step by the root of its accumulated squared
// gradients.
//
//	acc   = acc + gradient²
//	param = param - lr * gradient / sqrt(acc)
type Adagrad struct {
	params  []*nn.Parameter
	lr      float64
	initial float64
	acc     map[*nn.Parameter]*tensor.Tensor
}

// AdagradConfig holds configuration for Adagrad.
type AdagradConfig struct {
	LR                 float64 // Learning rate (default: 0.01)
	InitialAccumulator float64 // Starting accumulator value (default: 0.1)
}

// NewAdagrad creates a new Adagrad optimizer.
func NewAdagrad(params []*nn.Parameter, config AdagradConfig) *Adagrad {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.InitialAccumulator == 0 {
		config.InitialAccumulator = 0.1
	}
	return &Adagrad{
		params:  params,
		lr:      config.LR,
		initial: config.InitialAccumulator,
		acc:     make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step performs a single optimization step.
func (a *Adagrad) Step(grads autodiff.Gradients) {
	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		acc, ok := a.acc[param]
		if !ok {
			acc = tensor.Full(param.Tensor().Shape(), a.initial)
			a.acc[param] = acc
		}
		s, p := acc.Data(), param.Tensor().Data()
		for i, g := range grad.Data() {
			s[i] += g * g
			p[i] -= a.lr * g / math.Sqrt(s[i])
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adagrad) ZeroGrad() { zeroGrads(a.params) }

// GetLR returns the current learning rate.
func (a *Adagrad) GetLR() float64 { return a.lr }

// SetLR replaces the learning rate.
func (a *Adagrad) SetLR(lr float64) { a.lr = lr }

// RMSProp divides each step by a moving root mean square of the gradients.
//
//	ms    = decay * ms + (1-decay) * gradient²
//	mom   = momentum * mom + lr * gradient / sqrt(ms + eps)
//	param = param - mom
type RMSProp struct {
	params   []*nn.Parameter
	lr       float64
	decay    float64
	momentum float64
	eps      float64
	ms       map[*nn.Parameter]*tensor.Tensor
	mom      map[*nn.Parameter]*tensor.Tensor
}

// RMSPropConfig holds configuration for RMSProp.
type RMSPropConfig struct {
	LR       float64 // Learning rate (default: 0.001)
	Decay    float64 // Discount of the squared-gradient average (default: 0.9)
	Momentum float64 // Momentum factor (default: 0)
	Eps      float64 // Term for numerical stability (default: 1e-10)
}

// NewRMSProp creates a new RMSProp optimizer.
func NewRMSProp(params []*nn.Parameter, config RMSPropConfig) *RMSProp {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Decay == 0 {
		config.Decay = 0.9
	}
	if config.Eps == 0 {
		config.Eps = 1e-10
	}
	return &RMSProp{
		params:   params,
		lr:       config.LR,
		decay:    config.Decay,
		momentum: config.Momentum,
		eps:      config.Eps,
		ms:       make(map[*nn.Parameter]*tensor.Tensor),
		mom:      make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step performs a single optimization step.
func (r *RMSProp) Step(grads autodiff.Gradients) {
	for _, param := range r.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		ms := state(r.ms, param)
		mom := state(r.mom, param)
		p := param.Tensor().Data()
		for i, g := range grad.Data() {
			ms[i] = r.decay*ms[i] + (1-r.decay)*g*g
			mom[i] = r.momentum*mom[i] + r.lr*g/math.Sqrt(ms[i]+r.eps)
			p[i] -= mom[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (r *RMSProp) ZeroGrad() { zeroGrads(r.params) }

// GetLR returns the current learning rate.
func (r *RMSProp) GetLR() float64 { return r.lr }

// SetLR replaces the learning rate.
func (r *RMSProp) SetLR(lr float64) { r.lr = lr }
