package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/nn"
)

// ExponentialDecay is the learning-rate schedule
//
//	lr(step) = Base * DecayRate^(step / DecaySteps)
//
// With Staircase the exponent is truncated to an integer, so the rate drops
// every DecaySteps steps. DecaySteps <= 0 keeps the rate at Base.
type ExponentialDecay struct {
	Base       float64
	DecaySteps int
	DecayRate  float64
	Staircase  bool
}

// At returns the learning rate for the given global step.
func (d ExponentialDecay) At(step int) float64 {
	if d.DecaySteps <= 0 || d.DecayRate == 0 {
		return d.Base
	}
	p := float64(step) / float64(d.DecaySteps)
	if d.Staircase {
		p = math.Floor(p)
	}
	return d.Base * math.Pow(d.DecayRate, p)
}

// GlobalNorm returns sqrt(Σ‖g‖²) over the gradients of params.
func GlobalNorm(params []*nn.Parameter, grads autodiff.Gradients) float64 {
	var sum float64
	for _, p := range params {
		if g := grads.Of(p.Tensor()); g != nil {
			sum += g.SumSquares()
		}
	}
	return math.Sqrt(sum)
}

// ClipByGlobalNorm rescales the gradients of params so that their global
// norm is at most maxNorm. Scaled gradients are fresh tensors; grads is
// updated to point at them. It returns the norm before clipping.
// maxNorm <= 0 disables clipping.
func ClipByGlobalNorm(params []*nn.Parameter, grads autodiff.Gradients, maxNorm float64) float64 {
	norm := GlobalNorm(params, grads)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := maxNorm / norm
	for _, p := range params {
		g := grads.Of(p.Tensor())
		if g == nil {
			continue
		}
		clipped := g.Clone()
		floats.Scale(scale, clipped.Data())
		grads[p.Tensor()] = clipped
	}
	return norm
}
