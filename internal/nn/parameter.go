package nn

import (
	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// The tensor pointer is stable for the lifetime of the model, so it keys the
// gradient map produced by autodiff.GradientTape.Backward. The optimizer
// updates the tensor's data in place between steps.
//
// Example:
//
//	weight := nn.NewParameter("block/conv1_w", weightTensor)
//	grads := tape.Backward(loss)
//	weight.CaptureGrad(grads)
type Parameter struct {
	name   string         // Parameter name (e.g., "block/conv1_w", "w_o")
	tensor *tensor.Tensor // The parameter tensor
	grad   *tensor.Tensor // Gradient tensor (set after the backward pass)
}

// NewParameter creates a new trainable parameter.
//
// The parameter tensor should be initialized before creating the Parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
		grad:   nil, // Gradient set after the first backward pass
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet, or if the parameter did
// not influence the last differentiated output.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.Tensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// CaptureGrad stores the parameter's entry of grads (nil when absent).
func (p *Parameter) CaptureGrad(grads autodiff.Gradients) {
	p.grad = grads.Of(p.tensor)
}

// NumElements returns the number of scalar weights held by the parameter.
func (p *Parameter) NumElements() int {
	return p.tensor.NumElements()
}

// CountElements sums NumElements over params.
func CountElements(params []*Parameter) int {
	n := 0
	for _, p := range params {
		n += p.NumElements()
	}
	return n
}
