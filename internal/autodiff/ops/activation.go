package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/idcnn/internal/tensor"
)

// Nonlinearity selects the element-wise activation applied after every
// convolution and projection.
type Nonlinearity string

// Supported nonlinearities.
const (
	ReLU    Nonlinearity = "relu"
	ELU     Nonlinearity = "elu"
	Tanh    Nonlinearity = "tanh"
	Sigmoid Nonlinearity = "sigmoid"
	Linear  Nonlinearity = "linear"
)

// Valid reports whether n names a supported nonlinearity.
func (n Nonlinearity) Valid() bool {
	switch n {
	case ReLU, ELU, Tanh, Sigmoid, Linear:
		return true
	}
	return false
}

// ActivationOp applies a Nonlinearity element-wise.
//
// Derivatives:
//   - relu:    1 if x > 0 else 0
//   - elu:     1 if x > 0 else y + 1
//   - tanh:    1 - y²
//   - sigmoid: y (1 - y)
//   - linear:  1
type ActivationOp struct {
	kind   Nonlinearity
	input  *tensor.Tensor
	output *tensor.Tensor
}

// Activation applies kind to every element of input.
func Activation(kind Nonlinearity, input *tensor.Tensor) (*tensor.Tensor, *ActivationOp) {
	out := tensor.ZerosLike(input)
	x, y := input.Data(), out.Data()
	switch kind {
	case ReLU:
		for i, v := range x {
			if v > 0 {
				y[i] = v
			}
		}
	case ELU:
		for i, v := range x {
			if v > 0 {
				y[i] = v
			} else {
				y[i] = math.Expm1(v)
			}
		}
	case Tanh:
		for i, v := range x {
			y[i] = math.Tanh(v)
		}
	case Sigmoid:
		for i, v := range x {
			y[i] = 1 / (1 + math.Exp(-v))
		}
	case Linear:
		copy(y, x)
	default:
		panic(fmt.Sprintf("activation: unsupported nonlinearity %q", kind))
	}
	return out, &ActivationOp{kind: kind, input: input, output: out}
}

// Backward computes the input gradient.
func (op *ActivationOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	grad := tensor.ZerosLike(op.input)
	gx, g := grad.Data(), outputGrad.Data()
	x, y := op.input.Data(), op.output.Data()
	switch op.kind {
	case ReLU:
		for i, v := range x {
			if v > 0 {
				gx[i] = g[i]
			}
		}
	case ELU:
		for i, v := range x {
			if v > 0 {
				gx[i] = g[i]
			} else {
				gx[i] = g[i] * (y[i] + 1)
			}
		}
	case Tanh:
		for i := range gx {
			gx[i] = g[i] * (1 - y[i]*y[i])
		}
	case Sigmoid:
		for i := range gx {
			gx[i] = g[i] * y[i] * (1 - y[i])
		}
	case Linear:
		copy(gx, g)
	}
	return []*tensor.Tensor{grad}
}

// Inputs returns [input].
func (op *ActivationOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the activated tensor.
func (op *ActivationOp) Output() *tensor.Tensor {
	return op.output
}
