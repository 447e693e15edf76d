package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Linear implements a fully connected (dense) layer over the last dimension.
//
// Performs the transformation: y = act(x · W + b)
// where:
//   - x has shape [..., in]
//   - W is the weight matrix with shape [in, out]
//   - b is the bias vector with shape [out]
//   - y has shape [..., out]
//
// Weights use Xavier initialization, biases start at a constant.
type Linear struct {
	In, Out    int
	Activation ops.Nonlinearity
	Weight     *Parameter // [in, out]
	Bias       *Parameter // [out]
}

// NewLinear creates a dense layer whose parameters are named
// <scope>w_<name> and <scope>b_<name>, e.g. "block/w_o" and "block/b_o".
func NewLinear(scope, name string, in, out int, act ops.Nonlinearity, bias float64, rng *rand.Rand) *Linear {
	w := Xavier(tensor.Shape{in, out}, DenseFans(in, out), 1, rng)
	b := tensor.Full(tensor.Shape{out}, bias)
	return &Linear{
		In:         in,
		Out:        out,
		Activation: act,
		Weight:     NewParameter(scope+"w_"+name, w),
		Bias:       NewParameter(scope+"b_"+name, b),
	}
}

// Forward computes act(x · W + b).
// Panics if the last dimension of input is not In.
func (l *Linear) Forward(tape *autodiff.GradientTape, input *tensor.Tensor) *tensor.Tensor {
	if input.Shape().Last() != l.In {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got shape %v", l.In, input.Shape()))
	}
	h := tape.BiasAdd(tape.MatMul(input, l.Weight.Tensor()), l.Bias.Tensor())
	if l.Activation == ops.Linear || l.Activation == "" {
		return h
	}
	return tape.Activation(l.Activation, h)
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.Weight, l.Bias}
}
