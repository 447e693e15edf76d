package ops

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/tensor"
)

// BiasAddOp adds a bias vector along the last dimension: y[..., c] = x[..., c] + b[c].
type BiasAddOp struct {
	input  *tensor.Tensor
	bias   *tensor.Tensor
	output *tensor.Tensor
}

// BiasAdd broadcasts bias over every leading position of input.
func BiasAdd(input, bias *tensor.Tensor) (*tensor.Tensor, *BiasAddOp) {
	ch := input.Shape().Last()
	if bias.Rank() != 1 || bias.Dim(0) != ch {
		panic(fmt.Sprintf("bias add: bias %v does not match channels of %v", bias.Shape(), input.Shape()))
	}
	out := input.Clone()
	o, b := out.Data(), bias.Data()
	for i := 0; i < len(o); i += ch {
		row := o[i : i+ch]
		for c := range row {
			row[c] += b[c]
		}
	}
	return out, &BiasAddOp{input: input, bias: bias, output: out}
}

// Backward passes the gradient through to the input and sums it over the
// leading positions for the bias.
func (op *BiasAddOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	ch := op.bias.Dim(0)
	gradBias := tensor.ZerosLike(op.bias)
	gb, g := gradBias.Data(), outputGrad.Data()
	for i := 0; i < len(g); i += ch {
		for c, v := range g[i : i+ch] {
			gb[c] += v
		}
	}
	return []*tensor.Tensor{outputGrad, gradBias}
}

// Inputs returns [input, bias].
func (op *BiasAddOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input, op.bias}
}

// Output returns input + bias.
func (op *BiasAddOp) Output() *tensor.Tensor {
	return op.output
}
