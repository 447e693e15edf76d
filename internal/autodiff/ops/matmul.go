package ops

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/tensor"
)

// MatMulOp multiplies the rows of an input by a weight matrix.
//
// The input is viewed as a matrix over its last dimension, so a
// (B, T, in) tensor times an (in, out) weight yields (B, T, out).
//
// Backward pass:
//   - d(X·W)/dX = grad · Wᵀ
//   - d(X·W)/dW = Xᵀ · grad
type MatMulOp struct {
	input  *tensor.Tensor
	weight *tensor.Tensor
	output *tensor.Tensor
}

// MatMul computes input · weight.
func MatMul(input, weight *tensor.Tensor) (*tensor.Tensor, *MatMulOp) {
	if weight.Rank() != 2 || weight.Dim(0) != input.Shape().Last() {
		panic(fmt.Sprintf("matmul: cannot multiply %v by %v", input.Shape(), weight.Shape()))
	}
	shape := input.Shape().Clone()
	shape[len(shape)-1] = weight.Dim(1)

	out := tensor.New(shape)
	out.Matrix().Mul(input.Matrix(), weight.Matrix())
	return out, &MatMulOp{input: input, weight: weight, output: out}
}

// Backward computes gradients for the input and the weight.
func (op *MatMulOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	g := outputGrad.Matrix()

	gradInput := tensor.ZerosLike(op.input)
	gradInput.Matrix().Mul(g, op.weight.Matrix().T())

	gradWeight := tensor.ZerosLike(op.weight)
	gradWeight.Matrix().Mul(op.input.Matrix().T(), g)

	return []*tensor.Tensor{gradInput, gradWeight}
}

// Inputs returns [input, weight].
func (op *MatMulOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input, op.weight}
}

// Output returns input · weight.
func (op *MatMulOp) Output() *tensor.Tensor {
	return op.output
}
