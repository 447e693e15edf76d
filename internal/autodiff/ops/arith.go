package ops

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/idcnn/internal/tensor"
)

// AddOp is element-wise addition of equally shaped tensors.
// d(a+b)/da = 1, d(a+b)/db = 1.
type AddOp struct {
	a, b   *tensor.Tensor
	output *tensor.Tensor
}

// Add computes a + b.
func Add(a, b *tensor.Tensor) (*tensor.Tensor, *AddOp) {
	checkSameSize("add", a, b)
	out := a.Clone()
	floats.Add(out.Data(), b.Data())
	return out, &AddOp{a: a, b: b, output: out}
}

// Backward passes the gradient to both operands.
func (op *AddOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad.View(op.a.Shape()), outputGrad.View(op.b.Shape())}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }

// Output returns a + b.
func (op *AddOp) Output() *tensor.Tensor { return op.output }

// SubOp is element-wise subtraction of equally shaped tensors.
// d(a-b)/da = 1, d(a-b)/db = -1.
type SubOp struct {
	a, b   *tensor.Tensor
	output *tensor.Tensor
}

// Sub computes a - b.
func Sub(a, b *tensor.Tensor) (*tensor.Tensor, *SubOp) {
	checkSameSize("sub", a, b)
	out := a.Clone()
	floats.Sub(out.Data(), b.Data())
	return out, &SubOp{a: a, b: b, output: out}
}

// Backward passes the gradient to a and its negation to b.
func (op *SubOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	neg := outputGrad.Clone().View(op.b.Shape())
	neg.ScaleInPlace(-1)
	return []*tensor.Tensor{outputGrad.View(op.a.Shape()), neg}
}

// Inputs returns [a, b].
func (op *SubOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }

// Output returns a - b.
func (op *SubOp) Output() *tensor.Tensor { return op.output }

// ScaleOp multiplies a tensor by a constant.
type ScaleOp struct {
	input  *tensor.Tensor
	factor float64
	output *tensor.Tensor
}

// Scale computes factor * input.
func Scale(input *tensor.Tensor, factor float64) (*tensor.Tensor, *ScaleOp) {
	out := input.Clone()
	out.ScaleInPlace(factor)
	return out, &ScaleOp{input: input, factor: factor, output: out}
}

// Backward scales the gradient by the same factor.
func (op *ScaleOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	grad := outputGrad.Clone()
	grad.ScaleInPlace(op.factor)
	return []*tensor.Tensor{grad}
}

// Inputs returns [input].
func (op *ScaleOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns the scaled tensor.
func (op *ScaleOp) Output() *tensor.Tensor { return op.output }

// SumSquaresOp reduces a tensor to its squared Frobenius norm Σ x².
// d(Σ x²)/dx = 2x.
type SumSquaresOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// SumSquares returns a scalar holding Σ x².
func SumSquares(input *tensor.Tensor) (*tensor.Tensor, *SumSquaresOp) {
	out := tensor.Scalar(input.SumSquares())
	return out, &SumSquaresOp{input: input, output: out}
}

// Backward computes 2·g·x.
func (op *SumSquaresOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	grad := op.input.Clone()
	grad.ScaleInPlace(2 * outputGrad.Item())
	return []*tensor.Tensor{grad}
}

// Inputs returns [input].
func (op *SumSquaresOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }

// Output returns the scalar norm.
func (op *SumSquaresOp) Output() *tensor.Tensor { return op.output }

func checkSameSize(name string, a, b *tensor.Tensor) {
	if a.NumElements() != b.NumElements() {
		panic(fmt.Sprintf("%s: shapes %v and %v differ", name, a.Shape(), b.Shape()))
	}
}
