package ops

import "github.com/born-ml/idcnn/internal/tensor"

// ReshapeOp reinterprets a tensor under a new shape with the same element
// count. The output shares the input's memory.
type ReshapeOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// Reshape returns input viewed as shape.
func Reshape(input *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, *ReshapeOp) {
	out := input.View(shape)
	return out, &ReshapeOp{input: input, output: out}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad.View(op.input.Shape())}
}

// Inputs returns [input].
func (op *ReshapeOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the reshaped view.
func (op *ReshapeOp) Output() *tensor.Tensor {
	return op.output
}
