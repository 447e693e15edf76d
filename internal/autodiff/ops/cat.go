package ops

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/tensor"
)

// CatOp concatenates tensors along their last (channel) dimension.
//
// All inputs share their leading dimensions. Backward splits the output
// gradient at the input boundaries.
type CatOp struct {
	inputs []*tensor.Tensor
	output *tensor.Tensor
}

// Cat concatenates inputs along the last dimension.
func Cat(inputs []*tensor.Tensor) (*tensor.Tensor, *CatOp) {
	if len(inputs) == 0 {
		panic("cat: no inputs")
	}
	lead := inputs[0].Shape()[:inputs[0].Rank()-1]
	total := 0
	for _, in := range inputs {
		s := in.Shape()
		if !s[:len(s)-1].Equal(lead) {
			panic(fmt.Sprintf("cat: leading dimensions of %v differ from %v", s, inputs[0].Shape()))
		}
		total += s.Last()
	}
	shape := append(lead.Clone(), total)
	out := tensor.New(shape)
	rows := out.NumElements() / total

	o := out.Data()
	start := 0
	for _, in := range inputs {
		w := in.Shape().Last()
		src := in.Data()
		for r := 0; r < rows; r++ {
			copy(o[r*total+start:r*total+start+w], src[r*w:(r+1)*w])
		}
		start += w
	}
	return out, &CatOp{inputs: inputs, output: out}
}

// Backward distributes slices of the output gradient to each input.
func (op *CatOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	total := op.output.Shape().Last()
	rows := op.output.NumElements() / total
	g := outputGrad.Data()

	grads := make([]*tensor.Tensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		w := in.Shape().Last()
		grad := tensor.ZerosLike(in)
		dst := grad.Data()
		for r := 0; r < rows; r++ {
			copy(dst[r*w:(r+1)*w], g[r*total+start:r*total+start+w])
		}
		grads[i] = grad
		start += w
	}
	return grads
}

// Inputs returns the concatenated tensors.
func (op *CatOp) Inputs() []*tensor.Tensor {
	return op.inputs
}

// Output returns the concatenation.
func (op *CatOp) Output() *tensor.Tensor {
	return op.output
}
