package ops

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/idcnn/internal/tensor"
)

// DropoutOp zeroes elements with probability 1-keep and scales the survivors
// by 1/keep, so the expected value of every element is unchanged.
type DropoutOp struct {
	input  *tensor.Tensor
	mask   []float64 // 0 or 1/keep per element
	output *tensor.Tensor
}

// Dropout samples a fresh mask from rng. keep must be in (0, 1); callers
// skip the operation entirely when keep is 1.
func Dropout(input *tensor.Tensor, keep float64, rng *rand.Rand) (*tensor.Tensor, *DropoutOp) {
	if keep <= 0 || keep >= 1 {
		panic(fmt.Sprintf("dropout: keep probability %v outside (0, 1)", keep))
	}
	out := tensor.ZerosLike(input)
	mask := make([]float64, input.NumElements())
	x, y := input.Data(), out.Data()
	scale := 1 / keep
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = scale
			y[i] = x[i] * scale
		}
	}
	return out, &DropoutOp{input: input, mask: mask, output: out}
}

// Backward applies the same mask to the gradient.
func (op *DropoutOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	grad := tensor.ZerosLike(op.input)
	gx, g := grad.Data(), outputGrad.Data()
	for i, m := range op.mask {
		gx[i] = g[i] * m
	}
	return []*tensor.Tensor{grad}
}

// Inputs returns [input].
func (op *DropoutOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the masked tensor.
func (op *DropoutOp) Output() *tensor.Tensor {
	return op.output
}
