// Package autodiff implements reverse-mode automatic differentiation for the
// tagger's operations.
//
// Every differentiable function is a method on *GradientTape: it computes the
// result eagerly through package ops and records the operation when the tape
// is recording. Running the same functions on a nil tape evaluates the model
// without any bookkeeping, which is how prediction works.
//
// Usage:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//	h := tape.MatMul(x, w)
//	loss := tape.SumSquares(h)
//	grads := tape.Backward(loss)
//	fmt.Println(grads.Of(w))
package autodiff

import (
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Embedding looks ids up in weight (see ops.Embedding).
func (t *GradientTape) Embedding(weight *tensor.Tensor, ids [][]int) *tensor.Tensor {
	out, op := ops.Embedding(weight, ids)
	t.Record(op)
	return out
}

// DilatedConv applies a "same"-padded atrous convolution.
func (t *GradientTape) DilatedConv(input, kernel *tensor.Tensor, dilation int) *tensor.Tensor {
	out, op := ops.DilatedConv(input, kernel, dilation)
	t.Record(op)
	return out
}

// BiasAdd adds bias along the last dimension.
func (t *GradientTape) BiasAdd(input, bias *tensor.Tensor) *tensor.Tensor {
	out, op := ops.BiasAdd(input, bias)
	t.Record(op)
	return out
}

// Activation applies a nonlinearity element-wise.
func (t *GradientTape) Activation(kind ops.Nonlinearity, input *tensor.Tensor) *tensor.Tensor {
	out, op := ops.Activation(kind, input)
	t.Record(op)
	return out
}

// MatMul multiplies input (viewed over its last dimension) by weight.
func (t *GradientTape) MatMul(input, weight *tensor.Tensor) *tensor.Tensor {
	out, op := ops.MatMul(input, weight)
	t.Record(op)
	return out
}

// Cat concatenates along the last dimension. A single input is returned as is.
func (t *GradientTape) Cat(inputs []*tensor.Tensor) *tensor.Tensor {
	if len(inputs) == 1 {
		return inputs[0]
	}
	out, op := ops.Cat(inputs)
	t.Record(op)
	return out
}

// Reshape views input under a new shape.
func (t *GradientTape) Reshape(input *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	out, op := ops.Reshape(input, shape)
	t.Record(op)
	return out
}

// Dropout applies inverted dropout. keep >= 1 returns input unchanged and
// draws nothing from rng.
func (t *GradientTape) Dropout(input *tensor.Tensor, keep float64, rng *rand.Rand) *tensor.Tensor {
	if keep >= 1 {
		return input
	}
	out, op := ops.Dropout(input, keep, rng)
	t.Record(op)
	return out
}

// Add computes a + b.
func (t *GradientTape) Add(a, b *tensor.Tensor) *tensor.Tensor {
	out, op := ops.Add(a, b)
	t.Record(op)
	return out
}

// Sub computes a - b.
func (t *GradientTape) Sub(a, b *tensor.Tensor) *tensor.Tensor {
	out, op := ops.Sub(a, b)
	t.Record(op)
	return out
}

// Scale computes factor * input.
func (t *GradientTape) Scale(input *tensor.Tensor, factor float64) *tensor.Tensor {
	out, op := ops.Scale(input, factor)
	t.Record(op)
	return out
}

// SumSquares reduces input to Σ x².
func (t *GradientTape) SumSquares(input *tensor.Tensor) *tensor.Tensor {
	out, op := ops.SumSquares(input)
	t.Record(op)
	return out
}

// CRFNegLogLikelihood computes the negative mean CRF log-likelihood.
func (t *GradientTape) CRFNegLogLikelihood(scores, transitions *tensor.Tensor, labels [][]int, lengths []int) (*tensor.Tensor, error) {
	out, op, err := ops.CRFNegLogLikelihood(scores, transitions, labels, lengths)
	if err != nil {
		return nil, err
	}
	t.Record(op)
	return out, nil
}
