// Package ops defines the differentiable operations of the tagger.
//
// Every forward function computes its output eagerly and returns it together
// with an Operation that remembers what the backward pass needs:
//   - Embedding: padded id lookup (scatter-add backward)
//   - DilatedConv: 1×width atrous convolution with "same" padding
//   - BiasAdd, Activation, MatMul, Cat, Reshape, Dropout
//   - Add, Sub, Scale, SumSquares: the arithmetic of the composite loss
//   - CRFNegLogLikelihood: linear-chain CRF loss
//
// Operations never modify their inputs, so output tensor pointers are
// unique and can key the tape's gradient map.
package ops

import "github.com/born-ml/idcnn/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor;
	// a nil entry means no gradient flows to that input.
	Backward(outputGrad *tensor.Tensor) []*tensor.Tensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Tensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Tensor
}
