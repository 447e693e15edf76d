package ops

import (
	"github.com/born-ml/idcnn/internal/crf"
	"github.com/born-ml/idcnn/internal/tensor"
)

// CRFOp is the negative mean log-likelihood of gold label paths under a
// linear-chain CRF. Gradients are computed with the forward pass by
// forward-backward and scaled by the upstream scalar gradient.
type CRFOp struct {
	scores      *tensor.Tensor // (B, T, C)
	transitions *tensor.Tensor // (C, C)
	result      *crf.Result
	output      *tensor.Tensor
}

// CRFNegLogLikelihood returns a scalar loss. Errors come from crf input
// validation (negative lengths, labels out of range, shape mismatch).
func CRFNegLogLikelihood(scores, transitions *tensor.Tensor, labels [][]int, lengths []int) (*tensor.Tensor, *CRFOp, error) {
	res, err := crf.NegLogLikelihood(scores, labels, lengths, transitions)
	if err != nil {
		return nil, nil, err
	}
	out := tensor.Scalar(res.Loss)
	return out, &CRFOp{scores: scores, transitions: transitions, result: res, output: out}, nil
}

// Backward returns gradients for the scores and the transition matrix.
func (op *CRFOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	g := outputGrad.Item()
	gs := op.result.GradScores.Clone()
	gs.ScaleInPlace(g)
	gt := op.result.GradTransition.Clone()
	gt.ScaleInPlace(g)
	return []*tensor.Tensor{gs, gt}
}

// Inputs returns [scores, transitions].
func (op *CRFOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.scores, op.transitions}
}

// Output returns the scalar loss.
func (op *CRFOp) Output() *tensor.Tensor {
	return op.output
}

// LogLikelihood exposes the per-example log-likelihoods of the forward pass.
func (op *CRFOp) LogLikelihood() []float64 {
	return op.result.LogLikelihood
}
