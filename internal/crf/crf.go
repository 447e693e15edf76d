// Package crf implements a linear-chain conditional random field over
// per-token emission scores.
//
// A label path y of length L is scored as
//
//	score(y) = Σ_t emit[t][y_t] + Σ_{t≥1} trans[y_{t-1}][y_t]
//
// There are no start or stop transitions. The log partition function is
// computed with the forward algorithm in log space; marginals come from the
// matching backward pass. Only the first lengths[i] tokens of example i take
// part; a length of zero yields an empty sequence with log-likelihood 0.
package crf

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/idcnn/internal/parallel"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Errors returned for malformed inputs.
var (
	ErrNegativeLength = errors.New("crf: negative sequence length")
	ErrLabelRange     = errors.New("crf: label out of range")
	ErrShape          = errors.New("crf: shape mismatch")
)

// Result holds the batch negative mean log-likelihood and its gradients.
type Result struct {
	Loss           float64        // -mean_i loglik_i
	LogLikelihood  []float64      // per example
	GradScores     *tensor.Tensor // dLoss/dscores, (B, T, C)
	GradTransition *tensor.Tensor // dLoss/dtransitions, (C, C)
}

// NegLogLikelihood computes the negative mean log-likelihood of labels under
// the CRF together with its gradients with respect to the scores and the
// transition matrix.
//
// scores is (B, T, C), labels is B rows of length T, lengths has B entries and
// transitions is (C, C). Lengths above T are clamped to T.
func NegLogLikelihood(scores *tensor.Tensor, labels [][]int, lengths []int, transitions *tensor.Tensor) (*Result, error) {
	batch, steps, classes, err := checkInputs(scores, lengths, transitions)
	if err != nil {
		return nil, err
	}
	if len(labels) != batch {
		return nil, fmt.Errorf("%w: %d label rows for batch of %d", ErrShape, len(labels), batch)
	}
	for i, row := range labels {
		if len(row) != steps {
			return nil, fmt.Errorf("%w: label row %d has %d entries, want %d", ErrShape, i, len(row), steps)
		}
		for t := 0; t < min(lengths[i], steps); t++ {
			if row[t] < 0 || row[t] >= classes {
				return nil, fmt.Errorf("%w: example %d position %d label %d (classes %d)", ErrLabelRange, i, t, row[t], classes)
			}
		}
	}

	res := &Result{
		LogLikelihood:  make([]float64, batch),
		GradScores:     tensor.New(scores.Shape()),
		GradTransition: tensor.New(transitions.Shape()),
	}
	perExample := make([][]float64, batch)
	trans := transitions.Data()
	emit := scores.Data()
	gEmit := res.GradScores.Data()
	scale := 1.0 / float64(batch)

	parallel.For(batch, func(i int) {
		n := min(lengths[i], steps)
		if n == 0 {
			return
		}
		off := i * steps * classes
		e := emit[off : off+n*classes]
		ge := gEmit[off : off+n*classes]
		gt := make([]float64, classes*classes)
		res.LogLikelihood[i] = exampleGradients(e, trans, labels[i][:n], classes, scale, ge, gt)
		perExample[i] = gt
	}, parallel.PerSequence())

	gTrans := res.GradTransition.Data()
	var total float64
	for i := 0; i < batch; i++ {
		total += res.LogLikelihood[i]
		if perExample[i] == nil {
			continue
		}
		for k, v := range perExample[i] {
			gTrans[k] += v
		}
	}
	res.Loss = -total * scale
	return res, nil
}

// LogLikelihood returns the per-example log-likelihood of labels without
// computing gradients.
func LogLikelihood(scores *tensor.Tensor, labels [][]int, lengths []int, transitions *tensor.Tensor) ([]float64, error) {
	res, err := NegLogLikelihood(scores, labels, lengths, transitions)
	if err != nil {
		return nil, err
	}
	return res.LogLikelihood, nil
}

// LogNorm returns the log partition function of one example.
// emit holds n*classes scores.
func LogNorm(emit, trans []float64, n, classes int) float64 {
	if n == 0 {
		return 0
	}
	alpha := forward(emit, trans, n, classes)
	return logSumExp(alpha[(n-1)*classes : n*classes])
}

// SequenceScore returns the unnormalized score of a label path.
func SequenceScore(emit, trans []float64, path []int, classes int) float64 {
	var s float64
	for t, y := range path {
		s += emit[t*classes+y]
		if t > 0 {
			s += trans[path[t-1]*classes+y]
		}
	}
	return s
}

// exampleGradients fills ge (n*classes) and gt (classes*classes) with the
// gradients of -loglik*scale and returns the log-likelihood.
func exampleGradients(emit, trans []float64, gold []int, classes int, scale float64, ge, gt []float64) float64 {
	n := len(gold)
	alpha := forward(emit, trans, n, classes)
	beta := backward(emit, trans, n, classes)
	logZ := logSumExp(alpha[(n-1)*classes : n*classes])

	for t := 0; t < n; t++ {
		for c := 0; c < classes; c++ {
			p := math.Exp(alpha[t*classes+c] + beta[t*classes+c] - logZ)
			ge[t*classes+c] = p * scale
		}
		ge[t*classes+gold[t]] -= scale
	}

	for t := 1; t < n; t++ {
		for p := 0; p < classes; p++ {
			a := alpha[(t-1)*classes+p]
			for c := 0; c < classes; c++ {
				pair := math.Exp(a + trans[p*classes+c] + emit[t*classes+c] + beta[t*classes+c] - logZ)
				gt[p*classes+c] += pair * scale
			}
		}
		gt[gold[t-1]*classes+gold[t]] -= scale
	}

	return SequenceScore(emit, trans, gold, classes) - logZ
}

// forward returns alpha (n*classes) where alpha[t][c] is the log-sum of all
// prefixes ending in c at t.
func forward(emit, trans []float64, n, classes int) []float64 {
	alpha := make([]float64, n*classes)
	copy(alpha[:classes], emit[:classes])
	buf := make([]float64, classes)
	for t := 1; t < n; t++ {
		prev := alpha[(t-1)*classes : t*classes]
		for c := 0; c < classes; c++ {
			for p := 0; p < classes; p++ {
				buf[p] = prev[p] + trans[p*classes+c]
			}
			alpha[t*classes+c] = emit[t*classes+c] + logSumExp(buf)
		}
	}
	return alpha
}

// backward returns beta (n*classes) where beta[t][c] is the log-sum of all
// suffixes following c at t.
func backward(emit, trans []float64, n, classes int) []float64 {
	beta := make([]float64, n*classes)
	buf := make([]float64, classes)
	for t := n - 2; t >= 0; t-- {
		next := beta[(t+1)*classes : (t+2)*classes]
		for p := 0; p < classes; p++ {
			for c := 0; c < classes; c++ {
				buf[c] = trans[p*classes+c] + emit[(t+1)*classes+c] + next[c]
			}
			beta[t*classes+p] = logSumExp(buf)
		}
	}
	return beta
}

func logSumExp(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return m
	}
	var s float64
	for _, x := range xs {
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}

func checkInputs(scores *tensor.Tensor, lengths []int, transitions *tensor.Tensor) (batch, steps, classes int, err error) {
	if scores.Rank() != 3 {
		return 0, 0, 0, fmt.Errorf("%w: scores must be (B, T, C), got %v", ErrShape, scores.Shape())
	}
	batch, steps, classes = scores.Dim(0), scores.Dim(1), scores.Dim(2)
	if !transitions.Shape().Equal(tensor.Shape{classes, classes}) {
		return 0, 0, 0, fmt.Errorf("%w: transitions %v for %d classes", ErrShape, transitions.Shape(), classes)
	}
	if len(lengths) != batch {
		return 0, 0, 0, fmt.Errorf("%w: %d lengths for batch of %d", ErrShape, len(lengths), batch)
	}
	for i, n := range lengths {
		if n < 0 {
			return 0, 0, 0, fmt.Errorf("%w: example %d has length %d", ErrNegativeLength, i, n)
		}
	}
	return batch, steps, classes, nil
}
