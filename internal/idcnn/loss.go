package idcnn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/crf"
	"github.com/born-ml/idcnn/internal/tensor"
)

// LossCoefficients weight the optional regularizers of the composite loss.
// Both default to zero.
type LossCoefficients struct {
	L2   float64 // multiplies ForwardResult.L2
	Drop float64 // multiplies ‖scores_drop − scores_nodrop‖²_F
}

// LossTerms breaks the composite loss into its parts.
type LossTerms struct {
	Total *tensor.Tensor // scalar to differentiate

	CRF  float64 // negative mean log-likelihood
	L2   float64 // unweighted L2 value of the dropout pass
	Drop float64 // unweighted squared distance between the two passes

	// Lengths are the decoded sequence lengths the CRF term used.
	Lengths []int
}

// Loss computes
//
//	CRF_NLL(withDrop.Last()) + coef.L2 × withDrop.L2 + coef.Drop × ‖withDrop.Last() − withoutDrop‖²_F
//
// labels must be (B, T) like the scores; rawLengths is decoded with
// m.Lengths. withoutDrop may be nil when coef.Drop is zero. Terms whose
// coefficient is zero are left out of Total, so with default coefficients
// Total equals the CRF term exactly.
func (m *Model) Loss(tape *autodiff.GradientTape, withDrop *ForwardResult, withoutDrop *tensor.Tensor,
	labels, rawLengths [][]int, coef LossCoefficients,
) (*LossTerms, error) {
	scores := withDrop.Last()
	if err := checkLabels(labels, withDrop.Batch, withDrop.Steps); err != nil {
		return nil, err
	}
	lengths, err := m.decodeLengths(rawLengths, withDrop.Batch)
	if err != nil {
		return nil, err
	}

	nll, err := tape.CRFNegLogLikelihood(scores, m.Transitions.Tensor(), labels, lengths)
	if err != nil {
		return nil, crfError(err)
	}

	terms := &LossTerms{
		Total:   nll,
		CRF:     nll.Item(),
		L2:      withDrop.L2.Item(),
		Lengths: lengths,
	}

	if coef.L2 != 0 {
		terms.Total = tape.Add(terms.Total, tape.Scale(withDrop.L2, coef.L2))
	}

	if withoutDrop != nil {
		if !withoutDrop.Shape().Equal(scores.Shape()) {
			return nil, fmt.Errorf("%w: scores without dropout %v, with dropout %v",
				ErrShapeMismatch, withoutDrop.Shape(), scores.Shape())
		}
		if coef.Drop != 0 {
			dist := tape.SumSquares(tape.Sub(scores, withoutDrop))
			terms.Drop = dist.Item()
			terms.Total = tape.Add(terms.Total, tape.Scale(dist, coef.Drop))
		} else {
			terms.Drop = distance(scores, withoutDrop)
		}
	} else if coef.Drop != 0 {
		return nil, fmt.Errorf("%w: drop penalty %v needs scores without dropout", ErrConfiguration, coef.Drop)
	}

	return terms, nil
}

// CRFLoss is the negative mean log-likelihood of labels under the model's
// transitions for arbitrary (B, T, C) scores.
func (m *Model) CRFLoss(tape *autodiff.GradientTape, scores *tensor.Tensor, labels, rawLengths [][]int) (*tensor.Tensor, error) {
	if scores.Rank() != 3 || scores.Dim(2) != m.Config.NumClasses {
		return nil, fmt.Errorf("%w: scores %v, want (B, T, %d)", ErrShapeMismatch, scores.Shape(), m.Config.NumClasses)
	}
	if err := checkLabels(labels, scores.Dim(0), scores.Dim(1)); err != nil {
		return nil, err
	}
	lengths, err := m.decodeLengths(rawLengths, scores.Dim(0))
	if err != nil {
		return nil, err
	}
	nll, err := tape.CRFNegLogLikelihood(scores, m.Transitions.Tensor(), labels, lengths)
	if err != nil {
		return nil, crfError(err)
	}
	return nll, nil
}

func (m *Model) decodeLengths(rawLengths [][]int, batch int) ([]int, error) {
	if len(rawLengths) != batch {
		return nil, fmt.Errorf("%w: %d length rows for a batch of %d", ErrShapeMismatch, len(rawLengths), batch)
	}
	decoder := m.Lengths
	if decoder == nil {
		decoder = DefaultLengthDecoder
	}
	return decoder.Decode(rawLengths)
}

func checkLabels(labels [][]int, batch, steps int) error {
	if len(labels) != batch {
		return fmt.Errorf("%w: %d label rows for a batch of %d", ErrShapeMismatch, len(labels), batch)
	}
	for b, row := range labels {
		if len(row) != steps {
			return fmt.Errorf("%w: label row %d has %d entries, want %d", ErrShapeMismatch, b, len(row), steps)
		}
	}
	return nil
}

func crfError(err error) error {
	if errors.Is(err, crf.ErrNegativeLength) {
		return fmt.Errorf("%w: %w", ErrInvalidLength, err)
	}
	return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
}

// distance is the squared Euclidean distance between two equally sized tensors.
func distance(a, b *tensor.Tensor) float64 {
	d := floats.Distance(a.Data(), b.Data(), 2)
	return d * d
}
