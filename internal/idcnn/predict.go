package idcnn

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/crf"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Predict returns the last repetition's (B, T, NumClasses) scores without
// dropout. T is the length of the rows of tokenIDs.
func (m *Model) Predict(tokenIDs [][]int) (*tensor.Tensor, error) {
	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	res, err := m.Forward(nil, tokenIDs, len(tokenIDs[0]), NoDropout, nil)
	if err != nil {
		return nil, err
	}
	return res.Last(), nil
}

// Decode returns the highest scoring label sequence of every example,
// each truncated to its decoded length (at most T).
func (m *Model) Decode(tokenIDs, rawLengths [][]int) ([][]int, error) {
	scores, err := m.Predict(tokenIDs)
	if err != nil {
		return nil, err
	}
	lengths, err := m.decodeLengths(rawLengths, scores.Dim(0))
	if err != nil {
		return nil, err
	}
	paths, _, err := crf.Viterbi(scores, lengths, m.Transitions.Tensor())
	if err != nil {
		return nil, crfError(err)
	}
	return paths, nil
}
