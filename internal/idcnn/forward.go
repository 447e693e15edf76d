package idcnn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/tensor"
)

// KeepProbs holds the keep probabilities of the three dropout sites:
// Input before the initial convolution, Middle after each take
// concatenation (and after the projection), Hidden before each output layer.
type KeepProbs struct {
	Hidden float64
	Input  float64
	Middle float64
}

// NoDropout keeps every unit.
var NoDropout = KeepProbs{Hidden: 1, Input: 1, Middle: 1}

// Valid reports whether every probability lies in (0, 1].
func (k KeepProbs) Valid() bool {
	for _, p := range []float64{k.Hidden, k.Input, k.Middle} {
		if !(p > 0 && p <= 1) {
			return false
		}
	}
	return true
}

// Deterministic reports whether no dropout site is active.
func (k KeepProbs) Deterministic() bool {
	return k.Hidden == 1 && k.Input == 1 && k.Middle == 1
}

// ForwardResult is everything one forward evaluation produces.
type ForwardResult struct {
	// Scores holds one (B, T, NumClasses) tensor per repetition.
	Scores []*tensor.Tensor
	// Hidden is the last take concatenation before dropout, (B, T, Σtaken).
	Hidden *tensor.Tensor
	// L2 is Σ over repetitions of ‖W_o‖² + ‖b_o‖², a scalar.
	L2 *tensor.Tensor
	// Batch and Steps are the B and T of this call.
	Batch, Steps int
}

// Last returns the scores of the final repetition, the prediction.
func (r *ForwardResult) Last() *tensor.Tensor {
	return r.Scores[len(r.Scores)-1]
}

// Forward evaluates the network on a (B, maxLen) batch of token ids.
//
// Operations are recorded on tape when it is recording; a nil tape runs
// inference. rng drives the dropout masks and may be nil when keep is
// NoDropout. The returned L2 value is local to this call.
func (m *Model) Forward(tape *autodiff.GradientTape, tokenIDs [][]int, maxLen int, keep KeepProbs, rng *rand.Rand) (*ForwardResult, error) {
	if !keep.Valid() {
		return nil, fmt.Errorf("%w: keep probabilities %+v outside (0, 1]", ErrConfiguration, keep)
	}
	if rng == nil && !keep.Deterministic() {
		return nil, fmt.Errorf("%w: dropout requires a random source", ErrConfiguration)
	}
	if err := checkBatch(tokenIDs, maxLen); err != nil {
		return nil, err
	}
	batch, steps := len(tokenIDs), maxLen

	emb, err := m.Embedding.Forward(tape, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	x := tape.Reshape(emb, tensor.Shape{batch, 1, steps, m.Config.EmbeddingSize})
	x = tape.Dropout(x, keep.Input, rng)
	running := m.Initial.Forward(tape, x)

	res := &ForwardResult{
		Scores: make([]*tensor.Tensor, 0, len(m.Blocks)),
		Batch:  batch,
		Steps:  steps,
	}
	for _, bp := range m.Blocks {
		concat := bp.forward(tape, running)
		res.Hidden = concat

		dropped := tape.Dropout(concat, keep.Middle, rng)
		running = dropped

		h := tape.Reshape(dropped, tensor.Shape{batch * steps, bp.TakenWidth})
		if bp.Projection != nil {
			h = bp.Projection.Forward(tape, h)
			h = tape.Dropout(h, keep.Middle, rng)
		}
		h = tape.Dropout(h, keep.Hidden, rng)
		flat := bp.Output.Forward(tape, h)
		res.Scores = append(res.Scores, tape.Reshape(flat, tensor.Shape{batch, steps, m.Config.NumClasses}))

		l2 := tape.Add(tape.SumSquares(bp.Output.Weight.Tensor()), tape.SumSquares(bp.Output.Bias.Tensor()))
		if res.L2 == nil {
			res.L2 = l2
		} else {
			res.L2 = tape.Add(res.L2, l2)
		}
	}
	res.Hidden = tape.Reshape(res.Hidden, tensor.Shape{batch, steps, m.Blocks[len(m.Blocks)-1].TakenWidth})
	return res, nil
}

// forward runs the block's convolutions over a (B, 1, T, in) input and
// returns the concatenation of its take layers, (B, 1, T, TakenWidth).
func (bp *BlockParams) forward(tape *autodiff.GradientTape, input *tensor.Tensor) *tensor.Tensor {
	taken := make([]*tensor.Tensor, 0, len(bp.Layers))
	h := input
	for i, layer := range bp.Layers {
		h = layer.Forward(tape, h)
		if bp.Take[i] {
			taken = append(taken, h)
		}
	}
	return tape.Cat(taken)
}

func checkBatch(tokenIDs [][]int, maxLen int) error {
	if len(tokenIDs) == 0 {
		return fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	if maxLen < 1 {
		return fmt.Errorf("%w: max length %d must be positive", ErrShapeMismatch, maxLen)
	}
	for b, row := range tokenIDs {
		if len(row) != maxLen {
			return fmt.Errorf("%w: row %d has %d ids, want %d", ErrShapeMismatch, b, len(row), maxLen)
		}
	}
	return nil
}
