package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Embedding is a lookup table that maps token ids to dense vectors.
//
// Architecture:
//   - Weight: [VocabSize-1, Dim] learnable parameter, row r holds id r+1
//   - Id 0 is padding and always embeds to the zero vector
//   - Forward: ids (B, T) -> embeddings (B, T, Dim)
//   - Backward: gradients scatter-add to weight rows
//
// Example:
//
//	embed, _ := nn.NewEmbedding(10000, 100, nil, rng)
//	x, err := embed.Forward(tape, [][]int{{5, 9, 0}})  // (1, 3, 100)
type Embedding struct {
	Weight    *Parameter
	VocabSize int // Number of ids including padding
	Dim       int
}

// NewEmbedding creates an embedding table.
//
// When pretrained is nil the rows are drawn with Xavier initialization over
// (VocabSize-1, Dim). Otherwise pretrained must be [vocabSize-1, dim] and is
// copied.
func NewEmbedding(vocabSize, dim int, pretrained *tensor.Tensor, rng *rand.Rand) (*Embedding, error) {
	if vocabSize < 2 || dim < 1 {
		return nil, fmt.Errorf("embedding: vocab size %d and dim %d must be at least 2 and 1", vocabSize, dim)
	}
	shape := tensor.Shape{vocabSize - 1, dim}

	var w *tensor.Tensor
	if pretrained != nil {
		if !pretrained.Shape().Equal(shape) {
			return nil, fmt.Errorf("embedding: pretrained table %v, want %v", pretrained.Shape(), shape)
		}
		w = pretrained.Clone()
	} else {
		w = Xavier(shape, DenseFans(vocabSize-1, dim), 1, rng)
	}

	return &Embedding{
		Weight:    NewParameter("w_e", w),
		VocabSize: vocabSize,
		Dim:       dim,
	}, nil
}

// Forward embeds a rectangular batch of ids.
func (e *Embedding) Forward(tape *autodiff.GradientTape, ids [][]int) (*tensor.Tensor, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return nil, fmt.Errorf("embedding: empty batch")
	}
	steps := len(ids[0])
	for b, row := range ids {
		if len(row) != steps {
			return nil, fmt.Errorf("embedding: row %d has %d ids, want %d", b, len(row), steps)
		}
		for t, id := range row {
			if id < 0 || id >= e.VocabSize {
				return nil, fmt.Errorf("embedding: id %d at (%d, %d) outside vocabulary of %d", id, b, t, e.VocabSize)
			}
		}
	}
	return tape.Embedding(e.Weight.Tensor(), ids), nil
}

// Parameters returns [Weight].
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}
