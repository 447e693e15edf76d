package ops

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/tensor"
)

// EmbeddingOp looks token ids up in an embedding table whose row r holds the
// vector of id r+1. Id 0 is padding and maps to a constant zero vector.
//
// Backward is a scatter-add: gradients of repeated ids are summed into the
// same row, padding positions contribute nothing.
type EmbeddingOp struct {
	weight *tensor.Tensor // [vocab-1, dim]
	ids    [][]int        // (B, T)
	output *tensor.Tensor // (B, T, dim)
}

// Embedding returns the (B, T, dim) embeddings of ids.
// Panics if an id is outside [0, rows].
func Embedding(weight *tensor.Tensor, ids [][]int) (*tensor.Tensor, *EmbeddingOp) {
	rows, dim := weight.Dim(0), weight.Dim(1)
	steps := len(ids[0])
	out := tensor.New(tensor.Shape{len(ids), steps, dim})
	w, o := weight.Data(), out.Data()

	for b, row := range ids {
		for t, id := range row {
			if id < 0 || id > rows {
				panic(fmt.Sprintf("embedding: id %d out of range [0, %d]", id, rows))
			}
			if id == 0 {
				continue
			}
			dst := o[(b*steps+t)*dim : (b*steps+t+1)*dim]
			copy(dst, w[(id-1)*dim:id*dim])
		}
	}
	return out, &EmbeddingOp{weight: weight, ids: ids, output: out}
}

// Backward computes the gradient of the embedding table.
func (op *EmbeddingOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	dim := op.weight.Dim(1)
	steps := len(op.ids[0])
	grad := tensor.ZerosLike(op.weight)
	g, og := grad.Data(), outputGrad.Data()

	for b, row := range op.ids {
		for t, id := range row {
			if id == 0 {
				continue
			}
			src := og[(b*steps+t)*dim : (b*steps+t+1)*dim]
			dst := g[(id-1)*dim : id*dim]
			for k, v := range src {
				dst[k] += v
			}
		}
	}
	return []*tensor.Tensor{grad}
}

// Inputs returns the embedding table.
func (op *EmbeddingOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.weight}
}

// Output returns the looked-up embeddings.
func (op *EmbeddingOp) Output() *tensor.Tensor {
	return op.output
}
