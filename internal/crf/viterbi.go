package crf

import (
	"github.com/born-ml/idcnn/internal/parallel"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Viterbi returns the highest-scoring label path of every example and its
// unnormalized score. Paths have length min(lengths[i], T); an empty example
// yields an empty path with score 0.
func Viterbi(scores *tensor.Tensor, lengths []int, transitions *tensor.Tensor) ([][]int, []float64, error) {
	batch, steps, classes, err := checkInputs(scores, lengths, transitions)
	if err != nil {
		return nil, nil, err
	}

	paths := make([][]int, batch)
	best := make([]float64, batch)
	emit := scores.Data()
	trans := transitions.Data()

	parallel.For(batch, func(i int) {
		n := min(lengths[i], steps)
		off := i * steps * classes
		paths[i], best[i] = decode(emit[off:off+n*classes], trans, n, classes)
	}, parallel.PerSequence())

	return paths, best, nil
}

func decode(emit, trans []float64, n, classes int) ([]int, float64) {
	if n == 0 {
		return []int{}, 0
	}
	delta := make([]float64, classes)
	next := make([]float64, classes)
	backptr := make([]int, n*classes)
	copy(delta, emit[:classes])

	for t := 1; t < n; t++ {
		for c := 0; c < classes; c++ {
			arg := 0
			top := delta[0] + trans[c]
			for p := 1; p < classes; p++ {
				if v := delta[p] + trans[p*classes+c]; v > top {
					top, arg = v, p
				}
			}
			next[c] = top + emit[t*classes+c]
			backptr[t*classes+c] = arg
		}
		delta, next = next, delta
	}

	last := 0
	for c := 1; c < classes; c++ {
		if delta[c] > delta[last] {
			last = c
		}
	}
	path := make([]int, n)
	path[n-1] = last
	for t := n - 1; t > 0; t-- {
		path[t-1] = backptr[t*classes+path[t]]
	}
	return path, delta[last]
}
