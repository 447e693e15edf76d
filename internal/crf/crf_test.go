package crf

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/idcnn/internal/tensor"
)

func randomTensor(rng *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	t := tensor.New(shape)
	for i := range t.Data() {
		t.Data()[i] = rng.NormFloat64()
	}
	return t
}

// allPaths enumerates every label sequence of length n.
func allPaths(n, classes int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, prefix := range allPaths(n-1, classes) {
		for c := 0; c < classes; c++ {
			p := append(append([]int{}, prefix...), c)
			out = append(out, p)
		}
	}
	return out
}

func TestLogNorm_BruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const steps, classes = 4, 3
	emit := randomTensor(rng, tensor.Shape{steps, classes}).Data()
	trans := randomTensor(rng, tensor.Shape{classes, classes}).Data()

	for n := 1; n <= steps; n++ {
		var scores []float64
		for _, p := range allPaths(n, classes) {
			scores = append(scores, SequenceScore(emit, trans, p, classes))
		}
		assert.InDelta(t, logSumExp(scores), LogNorm(emit[:n*classes], trans, n, classes), 1e-9, "n=%d", n)
	}
}

func TestNegLogLikelihood_ZeroTransitionsIsTokenCrossEntropy(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	const batch, steps, classes = 2, 5, 4
	scores := randomTensor(rng, tensor.Shape{batch, steps, classes})
	trans := tensor.New(tensor.Shape{classes, classes})
	labels := [][]int{{0, 1, 2, 3, 0}, {3, 3, 1, 0, 2}}
	lengths := []int{5, 3}

	res, err := NegLogLikelihood(scores, labels, lengths, trans)
	require.NoError(t, err)

	var want float64
	for i := 0; i < batch; i++ {
		for s := 0; s < lengths[i]; s++ {
			row := make([]float64, classes)
			for c := range row {
				row[c] = scores.At(i, s, c)
			}
			want += logSumExp(row) - row[labels[i][s]]
		}
	}
	want /= batch

	assert.InDelta(t, want, res.Loss, 1e-9)
}

func TestNegLogLikelihood_EmptySequence(t *testing.T) {
	scores := tensor.Full(tensor.Shape{1, 3, 2}, 0.5)
	trans := tensor.Full(tensor.Shape{2, 2}, 0.1)

	res, err := NegLogLikelihood(scores, [][]int{{0, 1, 0}}, []int{0}, trans)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Loss)
	assert.Equal(t, 0.0, res.LogLikelihood[0])
	assert.Equal(t, 0.0, res.GradScores.SumSquares())
	assert.Equal(t, 0.0, res.GradTransition.SumSquares())
}

func TestNegLogLikelihood_MixedEmptyAndFull(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	scores := randomTensor(rng, tensor.Shape{2, 3, 2})
	trans := randomTensor(rng, tensor.Shape{2, 2})
	labels := [][]int{{0, 1, 1}, {1, 0, 0}}

	both, err := NegLogLikelihood(scores, labels, []int{3, 0}, trans)
	require.NoError(t, err)
	assert.Equal(t, 0.0, both.LogLikelihood[1])
	// The empty example still counts in the batch mean.
	assert.InDelta(t, -both.LogLikelihood[0]/2, both.Loss, 1e-12)
}

func TestNegLogLikelihood_ClampsLongLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	scores := randomTensor(rng, tensor.Shape{1, 3, 2})
	trans := randomTensor(rng, tensor.Shape{2, 2})
	labels := [][]int{{0, 1, 1}}

	exact, err := NegLogLikelihood(scores, labels, []int{3}, trans)
	require.NoError(t, err)
	long, err := NegLogLikelihood(scores, labels, []int{7}, trans)
	require.NoError(t, err)
	assert.InDelta(t, exact.Loss, long.Loss, 1e-12)
}

func TestNegLogLikelihood_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const batch, steps, classes = 2, 4, 3
	scores := randomTensor(rng, tensor.Shape{batch, steps, classes})
	trans := randomTensor(rng, tensor.Shape{classes, classes})
	labels := [][]int{{0, 2, 1, 1}, {2, 2, 0, 1}}
	lengths := []int{4, 2}

	res, err := NegLogLikelihood(scores, labels, lengths, trans)
	require.NoError(t, err)

	lossAt := func() float64 {
		r, err := NegLogLikelihood(scores, labels, lengths, trans)
		require.NoError(t, err)
		return r.Loss
	}
	const eps = 1e-6
	check := func(name string, x, grad *tensor.Tensor) {
		for i := range x.Data() {
			orig := x.Data()[i]
			x.Data()[i] = orig + eps
			plus := lossAt()
			x.Data()[i] = orig - eps
			minus := lossAt()
			x.Data()[i] = orig
			assert.InDelta(t, (plus-minus)/(2*eps), grad.Data()[i], 1e-6, "%s[%d]", name, i)
		}
	}
	check("scores", scores, res.GradScores)
	check("transitions", trans, res.GradTransition)
}

func TestNegLogLikelihood_Errors(t *testing.T) {
	scores := tensor.New(tensor.Shape{1, 2, 2})
	trans := tensor.New(tensor.Shape{2, 2})

	_, err := NegLogLikelihood(scores, [][]int{{0, 1}}, []int{-1}, trans)
	assert.ErrorIs(t, err, ErrNegativeLength)

	_, err = NegLogLikelihood(scores, [][]int{{0, 5}}, []int{2}, trans)
	assert.ErrorIs(t, err, ErrLabelRange)

	// Labels past the length are padding and are not checked.
	_, err = NegLogLikelihood(scores, [][]int{{0, 5}}, []int{1}, trans)
	assert.NoError(t, err)

	_, err = NegLogLikelihood(scores, [][]int{{0, 1}}, []int{2}, tensor.New(tensor.Shape{3, 3}))
	assert.ErrorIs(t, err, ErrShape)

	_, err = NegLogLikelihood(scores, [][]int{{0}}, []int{1}, trans)
	assert.ErrorIs(t, err, ErrShape)
}

func TestViterbi_BruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	const batch, steps, classes = 3, 4, 3
	scores := randomTensor(rng, tensor.Shape{batch, steps, classes})
	trans := randomTensor(rng, tensor.Shape{classes, classes})
	lengths := []int{4, 2, 0}

	paths, best, err := Viterbi(scores, lengths, trans)
	require.NoError(t, err)

	for i := 0; i < batch; i++ {
		n := lengths[i]
		require.Len(t, paths[i], n)
		if n == 0 {
			assert.Equal(t, 0.0, best[i])
			continue
		}
		emit := scores.Data()[i*steps*classes : i*steps*classes+n*classes]
		top := math.Inf(-1)
		var arg []int
		for _, p := range allPaths(n, classes) {
			if s := SequenceScore(emit, trans.Data(), p, classes); s > top {
				top, arg = s, p
			}
		}
		assert.Equal(t, arg, paths[i])
		assert.InDelta(t, top, best[i], 1e-9)
	}
}
