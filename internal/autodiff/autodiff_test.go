package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/tensor"
)

func randn(rng *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	t := tensor.New(shape)
	for i := range t.Data() {
		t.Data()[i] = rng.NormFloat64()
	}
	return t
}

// checkGradients compares tape gradients of a scalar function against
// central finite differences for every element of every input.
func checkGradients(t *testing.T, f func(tape *autodiff.GradientTape) *tensor.Tensor, inputs ...*tensor.Tensor) {
	t.Helper()

	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	loss := f(tape)
	grads := tape.Backward(loss)

	const eps = 1e-6
	for n, x := range inputs {
		g := grads.Of(x)
		require.NotNil(t, g, "input %d has no gradient", n)
		for i := range x.Data() {
			orig := x.Data()[i]
			x.Data()[i] = orig + eps
			plus := f(nil).Item()
			x.Data()[i] = orig - eps
			minus := f(nil).Item()
			x.Data()[i] = orig

			numeric := (plus - minus) / (2 * eps)
			assert.InDelta(t, numeric, g.Data()[i], 1e-5*math.Max(1, math.Abs(numeric)), "input %d element %d", n, i)
		}
	}
}

func TestDilatedConv_PreservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, dilation := range []int{1, 2, 4, 8} {
		for _, width := range []int{1, 3, 5} {
			x := randn(rng, tensor.Shape{2, 1, 7, 3})
			k := randn(rng, tensor.Shape{1, width, 3, 4})
			out := (*autodiff.GradientTape)(nil).DilatedConv(x, k, dilation)
			assert.Equal(t, tensor.Shape{2, 1, 7, 4}, out.Shape(), "dilation=%d width=%d", dilation, width)
		}
	}
}

func TestDilatedConv_MatchesNaiveLoop(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	const batch, steps, cin, cout, width, dilation = 2, 6, 3, 2, 3, 2
	x := randn(rng, tensor.Shape{batch, 1, steps, cin})
	k := randn(rng, tensor.Shape{1, width, cin, cout})

	out, _ := ops.DilatedConv(x, k, dilation)

	before, after := ops.SamePadding(width, dilation)
	assert.Equal(t, 2, before)
	assert.Equal(t, 2, after)
	for b := 0; b < batch; b++ {
		for s := 0; s < steps; s++ {
			for o := 0; o < cout; o++ {
				var want float64
				for tap := 0; tap < width; tap++ {
					src := s + tap*dilation - before
					if src < 0 || src >= steps {
						continue
					}
					for i := 0; i < cin; i++ {
						want += x.At(b, 0, src, i) * k.At(0, tap, i, o)
					}
				}
				assert.InDelta(t, want, out.At(b, 0, s, o), 1e-12)
			}
		}
	}
}

func TestDilatedConv_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, dilation := range []int{1, 2, 3} {
		x := randn(rng, tensor.Shape{2, 1, 5, 3})
		k := randn(rng, tensor.Shape{1, 3, 3, 2})
		checkGradients(t, func(tape *autodiff.GradientTape) *tensor.Tensor {
			return tape.SumSquares(tape.DilatedConv(x, k, dilation))
		}, x, k)
	}
}

func TestDenseStack_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	x := randn(rng, tensor.Shape{2, 3, 4})
	w := randn(rng, tensor.Shape{4, 5})
	b := randn(rng, tensor.Shape{5})

	for _, kind := range []ops.Nonlinearity{ops.Tanh, ops.Sigmoid, ops.ELU, ops.Linear} {
		t.Run(string(kind), func(t *testing.T) {
			checkGradients(t, func(tape *autodiff.GradientTape) *tensor.Tensor {
				h := tape.Activation(kind, tape.BiasAdd(tape.MatMul(x, w), b))
				return tape.SumSquares(h)
			}, x, w, b)
		})
	}
}

func TestReLU_Gradient(t *testing.T) {
	x, err := tensor.FromSlice([]float64{-2, -0.5, 0.5, 3}, tensor.Shape{4})
	require.NoError(t, err)

	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	loss := tape.SumSquares(tape.Activation(ops.ReLU, x))
	grads := tape.Backward(loss)

	assert.Equal(t, []float64{0, 0, 1, 6}, grads.Of(x).Data())
	assert.InDelta(t, 9.25, loss.Item(), 1e-12)
}

func TestCatReshapeArithmetic_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randn(rng, tensor.Shape{2, 1, 3, 2})
	b := randn(rng, tensor.Shape{2, 1, 3, 4})
	c := randn(rng, tensor.Shape{6, 6})

	checkGradients(t, func(tape *autodiff.GradientTape) *tensor.Tensor {
		cat := tape.Cat([]*tensor.Tensor{a, b})
		flat := tape.Reshape(cat, tensor.Shape{6, 6})
		diff := tape.Sub(flat, tape.Scale(c, 0.5))
		return tape.Add(tape.SumSquares(diff), tape.SumSquares(tape.Add(flat, c)))
	}, a, b, c)
}

func TestEmbedding(t *testing.T) {
	weight, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	require.NoError(t, err)
	ids := [][]int{{1, 0, 3}, {3, 2, 0}}

	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	out := tape.Embedding(weight, ids)
	assert.Equal(t, tensor.Shape{2, 3, 2}, out.Shape())
	assert.Equal(t, []float64{1, 2, 0, 0, 5, 6, 5, 6, 3, 4, 0, 0}, out.Data())

	grads := tape.Backward(tape.SumSquares(out))
	// Row for id 3 is used twice, padding contributes nothing.
	assert.Equal(t, []float64{2, 4, 6, 8, 20, 24}, grads.Of(weight).Data())
}

func TestDropout(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := tensor.Full(tensor.Shape{1000}, 1)

	var tape *autodiff.GradientTape
	assert.Same(t, x, tape.Dropout(x, 1, rng), "keep=1 must be the identity")

	tape = autodiff.NewGradientTape()
	tape.StartRecording()
	out := tape.Dropout(x, 0.5, rng)
	kept := 0
	for _, v := range out.Data() {
		switch v {
		case 0:
		case 2:
			kept++
		default:
			t.Fatalf("unexpected dropout value %v", v)
		}
	}
	assert.InDelta(t, 500, kept, 80)

	grads := tape.Backward(tape.SumSquares(out))
	for i, v := range out.Data() {
		// d/dx (2x)² = 8 where kept, 0 where dropped.
		assert.Equal(t, 4*v, grads.Of(x).Data()[i])
	}
}

func TestCRFNegLogLikelihood_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	scores := randn(rng, tensor.Shape{2, 3, 3})
	trans := randn(rng, tensor.Shape{3, 3})
	labels := [][]int{{0, 1, 2}, {2, 2, 0}}

	checkGradients(t, func(tape *autodiff.GradientTape) *tensor.Tensor {
		loss, err := tape.CRFNegLogLikelihood(tape.Scale(scores, 2), trans, labels, []int{3, 2})
		require.NoError(t, err)
		return loss
	}, scores, trans)
}

func TestGradientTape_Accumulates(t *testing.T) {
	x, err := tensor.FromSlice([]float64{3}, tensor.Shape{1})
	require.NoError(t, err)

	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	y := tape.Add(x, x) // y = 2x
	grads := tape.Backward(tape.SumSquares(y))

	// d(4x²)/dx = 8x = 24
	assert.Equal(t, 24.0, grads.Of(x).Item())
	assert.Equal(t, 2, tape.NumOps())
	assert.True(t, tape.IsRecording(), "recording state restored after Backward")

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
}

func TestGradientTape_NilAndStopped(t *testing.T) {
	x := tensor.Full(tensor.Shape{2}, 2)

	var nilTape *autodiff.GradientTape
	assert.Equal(t, 8.0, nilTape.SumSquares(x).Item())
	assert.Equal(t, 0, nilTape.NumOps())

	tape := autodiff.NewGradientTape()
	loss := tape.SumSquares(x)
	assert.Equal(t, 0, tape.NumOps(), "not recording until StartRecording")
	grads := tape.Backward(loss)
	assert.Nil(t, grads.Of(x))
}
