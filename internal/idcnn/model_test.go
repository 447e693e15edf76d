package idcnn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/tensor"
)

func build(t *testing.T, cfg idcnn.NetworkConfig, seed int64) *idcnn.Model {
	t.Helper()
	m, err := idcnn.Build(cfg, nil, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return m
}

func paramNames(params []*nn.Parameter) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	return names
}

func TestBuild_EndToEndShapes(t *testing.T) {
	m := build(t, baseConfig(), 1)

	ids := [][]int{{1, 2, 3, 0}, {4, 5, 0, 0}}
	res, err := m.Forward(nil, ids, 4, idcnn.NoDropout, nil)
	require.NoError(t, err)

	require.Len(t, res.Scores, 1)
	assert.Equal(t, tensor.Shape{2, 4, 3}, res.Last().Shape())
	assert.Equal(t, tensor.Shape{2, 4, 8}, res.Hidden.Shape())
	assert.Equal(t, 2, res.Batch)
	assert.Equal(t, 4, res.Steps)

	terms, err := m.Loss(nil, res, nil, [][]int{{0, 1, 2, 0}, {2, 2, 0, 0}}, [][]int{{3}, {2}}, idcnn.LossCoefficients{})
	require.NoError(t, err)
	assert.True(t, terms.Total.AllFinite())
	assert.GreaterOrEqual(t, terms.Total.Item(), 0.0)
	assert.Equal(t, []int{3, 2}, terms.Lengths)
}

func TestBuild_SamePaddingAcrossDilations(t *testing.T) {
	cfg := baseConfig()
	cfg.Layers = []idcnn.LayerSpec{
		{Name: "d1", Dilation: 1, Width: 3, Filters: 4},
		{Name: "d2", Dilation: 2, Width: 3, Filters: 4},
		{Name: "d4", Dilation: 4, Width: 5, Filters: 4, Initialization: nn.InitIdentity},
		{Name: "d8", Dilation: 8, Width: 3, Filters: 6, Initialization: nn.InitVarScale, Take: true},
	}
	m := build(t, cfg, 2)

	for _, steps := range []int{1, 3, 17} {
		ids := make([][]int, 2)
		for b := range ids {
			ids[b] = make([]int, steps)
			for i := range ids[b] {
				ids[b][i] = 1 + (b+i)%9
			}
		}
		scores, err := m.Predict(ids)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, steps, 3}, scores.Shape())
	}
}

func TestBuild_ParameterSharing(t *testing.T) {
	cfg := baseConfig()
	one := build(t, cfg, 3)

	cfg.Repeats = 3
	shared := build(t, cfg, 3)
	assert.Equal(t, one.NumBlockParameters(), shared.NumBlockParameters())
	assert.Equal(t, one.NumParameters(), shared.NumParameters())
	assert.Same(t, shared.Blocks[0], shared.Blocks[2])
	assert.Len(t, shared.UniqueBlocks(), 1)

	cfg.ShareRepeats = false
	independent := build(t, cfg, 3)
	assert.Equal(t, 3*one.NumBlockParameters(), independent.NumBlockParameters())
	assert.NotSame(t, independent.Blocks[0], independent.Blocks[1])
	assert.Len(t, independent.UniqueBlocks(), 3)
}

func TestBuild_ParameterNames(t *testing.T) {
	cfg := baseConfig()
	cfg.Repeats = 2
	shared := build(t, cfg, 4)
	assert.Equal(t, []string{
		"w_e", "conv0_w", "conv0_b",
		"block/conv1_w", "block/conv1_b", "block/w_o", "block/b_o",
		"transitions",
	}, paramNames(shared.Parameters()))

	cfg.ShareRepeats = false
	cfg.UseProjection = true
	independent := build(t, cfg, 4)
	assert.Equal(t, []string{
		"w_e", "conv0_w", "conv0_b",
		"block0/conv1_w", "block0/conv1_b", "block0/w_p", "block0/b_p", "block0/w_o", "block0/b_o",
		"block1/conv1_w", "block1/conv1_b", "block1/w_p", "block1/b_p", "block1/w_o", "block1/b_o",
		"transitions",
	}, paramNames(independent.Parameters()))
}

func TestBuild_ParameterShapesAndBiases(t *testing.T) {
	cfg := baseConfig()
	cfg.UseProjection = true
	cfg.Nonlinearity = ops.Tanh
	cfg.Layers = []idcnn.LayerSpec{
		{Name: "a", Dilation: 1, Width: 3, Filters: 6, Initialization: nn.InitIdentity, Take: true},
		{Name: "b", Dilation: 2, Width: 5, Filters: 4, Initialization: nn.InitHe},
		{Name: "c", Dilation: 4, Width: 3, Filters: 10, Initialization: nn.InitVarScale, Take: true},
	}
	m := build(t, cfg, 5)

	assert.Equal(t, tensor.Shape{9, 5}, m.Embedding.Weight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{1, 3, 5, 6}, m.Initial.Weight.Tensor().Shape())
	assert.Equal(t, ops.ReLU, m.Initial.Activation)
	assert.InDelta(t, 0.06, m.Initial.Bias.Tensor().Sum(), 1e-12)

	bp := m.Blocks[0]
	assert.Equal(t, 16, bp.TakenWidth)
	assert.Equal(t, []bool{true, false, true}, bp.Take)
	assert.Equal(t, tensor.Shape{1, 3, 6, 6}, bp.Layers[0].Weight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{1, 5, 6, 4}, bp.Layers[1].Weight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{1, 3, 4, 10}, bp.Layers[2].Weight.Tensor().Shape())
	assert.Equal(t, 4, bp.Layers[2].Dilation)
	assert.Equal(t, ops.Tanh, bp.Layers[1].Activation)

	assert.Equal(t, 0.0, bp.Layers[0].Bias.Tensor().Sum(), "identity starts with zero bias")
	assert.InDelta(t, 0.04, bp.Layers[1].Bias.Tensor().Sum(), 1e-12)
	assert.Equal(t, 0.0, bp.Layers[2].Bias.Tensor().Sum(), "varscale starts with zero bias")

	require.NotNil(t, bp.Projection)
	assert.Equal(t, tensor.Shape{16, 4}, bp.Projection.Weight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{4, 3}, bp.Output.Weight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{3, 3}, m.Transitions.Tensor().Shape())
}

func TestBuild_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(6))

	cfg := baseConfig()
	cfg.Layers[0].Take = false
	_, err := idcnn.Build(cfg, nil, rng)
	assert.ErrorIs(t, err, idcnn.ErrConfiguration)

	cfg = baseConfig()
	cfg.Layers[0].Width = 2
	_, err = idcnn.Build(cfg, nil, rng)
	assert.ErrorIs(t, err, idcnn.ErrConfiguration)

	_, err = idcnn.Build(baseConfig(), tensor.New(tensor.Shape{10, 5}), rng)
	assert.ErrorIs(t, err, idcnn.ErrShapeMismatch)
}

func TestBuild_PretrainedEmbeddings(t *testing.T) {
	table := tensor.Full(tensor.Shape{9, 5}, 0.5)
	m, err := idcnn.Build(baseConfig(), table, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	assert.Equal(t, table.Data(), m.Embedding.Weight.Tensor().Data())
}

func TestForward_Errors(t *testing.T) {
	m := build(t, baseConfig(), 8)
	rng := rand.New(rand.NewSource(8))

	tests := []struct {
		name   string
		ids    [][]int
		maxLen int
		keep   idcnn.KeepProbs
		rng    *rand.Rand
		want   error
	}{
		{"ragged", [][]int{{1, 2}, {1}}, 2, idcnn.NoDropout, nil, idcnn.ErrShapeMismatch},
		{"row longer than max", [][]int{{1, 2, 3}}, 2, idcnn.NoDropout, nil, idcnn.ErrShapeMismatch},
		{"empty batch", nil, 2, idcnn.NoDropout, nil, idcnn.ErrShapeMismatch},
		{"zero max length", [][]int{{}}, 0, idcnn.NoDropout, nil, idcnn.ErrShapeMismatch},
		{"id outside vocab", [][]int{{1, 10}}, 2, idcnn.NoDropout, nil, idcnn.ErrShapeMismatch},
		{"zero keep", [][]int{{1, 2}}, 2, idcnn.KeepProbs{Hidden: 0, Input: 1, Middle: 1}, rng, idcnn.ErrConfiguration},
		{"keep above one", [][]int{{1, 2}}, 2, idcnn.KeepProbs{Hidden: 1, Input: 1.5, Middle: 1}, rng, idcnn.ErrConfiguration},
		{"dropout without rng", [][]int{{1, 2}}, 2, idcnn.KeepProbs{Hidden: 0.5, Input: 1, Middle: 1}, nil, idcnn.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Forward(nil, tt.ids, tt.maxLen, tt.keep, tt.rng)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestForward_L2PerRepetition(t *testing.T) {
	cfg := baseConfig()
	cfg.Repeats = 3
	m := build(t, cfg, 9)

	res, err := m.Forward(nil, [][]int{{1, 2, 3}}, 3, idcnn.NoDropout, nil)
	require.NoError(t, err)
	require.Len(t, res.Scores, 3)

	out := m.Blocks[0].Output
	want := 3 * (out.Weight.Tensor().SumSquares() + out.Bias.Tensor().SumSquares())
	assert.InDelta(t, want, res.L2.Item(), 1e-12)

	// A second call starts from zero again.
	again, err := m.Forward(nil, [][]int{{1, 2, 3}}, 3, idcnn.NoDropout, nil)
	require.NoError(t, err)
	assert.Equal(t, res.L2.Item(), again.L2.Item())
}

func TestForward_Deterministic(t *testing.T) {
	cfg := baseConfig()
	cfg.Repeats = 2
	cfg.UseProjection = true
	m := build(t, cfg, 10)

	ids := [][]int{{3, 1, 4, 1, 5}}
	a, err := m.Predict(ids)
	require.NoError(t, err)
	b, err := m.Predict(ids)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())

	// Padding positions do not leak into other examples of the batch.
	batch, err := m.Predict([][]int{{3, 1, 4, 1, 5}, {9, 9, 0, 0, 0}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Data(), batch.Data()[:a.NumElements()], 1e-12)
}

func TestForward_DropoutChangesScores(t *testing.T) {
	m := build(t, baseConfig(), 11)
	ids := [][]int{{1, 2, 3, 4, 5, 6}}
	keep := idcnn.KeepProbs{Hidden: 0.5, Input: 0.5, Middle: 0.5}

	noisy, err := m.Forward(nil, ids, 6, keep, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	clean, err := m.Predict(ids)
	require.NoError(t, err)
	assert.NotEqual(t, clean.Data(), noisy.Last().Data())

	again, err := m.Forward(nil, ids, 6, keep, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, noisy.Last().Data(), again.Last().Data(), "same seed, same masks")
}

func TestDecode(t *testing.T) {
	m := build(t, baseConfig(), 12)

	paths, err := m.Decode([][]int{{1, 2, 3, 4}, {5, 6, 0, 0}, {7, 0, 0, 0}}, [][]int{{4}, {2}, {9}})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Len(t, paths[0], 4)
	assert.Len(t, paths[1], 2)
	assert.Len(t, paths[2], 4, "lengths beyond T are clamped")
	for _, p := range paths {
		for _, c := range p {
			assert.True(t, c >= 0 && c < 3)
		}
	}

	_, err = m.Decode([][]int{{1, 2}}, [][]int{{-1}})
	assert.ErrorIs(t, err, idcnn.ErrInvalidLength)
	_, err = m.Decode([][]int{{1, 2}}, [][]int{{1}, {1}})
	assert.ErrorIs(t, err, idcnn.ErrShapeMismatch)
}
