package train_test

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/config"
	"github.com/born-ml/idcnn/internal/dataset"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/serialization"
	"github.com/born-ml/idcnn/internal/train"
)

// toyCorpus tags every token with its id modulo 3.
func toyCorpus(n int, seed int64) []dataset.Example {
	rng := rand.New(rand.NewSource(seed))
	out := make([]dataset.Example, n)
	for i := range out {
		length := 1 + rng.Intn(6)
		ex := dataset.Example{Index: i, Tokens: make([]int, length), Labels: make([]int, length)}
		for j := range ex.Tokens {
			ex.Tokens[j] = 2 + rng.Intn(10)
			ex.Labels[j] = ex.Tokens[j] % 3
		}
		out[i] = ex
	}
	return out
}

func toyModel(t *testing.T) *idcnn.Model {
	t.Helper()
	m, err := idcnn.Build(idcnn.NetworkConfig{
		NumClasses:    3,
		VocabSize:     12,
		EmbeddingSize: 8,
		Repeats:       2,
		ShareRepeats:  true,
		Nonlinearity:  ops.ReLU,
		Layers: []idcnn.LayerSpec{
			{Name: "conv1", Dilation: 1, Width: 3, Filters: 8},
			{Name: "conv2", Dilation: 2, Width: 3, Filters: 8, Take: true},
		},
	}, nil, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	return m
}

func toyConfig() config.TrainConfig {
	c := config.DefaultTrainConfig()
	c.Optimizer = "Adam"
	c.LearningRate = 0.02
	c.BatchSize = 8
	c.Epochs = 15
	c.InputKeep = 0.9
	c.MiddleKeep = 0.9
	c.HiddenKeep = 0.9
	c.DropPenalty = 0.01
	c.L2Penalty = 1e-4
	c.Seed = 11
	c.LogEvery = 5
	return c
}

func deterministicLoss(t *testing.T, m *idcnn.Model, examples []dataset.Example) float64 {
	t.Helper()
	var total float64
	batches := dataset.Batches(examples, 8, nil)
	for _, b := range batches {
		res, err := m.Forward(nil, b.TokenIDs, b.MaxLen, idcnn.NoDropout, nil)
		require.NoError(t, err)
		loss, err := m.CRFLoss(nil, res.Last(), b.Labels, b.RawLengths)
		require.NoError(t, err)
		total += loss.Item()
	}
	return total / float64(len(batches))
}

func TestFit_LossDecreases(t *testing.T) {
	m := toyModel(t)
	trainSet := toyCorpus(40, 1)
	devSet := toyCorpus(16, 2)

	tr, err := train.New(m, train.Options{Config: toyConfig()})
	require.NoError(t, err)
	before := deterministicLoss(t, m, trainSet)

	report, err := tr.Fit(context.Background(), trainSet, devSet)
	require.NoError(t, err)

	after := deterministicLoss(t, m, trainSet)
	assert.Less(t, after, before)
	assert.Equal(t, 15, report.Epochs)
	assert.Equal(t, int64(15*5), report.Steps)
	assert.Equal(t, report.Steps, tr.GlobalStep())
	assert.Greater(t, report.BestAccuracy, 0.5)
	assert.GreaterOrEqual(t, report.BestEpoch, 1)
}

func TestStep_ReportsTerms(t *testing.T) {
	m := toyModel(t)
	cfg := toyConfig()
	cfg.DecaySteps = 1
	cfg.DecayRate = 0.5
	tr, err := train.New(m, train.Options{Config: cfg})
	require.NoError(t, err)

	batch := dataset.NewBatch(toyCorpus(4, 5))
	first, err := tr.Step(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Step)
	assert.InDelta(t, 0.02, first.LR, 1e-12)
	assert.Greater(t, first.CRF, 0.0)
	assert.Greater(t, first.L2, 0.0)
	assert.Greater(t, first.GradNorm, 0.0)
	assert.InDelta(t, first.CRF+1e-4*first.L2+0.01*first.Drop, first.Loss, 1e-9)

	second, err := tr.Step(context.Background(), batch)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, second.LR, 1e-12)
	assert.NotNil(t, m.Transitions.Grad())
}

func TestStep_Cancelled(t *testing.T) {
	tr, err := train.New(toyModel(t), train.Options{Config: toyConfig()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tr.Step(ctx, dataset.NewBatch(toyCorpus(2, 1)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, tr.GlobalStep())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := toyConfig()
	cfg.BatchSize = 0
	_, err := train.New(toyModel(t), train.Options{Config: cfg})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestFit_RequiresLabels(t *testing.T) {
	tr, err := train.New(toyModel(t), train.Options{Config: toyConfig()})
	require.NoError(t, err)
	_, err = tr.Fit(context.Background(), []dataset.Example{{Tokens: []int{2}}}, nil)
	assert.Error(t, err)
}

func TestFit_WritesCheckpoint(t *testing.T) {
	cfg := toyConfig()
	cfg.Epochs = 2
	cfg.Checkpoint = filepath.Join(t.TempDir(), "model.idcn")
	vocabs := map[string][]string{"tags": {"A", "B", "C"}}
	tr, err := train.New(toyModel(t), train.Options{Config: cfg, Version: "test", Vocabularies: vocabs})
	require.NoError(t, err)

	_, err = tr.Fit(context.Background(), toyCorpus(10, 1), nil)
	require.NoError(t, err)

	loaded, ckpt, err := idcnn.Load(cfg.Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, vocabs, ckpt.Header.Vocabularies)
	require.NotNil(t, ckpt.Header.Checkpoint)
	assert.Equal(t, 2, ckpt.Header.Checkpoint.Epoch)
	assert.Equal(t, tr.GlobalStep(), ckpt.Header.Checkpoint.GlobalStep)
	assert.Equal(t, "Adam", ckpt.Header.Checkpoint.Optimizer)

	want, err := tr.Model().Predict([][]int{{2, 3, 4}})
	require.NoError(t, err)
	got, err := loaded.Predict([][]int{{2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestPredictAndEvaluate(t *testing.T) {
	m := toyModel(t)
	m.Lengths = idcnn.SumDecoder{}
	examples := toyCorpus(5, 9)

	paths, err := train.Predict(context.Background(), m, examples, 2)
	require.NoError(t, err)
	require.Len(t, paths, 5)
	for i, e := range examples {
		assert.Len(t, paths[i], e.Len())
	}

	metrics, err := train.Evaluate(context.Background(), m, dataset.Batches(examples, 2, nil))
	require.NoError(t, err)
	tokens := 0
	for _, e := range examples {
		tokens += e.Len()
	}
	assert.Equal(t, tokens, metrics.Tokens)
	assert.LessOrEqual(t, metrics.Correct, metrics.Tokens)
	assert.Zero(t, train.Metrics{}.Accuracy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = train.Predict(ctx, m, examples, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSave_HeaderRoundTrip(t *testing.T) {
	tr, err := train.New(toyModel(t), train.Options{Config: toyConfig(), Version: "v1"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "m.idcn")
	require.NoError(t, tr.Save(path, 3, 1.25))

	ckpt, err := serialization.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", ckpt.Header.Version)
	assert.Equal(t, 1.25, ckpt.Header.Checkpoint.Loss)
	assert.NotEmpty(t, ckpt.Header.RunID)
}
