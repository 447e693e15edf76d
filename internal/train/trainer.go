// Package train runs optimization of the tagger over a corpus.
//
// One step evaluates the network twice on the same batch, once with dropout
// and once without, combines the CRF likelihood with the weight and
// dropout-consistency penalties, and applies one optimizer update with the
// decayed learning rate.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/config"
	"github.com/born-ml/idcnn/internal/dataset"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/optim"
	"github.com/born-ml/idcnn/internal/serialization"
)

// Options configures a Trainer.
type Options struct {
	Config       config.TrainConfig
	Logger       *slog.Logger        // nil discards logs
	Version      string              // recorded in checkpoints
	Vocabularies map[string][]string // recorded in checkpoints
}

// StepResult reports one optimization step.
type StepResult struct {
	Step     int64
	Loss     float64 // composite objective
	CRF      float64
	L2       float64
	Drop     float64
	GradNorm float64 // global norm before clipping
	LR       float64
}

// Trainer owns the optimizer state for one model.
type Trainer struct {
	model    *idcnn.Model
	params   []*nn.Parameter
	opt      optim.Optimizer
	cfg      config.TrainConfig
	schedule optim.ExponentialDecay
	rng      *rand.Rand
	logger   *slog.Logger
	opts     Options
	runID    string
	step     int64
}

// New creates a trainer for model. Batches from the dataset package carry a
// single length column per example, so the model's length decoder is set
// to a plain sum.
func New(model *idcnn.Model, opts Options) (*Trainer, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	params := model.Parameters()
	opt, err := optim.New(opts.Config.Optimizer, params, opts.Config.LearningRate)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	seed := opts.Config.Seed
	if seed < 0 {
		seed = rand.Int63() //nolint:gosec // user requested a random seed
	}
	model.Lengths = idcnn.SumDecoder{}

	return &Trainer{
		model:    model,
		params:   params,
		opt:      opt,
		cfg:      opts.Config,
		schedule: opts.Config.Schedule(),
		rng:      rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic seed for reproducibility
		logger:   logger,
		opts:     opts,
		runID:    uuid.NewString(),
	}, nil
}

// GlobalStep returns the number of completed steps.
func (t *Trainer) GlobalStep() int64 { return t.step }

// Model returns the model being trained.
func (t *Trainer) Model() *idcnn.Model { return t.model }

// Step performs one optimization step on batch.
func (t *Trainer) Step(ctx context.Context, batch *dataset.Batch) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	t.opt.ZeroGrad()

	tape := autodiff.NewGradientTape()
	tape.StartRecording()

	keep := t.cfg.KeepProbs()
	coef := t.cfg.Coefficients()
	noisy, err := t.model.Forward(tape, batch.TokenIDs, batch.MaxLen, keep, t.rng)
	if err != nil {
		return StepResult{}, fmt.Errorf("forward with dropout: %w", err)
	}

	// The deterministic pass joins the graph only when its distance is
	// penalized.
	cleanTape := tape
	if coef.Drop == 0 {
		cleanTape = nil
	}
	clean, err := t.model.Forward(cleanTape, batch.TokenIDs, batch.MaxLen, idcnn.NoDropout, nil)
	if err != nil {
		return StepResult{}, fmt.Errorf("forward without dropout: %w", err)
	}

	terms, err := t.model.Loss(tape, noisy, clean.Last(), batch.Labels, batch.RawLengths, coef)
	if err != nil {
		return StepResult{}, fmt.Errorf("loss: %w", err)
	}
	if !terms.Total.AllFinite() {
		return StepResult{}, fmt.Errorf("step %d: loss is not finite", t.step)
	}

	grads := tape.Backward(terms.Total)
	norm := optim.ClipByGlobalNorm(t.params, grads, t.cfg.ClipNorm)
	for _, p := range t.params {
		p.CaptureGrad(grads)
	}

	lr := t.schedule.At(int(t.step))
	t.opt.SetLR(lr)
	t.opt.Step(grads)
	t.step++

	return StepResult{
		Step:     t.step,
		Loss:     terms.Total.Item(),
		CRF:      terms.CRF,
		L2:       terms.L2,
		Drop:     terms.Drop,
		GradNorm: norm,
		LR:       lr,
	}, nil
}

// Report summarizes a Fit run.
type Report struct {
	Epochs       int
	Steps        int64
	LastLoss     float64
	BestAccuracy float64 // on the dev set, or -1 without one
	BestEpoch    int
	Elapsed      time.Duration
}

// Fit trains for the configured number of epochs. After every epoch the
// dev set, when non-empty, is decoded and scored; a checkpoint is written
// whenever the dev accuracy improves, or after every epoch without a dev
// set. Cancelling ctx stops training between steps.
func (t *Trainer) Fit(ctx context.Context, trainSet, devSet []dataset.Example) (Report, error) {
	for i, e := range trainSet {
		if e.Labels == nil {
			return Report{}, fmt.Errorf("training example %d has no labels", i)
		}
	}
	start := time.Now()
	report := Report{BestAccuracy: -1}
	devBatches := dataset.Batches(devSet, t.cfg.BatchSize, nil)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		var sum float64
		batches := dataset.Batches(trainSet, t.cfg.BatchSize, t.rng)
		for _, b := range batches {
			res, err := t.Step(ctx, b)
			if err != nil {
				return report, err
			}
			sum += res.Loss
			report.LastLoss = res.Loss
			report.Steps = res.Step
			if res.Step%int64(t.cfg.LogEvery) == 0 {
				t.logger.Info("step",
					"step", res.Step,
					"loss", res.Loss,
					"crf", res.CRF,
					"drop", res.Drop,
					"grad_norm", res.GradNorm,
					"lr", res.LR)
			}
		}
		report.Epochs = epoch

		attrs := []any{"epoch", epoch, "steps", t.step, "mean_loss", sum / float64(max(1, len(batches)))}
		improved := len(devBatches) == 0
		if len(devBatches) > 0 {
			m, err := t.Evaluate(ctx, devBatches)
			if err != nil {
				return report, err
			}
			attrs = append(attrs, "dev_accuracy", m.Accuracy(), "dev_tokens", m.Tokens)
			if m.Accuracy() > report.BestAccuracy {
				report.BestAccuracy = m.Accuracy()
				report.BestEpoch = epoch
				improved = true
			}
		}
		t.logger.Info("epoch done", attrs...)

		if improved && t.cfg.Checkpoint != "" {
			if err := t.Save(t.cfg.Checkpoint, epoch, report.LastLoss); err != nil {
				return report, err
			}
			t.logger.Info("checkpoint written", "path", t.cfg.Checkpoint, "epoch", epoch)
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

// Save writes the model with the current training state to path.
func (t *Trainer) Save(path string, epoch int, loss float64) error {
	return t.model.Save(path, serialization.Header{
		Version:      t.opts.Version,
		RunID:        t.runID,
		Vocabularies: t.opts.Vocabularies,
		Checkpoint: &serialization.CheckpointMeta{
			Epoch:      epoch,
			GlobalStep: t.step,
			Loss:       loss,
			Optimizer:  t.cfg.Optimizer,
			LR:         t.opt.GetLR(),
		},
	})
}

// Metrics counts token-level tagging accuracy.
type Metrics struct {
	Tokens  int
	Correct int
}

// Accuracy returns Correct/Tokens, or 0 for no tokens.
func (m Metrics) Accuracy() float64 {
	if m.Tokens == 0 {
		return 0
	}
	return float64(m.Correct) / float64(m.Tokens)
}

// Evaluate decodes every batch and compares the best paths to the labels.
func (t *Trainer) Evaluate(ctx context.Context, batches []*dataset.Batch) (Metrics, error) {
	return Evaluate(ctx, t.model, batches)
}

// Evaluate scores model on labeled batches.
func Evaluate(ctx context.Context, model *idcnn.Model, batches []*dataset.Batch) (Metrics, error) {
	var m Metrics
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		paths, err := model.Decode(b.TokenIDs, b.RawLengths)
		if err != nil {
			return m, fmt.Errorf("decoding: %w", err)
		}
		for i, e := range b.Examples {
			for j, label := range e.Labels {
				m.Tokens++
				if j < len(paths[i]) && paths[i][j] == label {
					m.Correct++
				}
			}
		}
	}
	return m, nil
}

// Predict decodes unlabeled examples in batches of size and returns one
// tag id path per example, in input order.
func Predict(ctx context.Context, model *idcnn.Model, examples []dataset.Example, size int) ([][]int, error) {
	out := make([][]int, len(examples))
	pos := 0
	for _, b := range dataset.Batches(examples, size, nil) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paths, err := model.Decode(b.TokenIDs, b.RawLengths)
		if err != nil {
			return nil, fmt.Errorf("decoding: %w", err)
		}
		copy(out[pos:], paths)
		pos += len(paths)
	}
	return out, nil
}
