// Package config loads run configuration from YAML.
//
// A run file has a model section, decoded into idcnn.NetworkConfig, and a
// train section:
//
//	model:
//	  embedding_size: 100
//	  repeats: 4
//	  share_repeats: true
//	  nonlinearity: relu
//	  layers:
//	    - {name: conv1, dilation: 1, width: 3, filters: 300}
//	    - {name: conv2, dilation: 2, width: 3, filters: 300}
//	    - {name: conv3, dilation: 1, width: 3, filters: 300, take: true}
//	train:
//	  optimizer: Adam
//	  learning_rate: 0.0005
//	  batch_size: 32
//
// num_classes and vocab_size may be left out; the trainer fills them from
// the corpus.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/optim"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is a complete run configuration.
type Config struct {
	Model idcnn.NetworkConfig `yaml:"model"`
	Train TrainConfig         `yaml:"train"`
}

// TrainConfig controls optimization.
type TrainConfig struct {
	Optimizer    string  `yaml:"optimizer"`     // SGD, Momentum, Adagrad, RMSProp or Adam
	LearningRate float64 `yaml:"learning_rate"` // Initial learning rate
	DecaySteps   int     `yaml:"decay_steps"`   // 0 disables decay
	DecayRate    float64 `yaml:"decay_rate"`
	Staircase    bool    `yaml:"staircase"`
	ClipNorm     float64 `yaml:"clip_norm"` // Global gradient norm limit. 0 = disabled.

	BatchSize int `yaml:"batch_size"`
	Epochs    int `yaml:"epochs"`

	InputKeep  float64 `yaml:"input_keep"`  // Keep probability of the embeddings
	MiddleKeep float64 `yaml:"middle_keep"` // Keep probability after every block
	HiddenKeep float64 `yaml:"hidden_keep"` // Keep probability before the output layer

	L2Penalty   float64 `yaml:"l2_penalty"`
	DropPenalty float64 `yaml:"drop_penalty"`

	MinCount   int    `yaml:"min_count"`  // Words seen fewer times map to <UNK>
	Seed       int64  `yaml:"seed"`       // -1 = random
	LogEvery   int    `yaml:"log_every"`  // Steps between progress logs
	Checkpoint string `yaml:"checkpoint"` // Output path. Empty = no checkpoints.
}

// KeepProbs returns the dropout keep probabilities.
func (t TrainConfig) KeepProbs() idcnn.KeepProbs {
	return idcnn.KeepProbs{Hidden: t.HiddenKeep, Input: t.InputKeep, Middle: t.MiddleKeep}
}

// Coefficients returns the loss weights.
func (t TrainConfig) Coefficients() idcnn.LossCoefficients {
	return idcnn.LossCoefficients{L2: t.L2Penalty, Drop: t.DropPenalty}
}

// Schedule returns the learning-rate schedule.
func (t TrainConfig) Schedule() optim.ExponentialDecay {
	return optim.ExponentialDecay{
		Base:       t.LearningRate,
		DecaySteps: t.DecaySteps,
		DecayRate:  t.DecayRate,
		Staircase:  t.Staircase,
	}
}

// DefaultTrainConfig returns the defaults applied to unset train fields.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Optimizer:    optim.NameAdam,
		LearningRate: 0.0005,
		DecayRate:    1,
		BatchSize:    32,
		Epochs:       10,
		InputKeep:    1,
		MiddleKeep:   1,
		HiddenKeep:   1,
		MinCount:     1,
		Seed:         -1,
		LogEvery:     100,
	}
}

// Default returns a configuration with a small three-layer network.
func Default() Config {
	return Config{
		Model: idcnn.NetworkConfig{
			EmbeddingSize: 100,
			Repeats:       1,
			ShareRepeats:  true,
			Layers: []idcnn.LayerSpec{
				{Name: "conv1", Dilation: 1, Width: 3, Filters: 300},
				{Name: "conv2", Dilation: 2, Width: 3, Filters: 300},
				{Name: "conv3", Dilation: 1, Width: 3, Filters: 300, Take: true},
			},
		}.WithDefaults(),
		Train: DefaultTrainConfig(),
	}
}

// Parse decodes YAML over Default, applies defaults and validates the
// train section. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "decoding yaml")
	}
	cfg.Model = cfg.Model.WithDefaults()
	if err := cfg.Train.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: config path comes from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the train section.
func (t TrainConfig) Validate() error {
	switch {
	case t.LearningRate <= 0:
		return errors.Wrapf(ErrInvalid, "learning_rate %v must be positive", t.LearningRate)
	case t.DecaySteps < 0:
		return errors.Wrapf(ErrInvalid, "decay_steps %d is negative", t.DecaySteps)
	case t.DecayRate <= 0:
		return errors.Wrapf(ErrInvalid, "decay_rate %v must be positive", t.DecayRate)
	case t.ClipNorm < 0:
		return errors.Wrapf(ErrInvalid, "clip_norm %v is negative", t.ClipNorm)
	case t.BatchSize < 1:
		return errors.Wrapf(ErrInvalid, "batch_size %d must be at least 1", t.BatchSize)
	case t.Epochs < 1:
		return errors.Wrapf(ErrInvalid, "epochs %d must be at least 1", t.Epochs)
	case !t.KeepProbs().Valid():
		return errors.Wrapf(ErrInvalid, "keep probabilities %+v must be in (0, 1]", t.KeepProbs())
	case t.L2Penalty < 0 || t.DropPenalty < 0:
		return errors.Wrapf(ErrInvalid, "penalties must be non-negative")
	case t.MinCount < 1:
		return errors.Wrapf(ErrInvalid, "min_count %d must be at least 1", t.MinCount)
	case t.LogEvery < 1:
		return errors.Wrapf(ErrInvalid, "log_every %d must be at least 1", t.LogEvery)
	}
	if _, err := optim.New(t.Optimizer, nil, t.LearningRate); err != nil {
		return errors.Wrapf(ErrInvalid, "optimizer: %v", err)
	}
	return nil
}
