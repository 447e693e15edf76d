package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"

	"github.com/born-ml/idcnn/internal/config"
	"github.com/born-ml/idcnn/internal/dataset"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/tensor"
	"github.com/born-ml/idcnn/internal/train"
)

func runTrain(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML run configuration (defaults when empty)")
	trainPath := fs.String("train", "", "Training corpus in CoNLL format")
	devPath := fs.String("dev", "", "Development corpus scored after every epoch")
	vectorsPath := fs.String("vectors", "", "Pretrained word vectors (word v1 ... vN per line)")
	out := fs.String("out", "", "Checkpoint path (overrides train.checkpoint)")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *trainPath == "" {
		return errors.New("train: -train is required")
	}

	logger, err := newLogger(stderr, *logFormat, *verbose)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *out != "" {
		cfg.Train.Checkpoint = *out
	}

	trainSentences, err := dataset.ReadFile(*trainPath)
	if err != nil {
		return err
	}
	words := dataset.NewWordVocab(trainSentences, cfg.Train.MinCount)
	tags := dataset.NewTagVocab(trainSentences)
	cfg.Model.VocabSize = words.Size()
	cfg.Model.NumClasses = tags.Size()
	logger.Info("corpus loaded",
		"path", *trainPath,
		"sentences", len(trainSentences),
		"words", words.Size(),
		"tags", tags.Size())

	trainSet, err := dataset.Encode(trainSentences, words, tags)
	if err != nil {
		return err
	}
	var devSet []dataset.Example
	if *devPath != "" {
		devSentences, err := dataset.ReadFile(*devPath)
		if err != nil {
			return err
		}
		if devSet, err = dataset.Encode(devSentences, words, tags); err != nil {
			return fmt.Errorf("dev corpus: %w", err)
		}
	}

	seed := cfg.Train.Seed
	if seed < 0 {
		seed = rand.Int63() //nolint:gosec // user requested a random seed
	}
	cfg.Train.Seed = seed
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic seed for reproducibility

	var pretrained *tensor.Tensor
	if *vectorsPath != "" {
		var found int
		pretrained, found, err = dataset.LoadVectorsFile(*vectorsPath, words, cfg.Model.EmbeddingSize, rng)
		if err != nil {
			return err
		}
		logger.Info("vectors loaded", "path", *vectorsPath, "found", found, "vocabulary", words.Size()-1)
	}

	model, err := idcnn.Build(cfg.Model, pretrained, rng)
	if err != nil {
		return err
	}
	logger.Info("model built",
		"parameters", model.NumParameters(),
		"block_parameters", model.NumBlockParameters(),
		"repeats", cfg.Model.Repeats,
		"shared", cfg.Model.ShareRepeats)

	trainer, err := train.New(model, train.Options{
		Config:  cfg.Train,
		Logger:  logger,
		Version: version,
		Vocabularies: map[string][]string{
			vocabWords: words.Items(),
			vocabTags:  tags.Items(),
		},
	})
	if err != nil {
		return err
	}

	report, err := trainer.Fit(ctx, trainSet, devSet)
	if err != nil {
		return err
	}
	logger.Info("training finished",
		"epochs", report.Epochs,
		"steps", report.Steps,
		"loss", report.LastLoss,
		"best_dev_accuracy", report.BestAccuracy,
		"best_epoch", report.BestEpoch,
		"elapsed", report.Elapsed)
	return nil
}
