package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/idcnn/internal/dataset"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/serialization"
	"github.com/born-ml/idcnn/internal/train"
)

// Vocabulary keys in checkpoint headers.
const (
	vocabWords = "words"
	vocabTags  = "tags"
)

// loadTagger restores a model and the vocabularies stored with it.
func loadTagger(path string) (*idcnn.Model, *serialization.Checkpoint, *dataset.Vocab, *dataset.Vocab, error) {
	model, ckpt, err := idcnn.Load(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	words, err := dataset.NewWordVocabFromList(ckpt.Header.Vocabularies[vocabWords])
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("checkpoint vocabulary: %w", err)
	}
	tags := dataset.NewTagVocabFromList(ckpt.Header.Vocabularies[vocabTags])
	if tags.Size() != model.Config.NumClasses {
		return nil, nil, nil, nil, fmt.Errorf("checkpoint has %d tags for %d classes", tags.Size(), model.Config.NumClasses)
	}
	model.Lengths = idcnn.SumDecoder{}
	return model, ckpt, words, tags, nil
}

func runPredict(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ckptPath := fs.String("checkpoint", "", "Checkpoint written by train")
	input := fs.String("input", "", "Corpus to tag, one token per line")
	output := fs.String("output", "", "Output path (stdout when empty)")
	batchSize := fs.Int("batch", 32, "Sentences per batch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ckptPath == "" || *input == "" {
		return errors.New("predict: -checkpoint and -input are required")
	}

	model, _, words, tags, err := loadTagger(*ckptPath)
	if err != nil {
		return err
	}

	sentences, err := dataset.ReadFile(*input)
	if err != nil {
		return err
	}
	untagged := make([]dataset.Sentence, len(sentences))
	for i, s := range sentences {
		untagged[i] = dataset.Sentence{Tokens: s.Tokens}
	}
	examples, err := dataset.Encode(untagged, words, tags)
	if err != nil {
		return err
	}

	paths, err := train.Predict(ctx, model, examples, *batchSize)
	if err != nil {
		return err
	}
	predicted := make([][]string, len(paths))
	for i, p := range paths {
		predicted[i] = tags.Decode(p)
	}

	w := stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck // closed explicitly below on success
		bw := bufio.NewWriter(f)
		if err := dataset.Write(bw, untagged, predicted); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return f.Close()
	}
	return dataset.Write(w, untagged, predicted)
}
