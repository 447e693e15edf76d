// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tagger provides the public API of the iterated dilated
// convolution sequence tagger with a linear-chain CRF output layer.
//
// # Overview
//
// A network embeds token ids, applies an initial convolution and then a
// block of dilated convolutions repeated Repeats times, optionally with
// shared weights. Every repetition produces per-token class scores; the
// last one feeds the CRF. Training minimizes the CRF negative
// log-likelihood plus an L2 penalty over all repetitions' output layers and
// a penalty on the distance between scores with and without dropout.
//
// # Basic Usage
//
//	cfg := tagger.NetworkConfig{
//	    NumClasses:    9,
//	    VocabSize:     20000,
//	    EmbeddingSize: 100,
//	    Repeats:       4,
//	    ShareRepeats:  true,
//	    Layers: []tagger.LayerSpec{
//	        {Name: "conv1", Dilation: 1, Width: 3, Filters: 300},
//	        {Name: "conv2", Dilation: 2, Width: 3, Filters: 300},
//	        {Name: "conv3", Dilation: 1, Width: 3, Filters: 300, Take: true},
//	    },
//	}
//	model, err := tagger.Build(cfg, nil, rand.New(rand.NewSource(1)))
//
//	tape := tagger.NewGradientTape()
//	tape.StartRecording()
//	noisy, _ := model.Forward(tape, ids, maxLen, keep, rng)
//	clean, _ := model.Forward(tape, ids, maxLen, tagger.NoDropout, nil)
//	terms, _ := model.Loss(tape, noisy, clean.Last(), labels, lengths, coef)
//	grads := tape.Backward(terms.Total)
package tagger

import (
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Model is a built network with its parameters.
type Model = idcnn.Model

// NetworkConfig describes the architecture.
type NetworkConfig = idcnn.NetworkConfig

// LayerSpec describes one dilated convolution of the repeated block.
type LayerSpec = idcnn.LayerSpec

// KeepProbs holds the dropout keep probabilities.
type KeepProbs = idcnn.KeepProbs

// ForwardResult holds the scores of every repetition and the L2 term.
type ForwardResult = idcnn.ForwardResult

// LossCoefficients weights the penalties of the composite loss.
type LossCoefficients = idcnn.LossCoefficients

// LossTerms reports the composite loss and its parts.
type LossTerms = idcnn.LossTerms

// LengthDecoder turns raw length rows into sequence lengths.
type LengthDecoder = idcnn.LengthDecoder

// ZeroSlotDecoder sums a row and adds Correction per zero entry.
type ZeroSlotDecoder = idcnn.ZeroSlotDecoder

// SumDecoder sums a row.
type SumDecoder = idcnn.SumDecoder

// Parameter is a named trainable tensor.
type Parameter = nn.Parameter

// GradientTape records operations for reverse-mode differentiation.
type GradientTape = autodiff.GradientTape

// Gradients maps tensors to their gradients.
type Gradients = autodiff.Gradients

// Nonlinearity names an activation function.
type Nonlinearity = ops.Nonlinearity

// Supported nonlinearities.
const (
	ReLU    = ops.ReLU
	ELU     = ops.ELU
	Tanh    = ops.Tanh
	Sigmoid = ops.Sigmoid
	Linear  = ops.Linear
)

// InitKind names a weight initializer.
type InitKind = nn.InitKind

// Supported initializers.
const (
	InitXavier   = nn.InitXavier
	InitHe       = nn.InitHe
	InitReLU     = nn.InitReLU
	InitIdentity = nn.InitIdentity
	InitVarScale = nn.InitVarScale
	InitNormal   = nn.InitNormal
)

// Errors.
var (
	ErrConfiguration = idcnn.ErrConfiguration
	ErrShapeMismatch = idcnn.ErrShapeMismatch
	ErrInvalidLength = idcnn.ErrInvalidLength
)

// NoDropout keeps every unit.
var NoDropout = idcnn.NoDropout

// Build validates cfg and creates a model. pretrained, when non-nil, is
// the [VocabSize-1, EmbeddingSize] embedding table.
func Build(cfg NetworkConfig, pretrained *tensor.Tensor, rng *rand.Rand) (*Model, error) {
	return idcnn.Build(cfg, pretrained, rng)
}

// Load rebuilds a model from a checkpoint file.
func Load(path string) (*Model, error) {
	m, _, err := idcnn.Load(path)
	return m, err
}

// NewGradientTape creates a tape that is not yet recording.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// DecodeLengths applies the default length decoder.
func DecodeLengths(raw [][]int) ([]int, error) {
	return idcnn.DecodeLengths(raw)
}
