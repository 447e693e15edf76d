// Package idcnn implements an Iterated Dilated Convolutional Network tagger
// trained with a linear-chain CRF.
//
// A Model embeds token ids, applies an initial convolution, then runs the
// same block of dilated convolutions Repeats times. Every repetition emits
// a (B, T, NumClasses) score tensor; the last one is the prediction, all of
// them can be supervised.
//
// Forward and Loss are pure functions of the parameters and their inputs.
// Training evaluates Forward twice per step, once with dropout and once
// without, both against the same parameters:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//	noisy, _ := model.Forward(tape, ids, steps, keep, rng)
//	clean, _ := model.Forward(tape, ids, steps, idcnn.NoDropout, nil)
//	terms, _ := model.Loss(tape, noisy, clean.Last(), labels, rawLengths, coef)
//	grads := tape.Backward(terms.Total)
package idcnn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Bias initial values.
const (
	defaultBias = 0.01
	zeroBias    = 0.0
)

// BlockParams owns the parameters of one ConvolutionBlock together with its
// optional projection and its output layer.
type BlockParams struct {
	Scope      string // "block/" when shared, "block<k>/" otherwise
	Layers     []*nn.DilatedConv
	Take       []bool
	TakenWidth int
	Projection *nn.Linear // nil unless UseProjection
	Output     *nn.Linear
}

// Parameters returns the block's parameters in layer order, then
// projection and output.
func (bp *BlockParams) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range bp.Layers {
		params = append(params, l.Parameters()...)
	}
	if bp.Projection != nil {
		params = append(params, bp.Projection.Parameters()...)
	}
	return append(params, bp.Output.Parameters()...)
}

// Model is a built ID-CNN + CRF tagger.
type Model struct {
	Config    NetworkConfig
	Embedding *nn.Embedding
	Initial   *nn.DilatedConv // conv0 over the embeddings

	// Blocks maps repetition index to the parameters it runs with. With
	// ShareRepeats every entry is the same pointer.
	Blocks []*BlockParams

	Transitions *nn.Parameter // [NumClasses, NumClasses]

	// Lengths decodes raw length tensors in Loss and Decode.
	Lengths LengthDecoder
}

// Build validates cfg and creates every parameter of the model.
//
// pretrained, when non-nil, must be a [VocabSize-1, EmbeddingSize] table.
// Configuration problems wrap ErrConfiguration, a pretrained table of the
// wrong shape wraps ErrShapeMismatch. Nothing is allocated before the
// configuration has been validated.
func Build(cfg NetworkConfig, pretrained *tensor.Tensor, rng *rand.Rand) (*Model, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pretrained != nil && !pretrained.Shape().Equal(tensor.Shape{cfg.VocabSize - 1, cfg.EmbeddingSize}) {
		return nil, fmt.Errorf("%w: pretrained embeddings %v, want [%d %d]",
			ErrShapeMismatch, pretrained.Shape(), cfg.VocabSize-1, cfg.EmbeddingSize)
	}

	emb, err := nn.NewEmbedding(cfg.VocabSize, cfg.EmbeddingSize, pretrained, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	first := cfg.Layers[0]
	kernel := nn.Xavier(tensor.Shape{1, first.Width, cfg.EmbeddingSize, first.Filters},
		nn.ConvFans(first.Width, cfg.EmbeddingSize, first.Filters), nn.Gain(ops.ReLU), rng)
	initial, err := nn.NewDilatedConv("conv0", kernel, tensor.Full(tensor.Shape{first.Filters}, defaultBias), 1, ops.ReLU)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	m := &Model{
		Config:    cfg,
		Embedding: emb,
		Initial:   initial,
		Blocks:    make([]*BlockParams, cfg.Repeats),
		Lengths:   DefaultLengthDecoder,
	}

	taken, _ := cfg.TakenWidth()
	in := first.Filters
	for r := range m.Blocks {
		if cfg.ShareRepeats && r > 0 {
			m.Blocks[r] = m.Blocks[0]
			continue
		}
		scope := "block/"
		if !cfg.ShareRepeats {
			scope = fmt.Sprintf("block%d/", r)
		}
		bp, err := buildBlock(cfg, scope, in, rng)
		if err != nil {
			return nil, err
		}
		m.Blocks[r] = bp
		in = taken
	}

	trans := nn.Xavier(tensor.Shape{cfg.NumClasses, cfg.NumClasses}, nn.DenseFans(cfg.NumClasses, cfg.NumClasses), 1, rng)
	m.Transitions = nn.NewParameter("transitions", trans)

	if err := checkUniqueNames(m.Parameters()); err != nil {
		return nil, err
	}
	return m, nil
}

// buildBlock creates one block whose first layer consumes in channels.
func buildBlock(cfg NetworkConfig, scope string, in int, rng *rand.Rand) (*BlockParams, error) {
	bp := &BlockParams{Scope: scope}
	gain := nn.Gain(cfg.Nonlinearity)

	for _, spec := range cfg.Layers {
		shape := tensor.Shape{1, spec.Width, in, spec.Filters}
		kernel, err := nn.Init(spec.Initialization, shape, nn.ConvFans(spec.Width, in, spec.Filters), gain, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %v", ErrConfiguration, spec.Name, err)
		}
		bias := defaultBias
		if spec.Initialization.ZeroBias() {
			bias = zeroBias
		}
		conv, err := nn.NewDilatedConv(scope+spec.Name, kernel, tensor.Full(tensor.Shape{spec.Filters}, bias),
			spec.Dilation, cfg.Nonlinearity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		bp.Layers = append(bp.Layers, conv)
		bp.Take = append(bp.Take, spec.Take)
		if spec.Take {
			bp.TakenWidth += spec.Filters
		}
		in = spec.Filters
	}

	predIn := bp.TakenWidth
	if cfg.UseProjection {
		width := cfg.ProjectionWidth()
		bp.Projection = nn.NewLinear(scope, "p", bp.TakenWidth, width, cfg.Nonlinearity, defaultBias, rng)
		predIn = width
	}
	bp.Output = nn.NewLinear(scope, "o", predIn, cfg.NumClasses, ops.Linear, defaultBias, rng)
	return bp, nil
}

func checkUniqueNames(params []*nn.Parameter) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p.Name()] {
			return fmt.Errorf("%w: duplicate parameter name %q", ErrConfiguration, p.Name())
		}
		seen[p.Name()] = true
	}
	return nil
}

// UniqueBlocks returns each distinct BlockParams once, in repetition order.
func (m *Model) UniqueBlocks() []*BlockParams {
	var blocks []*BlockParams
	seen := make(map[*BlockParams]bool, len(m.Blocks))
	for _, bp := range m.Blocks {
		if !seen[bp] {
			seen[bp] = true
			blocks = append(blocks, bp)
		}
	}
	return blocks
}

// Parameters returns every trainable parameter exactly once: embeddings,
// the initial convolution, each distinct block, then the transitions.
func (m *Model) Parameters() []*nn.Parameter {
	params := append([]*nn.Parameter{}, m.Embedding.Parameters()...)
	params = append(params, m.Initial.Parameters()...)
	for _, bp := range m.UniqueBlocks() {
		params = append(params, bp.Parameters()...)
	}
	return append(params, m.Transitions)
}

// NumBlockParameters counts the scalar weights owned by the blocks.
func (m *Model) NumBlockParameters() int {
	n := 0
	for _, bp := range m.UniqueBlocks() {
		n += nn.CountElements(bp.Parameters())
	}
	return n
}

// NumParameters counts every scalar weight of the model.
func (m *Model) NumParameters() int {
	return nn.CountElements(m.Parameters())
}
