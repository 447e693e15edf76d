package idcnn

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/nn"
)

// LayerSpec describes one dilated convolution inside a block.
type LayerSpec struct {
	Name           string      `yaml:"name" json:"name"`
	Dilation       int         `yaml:"dilation" json:"dilation"`
	Width          int         `yaml:"width" json:"width"`
	Filters        int         `yaml:"filters" json:"filters"`
	Initialization nn.InitKind `yaml:"initialization" json:"initialization"`
	Take           bool        `yaml:"take" json:"take"`
}

// NetworkConfig fixes the architecture of a Model.
//
// The first layer's Width and Filters also size the initial projection
// convolution applied to the embeddings.
type NetworkConfig struct {
	NumClasses    int              `yaml:"num_classes" json:"num_classes"`
	VocabSize     int              `yaml:"vocab_size" json:"vocab_size"`
	EmbeddingSize int              `yaml:"embedding_size" json:"embedding_size"`
	Repeats       int              `yaml:"repeats" json:"repeats"`
	ShareRepeats  bool             `yaml:"share_repeats" json:"share_repeats"`
	UseProjection bool             `yaml:"use_projection" json:"use_projection"`
	Nonlinearity  ops.Nonlinearity `yaml:"nonlinearity" json:"nonlinearity"`
	Layers        []LayerSpec      `yaml:"layers" json:"layers"`
}

// WithDefaults returns a copy with zero values replaced by defaults:
// one repeat, relu, and xavier for layers without an initialization.
func (c NetworkConfig) WithDefaults() NetworkConfig {
	if c.Repeats == 0 {
		c.Repeats = 1
	}
	if c.Nonlinearity == "" {
		c.Nonlinearity = ops.ReLU
	}
	layers := make([]LayerSpec, len(c.Layers))
	copy(layers, c.Layers)
	for i := range layers {
		if layers[i].Initialization == "" {
			layers[i].Initialization = nn.InitXavier
		}
	}
	c.Layers = layers
	return c
}

// Validate checks every invariant of the configuration. All failures wrap
// ErrConfiguration.
func (c NetworkConfig) Validate() error {
	switch {
	case c.NumClasses < 1:
		return fmt.Errorf("%w: num_classes %d must be positive", ErrConfiguration, c.NumClasses)
	case c.VocabSize < 2:
		return fmt.Errorf("%w: vocab_size %d must be at least 2 (id 0 is padding)", ErrConfiguration, c.VocabSize)
	case c.EmbeddingSize < 1:
		return fmt.Errorf("%w: embedding_size %d must be positive", ErrConfiguration, c.EmbeddingSize)
	case c.Repeats < 1:
		return fmt.Errorf("%w: repeats %d must be at least 1", ErrConfiguration, c.Repeats)
	case !c.Nonlinearity.Valid():
		return fmt.Errorf("%w: unknown nonlinearity %q", ErrConfiguration, c.Nonlinearity)
	case len(c.Layers) == 0:
		return fmt.Errorf("%w: no layers", ErrConfiguration)
	}

	seen := make(map[string]bool, len(c.Layers))
	for i, l := range c.Layers {
		if err := l.validate(); err != nil {
			return fmt.Errorf("%w: layer %d: %v", ErrConfiguration, i, err)
		}
		if seen[l.Name] {
			return fmt.Errorf("%w: duplicate layer name %q", ErrConfiguration, l.Name)
		}
		seen[l.Name] = true
	}

	taken, numTaken := c.TakenWidth()
	if numTaken == 0 {
		return fmt.Errorf("%w: no layer has take=true", ErrConfiguration)
	}
	if c.ShareRepeats && c.Repeats > 1 && taken != c.Layers[0].Filters {
		return fmt.Errorf("%w: shared block consumes %d channels from the initial convolution and %d from itself",
			ErrConfiguration, c.Layers[0].Filters, taken)
	}
	if c.UseProjection && c.ProjectionWidth() < 1 {
		return fmt.Errorf("%w: projection width of %d taken channels over %d layers is zero",
			ErrConfiguration, taken, numTaken)
	}
	return nil
}

func (l LayerSpec) validate() error {
	switch {
	case l.Name == "":
		return fmt.Errorf("missing name")
	case l.Dilation < 1:
		return fmt.Errorf("%s: dilation %d must be positive", l.Name, l.Dilation)
	case l.Width < 1:
		return fmt.Errorf("%s: width %d must be positive", l.Name, l.Width)
	case l.Width%2 == 0:
		return fmt.Errorf("%s: even width %d has asymmetric same padding", l.Name, l.Width)
	case l.Filters < 1:
		return fmt.Errorf("%s: filters %d must be positive", l.Name, l.Filters)
	case !l.Initialization.Valid():
		return fmt.Errorf("%s: unknown initialization %q", l.Name, l.Initialization)
	}
	return nil
}

// TakenWidth returns the channel count of the take concatenation and the
// number of take layers.
func (c NetworkConfig) TakenWidth() (width, count int) {
	for _, l := range c.Layers {
		if l.Take {
			width += l.Filters
			count++
		}
	}
	return width, count
}

// ProjectionWidth returns the bottleneck width Σtaken / (2 × #taken).
func (c NetworkConfig) ProjectionWidth() int {
	width, count := c.TakenWidth()
	if count == 0 {
		return 0
	}
	return width / (2 * count)
}
