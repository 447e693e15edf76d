package nn

import (
	"fmt"

	"github.com/born-ml/idcnn/internal/autodiff"
	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/tensor"
)

// DilatedConv is a 1×Width atrous convolution over (B, 1, T, In) inputs,
// followed by a bias add and a nonlinearity.
//
// Padding is "same": the output keeps T time steps for every dilation.
// Only odd widths are supported, the only case where "same" padding is
// symmetric.
type DilatedConv struct {
	Width      int
	Dilation   int
	In, Out    int
	Activation ops.Nonlinearity
	Weight     *Parameter // [1, Width, In, Out]
	Bias       *Parameter // [Out]
}

// NewDilatedConv wraps an initialized kernel and bias.
// kernel must be [1, width, in, out] and bias [out].
func NewDilatedConv(name string, kernel, bias *tensor.Tensor, dilation int, act ops.Nonlinearity) (*DilatedConv, error) {
	s := kernel.Shape()
	if len(s) != 4 || s[0] != 1 {
		return nil, fmt.Errorf("conv %s: kernel shape %v, want [1, width, in, out]", name, s)
	}
	if s[1]%2 == 0 {
		return nil, fmt.Errorf("conv %s: even width %d", name, s[1])
	}
	if dilation < 1 {
		return nil, fmt.Errorf("conv %s: dilation %d must be positive", name, dilation)
	}
	if !bias.Shape().Equal(tensor.Shape{s[3]}) {
		return nil, fmt.Errorf("conv %s: bias shape %v, want [%d]", name, bias.Shape(), s[3])
	}
	return &DilatedConv{
		Width:      s[1],
		Dilation:   dilation,
		In:         s[2],
		Out:        s[3],
		Activation: act,
		Weight:     NewParameter(name+"_w", kernel),
		Bias:       NewParameter(name+"_b", bias),
	}, nil
}

// Forward computes act(conv(x, W) + b), preserving the time dimension.
func (c *DilatedConv) Forward(tape *autodiff.GradientTape, input *tensor.Tensor) *tensor.Tensor {
	h := tape.DilatedConv(input, c.Weight.Tensor(), c.Dilation)
	h = tape.BiasAdd(h, c.Bias.Tensor())
	if c.Activation == ops.Linear || c.Activation == "" {
		return h
	}
	return tape.Activation(c.Activation, h)
}

// Parameters returns [weight, bias].
func (c *DilatedConv) Parameters() []*Parameter {
	return []*Parameter{c.Weight, c.Bias}
}
