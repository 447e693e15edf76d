package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/tensor"
)

// InitKind tags a weight initialization scheme.
type InitKind string

// Supported initializations.
const (
	InitXavier   InitKind = "xavier"
	InitHe       InitKind = "he"
	InitReLU     InitKind = "relu" // alias of InitHe
	InitIdentity InitKind = "identity"
	InitVarScale InitKind = "varscale"
	InitNormal   InitKind = "normal"
)

// Valid reports whether k names a registered initializer.
func (k InitKind) Valid() bool {
	_, ok := initializers[k]
	return ok
}

// ZeroBias reports whether layers using k start with a zero bias instead of
// the small positive default.
func (k InitKind) ZeroBias() bool {
	return k == InitIdentity || k == InitVarScale
}

// FanShape describes the receptive field of a weight being initialized.
// For a [1, width, in, out] convolution kernel FanIn is width·in and FanOut
// is width·out; for a dense [in, out] matrix they are in and out.
type FanShape struct {
	FanIn  int
	FanOut int
}

// ConvFans returns the fans of a [1, width, in, out] kernel.
func ConvFans(width, in, out int) FanShape {
	return FanShape{FanIn: width * in, FanOut: width * out}
}

// DenseFans returns the fans of an [in, out] matrix.
func DenseFans(in, out int) FanShape {
	return FanShape{FanIn: in, FanOut: out}
}

// Initializer fills a fresh tensor of the given shape.
type Initializer func(shape tensor.Shape, fans FanShape, gain float64, rng *rand.Rand) *tensor.Tensor

var initializers = map[InitKind]Initializer{
	InitXavier:   Xavier,
	InitHe:       He,
	InitReLU:     He,
	InitIdentity: Identity,
	InitVarScale: VarScale,
	InitNormal:   Normal,
}

// Init creates a tensor with the initializer registered for kind.
func Init(kind InitKind, shape tensor.Shape, fans FanShape, gain float64, rng *rand.Rand) (*tensor.Tensor, error) {
	f, ok := initializers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown initialization %q", kind)
	}
	return f(shape, fans, gain, rng), nil
}

// Gain returns the recommended scaling factor for a nonlinearity:
// √2 for relu and elu, 5/3 for tanh, 1 otherwise.
func Gain(n ops.Nonlinearity) float64 {
	switch n {
	case ops.ReLU, ops.ELU:
		return math.Sqrt2
	case ops.Tanh:
		return 5.0 / 3.0
	default:
		return 1
	}
}

// Xavier (Glorot) initialization for weights.
//
// Values are drawn from U(-a, a) with a = gain·sqrt(6/(fan_in + fan_out)),
// which keeps the variance of activations roughly constant across layers.
func Xavier(shape tensor.Shape, fans FanShape, gain float64, rng *rand.Rand) *tensor.Tensor {
	bound := gain * math.Sqrt(6.0/float64(fans.FanIn+fans.FanOut))
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return t
}

// He draws from N(0, 2/fan_in). gain is ignored.
func He(shape tensor.Shape, fans FanShape, _ float64, rng *rand.Rand) *tensor.Tensor {
	std := math.Sqrt(2.0 / float64(fans.FanIn))
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	return t
}

// VarScale draws from a normal truncated at two standard deviations with
// std = sqrt(1.3·2/fan_in); 1.3 compensates the variance lost to truncation.
func VarScale(shape tensor.Shape, fans FanShape, _ float64, rng *rand.Rand) *tensor.Tensor {
	std := math.Sqrt(1.3 * 2.0 / float64(fans.FanIn))
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		v := rng.NormFloat64()
		for math.Abs(v) > 2 {
			v = rng.NormFloat64()
		}
		data[i] = v * std
	}
	return t
}

// Normal draws from N(0, 0.1²).
func Normal(shape tensor.Shape, _ FanShape, _ float64, rng *rand.Rand) *tensor.Tensor {
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		data[i] = rng.NormFloat64() * 0.1
	}
	return t
}

// Identity makes a convolution start as the identity map: the center tap of
// a [1, width, in, out] kernel holds ones on its diagonal, every other
// weight is zero. Extra output channels (out > in) start at zero.
// A 2-D [in, out] shape gets the identity matrix on its diagonal.
func Identity(shape tensor.Shape, _ FanShape, _ float64, _ *rand.Rand) *tensor.Tensor {
	t := tensor.New(shape)
	switch len(shape) {
	case 2:
		for i := 0; i < min(shape[0], shape[1]); i++ {
			t.Set(1, i, i)
		}
	case 4:
		center := shape[1] / 2
		for i := 0; i < min(shape[2], shape[3]); i++ {
			t.Set(1, 0, center, i, i)
		}
	default:
		panic(fmt.Sprintf("identity init: unsupported shape %v", shape))
	}
	return t
}
