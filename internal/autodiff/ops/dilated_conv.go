package ops

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/idcnn/internal/parallel"
	"github.com/born-ml/idcnn/internal/tensor"
)

// SamePadding returns the zero padding inserted before and after the time
// axis so that a width-tap kernel dilated by rate keeps the sequence length.
// Odd widths pad symmetrically.
func SamePadding(width, dilation int) (before, after int) {
	total := (width - 1) * dilation
	return total / 2, total - total/2
}

// DilatedConvOp is a 1×width atrous convolution over the time axis with
// "same" padding.
//
// Input shape:  [batch, 1, steps, in_channels]
// Kernel shape: [1, width, in_channels, out_channels]
// Output shape: [batch, 1, steps, out_channels]
//
// Tap k of the kernel reads the input at t + k*dilation - before, where
// before is the leading padding. Each tap is one gonum matrix product of the
// shifted (batch*steps, in) input with the (in, out) tap matrix.
type DilatedConvOp struct {
	input    *tensor.Tensor
	kernel   *tensor.Tensor
	output   *tensor.Tensor
	dilation int
}

// DilatedConv computes the convolution of input with kernel at the given
// dilation rate. Panics on inconsistent shapes.
func DilatedConv(input, kernel *tensor.Tensor, dilation int) (*tensor.Tensor, *DilatedConvOp) {
	checkConvShapes(input, kernel, dilation)
	batch, steps := input.Dim(0), input.Dim(2)
	width, cout := kernel.Dim(1), kernel.Dim(3)
	before, _ := SamePadding(width, dilation)

	out := tensor.New(tensor.Shape{batch, 1, steps, cout})
	outM := out.Matrix()
	shifted := mat.NewDense(batch*steps, input.Dim(3), nil)
	var prod mat.Dense

	for k := 0; k < width; k++ {
		offset := k*dilation - before
		if offset >= steps || -offset >= steps {
			continue // the tap only ever sees padding
		}
		shiftRows(shifted.RawMatrix().Data, input.Data(), batch, steps, input.Dim(3), offset)
		prod.Mul(shifted, tap(kernel, k))
		outM.Add(outM, &prod)
	}

	return out, &DilatedConvOp{input: input, kernel: kernel, output: out, dilation: dilation}
}

// Backward computes gradients for the input and the kernel.
//
//	dKernel_k = shift(x, k)ᵀ · g
//	dx        = Σ_k unshift(g · Kernel_kᵀ, k)
func (op *DilatedConvOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	batch, steps, cin := op.input.Dim(0), op.input.Dim(2), op.input.Dim(3)
	width, cout := op.kernel.Dim(1), op.kernel.Dim(3)
	before, _ := SamePadding(width, op.dilation)

	gradInput := tensor.ZerosLike(op.input)
	gradKernel := tensor.ZerosLike(op.kernel)
	g := outputGrad.Matrix()
	shifted := mat.NewDense(batch*steps, cin, nil)
	var back mat.Dense

	for k := 0; k < width; k++ {
		offset := k*op.dilation - before
		if offset >= steps || -offset >= steps {
			continue
		}
		shiftRows(shifted.RawMatrix().Data, op.input.Data(), batch, steps, cin, offset)
		dk := mat.NewDense(cin, cout, gradKernel.Data()[k*cin*cout:(k+1)*cin*cout])
		dk.Mul(shifted.T(), g)

		back.Mul(g, tap(op.kernel, k).T())
		unshiftAdd(gradInput.Data(), back.RawMatrix().Data, batch, steps, cin, offset)
	}

	return []*tensor.Tensor{gradInput, gradKernel}
}

// Inputs returns [input, kernel].
func (op *DilatedConvOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input, op.kernel}
}

// Output returns the convolution output.
func (op *DilatedConvOp) Output() *tensor.Tensor {
	return op.output
}

// tap views kernel tap k as an (in, out) matrix.
func tap(kernel *tensor.Tensor, k int) *mat.Dense {
	cin, cout := kernel.Dim(2), kernel.Dim(3)
	return mat.NewDense(cin, cout, kernel.Data()[k*cin*cout:(k+1)*cin*cout])
}

// shiftRows writes dst[b, t] = src[b, t+offset], zero outside the sequence.
func shiftRows(dst, src []float64, batch, steps, ch, offset int) {
	parallel.For(batch, func(b int) {
		base := b * steps * ch
		for t := 0; t < steps; t++ {
			row := dst[base+t*ch : base+(t+1)*ch]
			s := t + offset
			if s < 0 || s >= steps {
				clear(row)
				continue
			}
			copy(row, src[base+s*ch:base+(s+1)*ch])
		}
	}, parallel.DefaultConfig())
}

// unshiftAdd accumulates dst[b, t+offset] += src[b, t] inside the sequence.
func unshiftAdd(dst, src []float64, batch, steps, ch, offset int) {
	parallel.For(batch, func(b int) {
		base := b * steps * ch
		for t := 0; t < steps; t++ {
			s := t + offset
			if s < 0 || s >= steps {
				continue
			}
			to := dst[base+s*ch : base+(s+1)*ch]
			for i, v := range src[base+t*ch : base+(t+1)*ch] {
				to[i] += v
			}
		}
	}, parallel.DefaultConfig())
}

func checkConvShapes(input, kernel *tensor.Tensor, dilation int) {
	if input.Rank() != 4 || input.Dim(1) != 1 {
		panic(fmt.Sprintf("dilated conv: expected input [B,1,T,C], got %v", input.Shape()))
	}
	if kernel.Rank() != 4 || kernel.Dim(0) != 1 {
		panic(fmt.Sprintf("dilated conv: expected kernel [1,W,Cin,Cout], got %v", kernel.Shape()))
	}
	if kernel.Dim(2) != input.Dim(3) {
		panic(fmt.Sprintf("dilated conv: kernel expects %d input channels, input has %d", kernel.Dim(2), input.Dim(3)))
	}
	if dilation <= 0 {
		panic(fmt.Sprintf("dilated conv: invalid dilation %d", dilation))
	}
}
