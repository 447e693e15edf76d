// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float64 tensors used by the tagger.
//
// Tensors are row-major with a gonum matrix view over the last dimension.
//
// Example:
//
//	x, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	y := tensor.Zeros(tensor.Shape{2, 3})
//	y.AddInPlace(x)
package tensor

import (
	"github.com/born-ml/idcnn/internal/tensor"
)

// Tensor is a dense float64 array with a shape.
type Tensor = tensor.Tensor

// Shape lists the size of every dimension.
type Shape = tensor.Shape

// New allocates a zero tensor. It panics on an invalid shape.
func New(shape Shape) *Tensor {
	return tensor.New(shape)
}

// FromSlice copies data into a tensor of the given shape.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// FromRows builds a [len(rows), len(rows[0])] tensor.
func FromRows(rows [][]float64) (*Tensor, error) {
	return tensor.FromRows(rows)
}

// Zeros creates a zero tensor.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor {
	return tensor.Full(shape, value)
}

// Scalar creates a rank-0 tensor.
func Scalar(v float64) *Tensor {
	return tensor.Scalar(v)
}
