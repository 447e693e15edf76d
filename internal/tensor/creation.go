package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// ZerosLike creates a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return New(t.shape)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64) *Tensor {
	t := New(shape)
	t.Fill(value)
	return t
}

// Scalar creates a 0-D tensor holding v.
func Scalar(v float64) *Tensor {
	return &Tensor{shape: Shape{}, data: []float64{v}}
}

// FromMatrix copies a gonum matrix into a tensor of the given shape.
// The shape's element count must match the matrix.
func FromMatrix(m mat.Matrix, shape Shape) *Tensor {
	r, c := m.Dims()
	if r*c != shape.NumElements() {
		panic(fmt.Sprintf("tensor: %dx%d matrix does not fit shape %v", r, c, shape))
	}
	t := New(shape)
	dst := mat.NewDense(r, c, t.data)
	dst.Copy(m)
	return t
}

// FromRows builds a 2D tensor from equal-length rows.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("tensor: no rows")
	}
	cols := len(rows[0])
	t := New(Shape{len(rows), cols})
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("tensor: row %d has %d columns, want %d", i, len(row), cols)
		}
		copy(t.data[i*cols:(i+1)*cols], row)
	}
	return t, nil
}

func hasInf(data []float64) bool {
	for _, v := range data {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
