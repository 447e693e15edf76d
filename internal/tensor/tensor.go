// Package tensor implements the dense float64 arrays the tagger computes with.
//
// A Tensor is a shape plus a row-major []float64. Tensors produced by
// operations are never modified in place, so their pointers can key
// gradient maps on the autodiff tape. Parameters are the exception: the
// optimizer updates their data between training steps.
//
// Matrix products are delegated to gonum through Matrix(), which views the
// tensor as a (rows × last dimension) matrix without copying.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major float64 array.
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a zero-filled tensor. Panics if the shape is invalid.
func New(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor: %v", err))
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float64, shape.NumElements()),
	}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t := New(shape)
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying slice (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Item returns the value of a single-element tensor.
// Panics if the tensor holds more than one element.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Item() only works for single-element tensors, got shape %v", t.shape))
	}
	return t.data[0]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	strides := t.shape.ComputeStrides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * strides[i]
	}
	return offset
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// View returns a new tensor header with a different shape over the same data.
// Panics if the element counts differ.
func (t *Tensor) View(shape Shape) *Tensor {
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot view %v as %v", t.shape, shape))
	}
	return &Tensor{shape: shape.Clone(), data: t.data}
}

// Matrix views the tensor as a (NumElements/last, last) gonum matrix sharing
// the tensor's memory.
func (t *Tensor) Matrix() *mat.Dense {
	cols := t.shape.Last()
	return mat.NewDense(len(t.data)/cols, cols, t.data)
}

// CopyFrom copies the contents of src into t. Shapes must have the same
// number of elements.
func (t *Tensor) CopyFrom(src *Tensor) {
	if len(src.data) != len(t.data) {
		panic(fmt.Sprintf("tensor: copy from %v into %v", src.shape, t.shape))
	}
	copy(t.data, src.data)
}

// AddInPlace accumulates other into t element-wise.
func (t *Tensor) AddInPlace(other *Tensor) {
	if len(other.data) != len(t.data) {
		panic(fmt.Sprintf("tensor: add %v into %v", other.shape, t.shape))
	}
	floats.Add(t.data, other.data)
}

// ScaleInPlace multiplies every element by c.
func (t *Tensor) ScaleInPlace(c float64) {
	floats.Scale(c, t.data)
}

// Fill sets every element to value.
func (t *Tensor) Fill(value float64) {
	for i := range t.data {
		t.data[i] = value
	}
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// SumSquares returns the squared Frobenius norm of the tensor.
func (t *Tensor) SumSquares() float64 {
	return floats.Dot(t.data, t.data)
}

// AllFinite reports whether the tensor holds no NaN or Inf values.
func (t *Tensor) AllFinite() bool {
	return !floats.HasNaN(t.data) && !hasInf(t.data)
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float64]%v", t.shape)
}
