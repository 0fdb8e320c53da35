package tensor

import (
	"fmt"
	"math"
)

// Tensor is a multi-dimensional array of float64 values stored in
// row-major (C-contiguous) order.
//
// Shape errors are programmer bugs, not runtime conditions, so the
// accessors panic instead of returning errors. A Tensor is not safe
// for concurrent mutation; concurrent reads are fine.
type Tensor struct {
	data  []float64
	shape []int
}

// New creates a zero-filled tensor with the given shape.
// Panics if the shape is empty or contains non-positive dimensions.
func New(shape ...int) *Tensor {
	if len(shape) == 0 {
		panic("tensor: shape cannot be empty")
	}

	size := 1
	for i, dim := range shape {
		if dim <= 0 {
			panic(fmt.Sprintf("tensor: shape[%d] must be positive, got %d", i, dim))
		}
		size *= dim
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		data:  make([]float64, size),
		shape: shapeCopy,
	}
}

// FromSlice wraps an existing flat slice into a tensor with the given
// shape. The slice is used directly, not copied. Panics if the slice
// length does not match the shape.
func FromSlice(data []float64, shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	if len(data) != size {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v (size %d)", len(data), shape, size))
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{data: data, shape: shapeCopy}
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	shape := make([]int, len(t.shape))
	copy(shape, t.shape)
	return shape
}

// Dims returns the number of dimensions (rank).
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Data returns the underlying flat slice. Mutations are visible to the
// tensor; callers in hot loops index it directly instead of going
// through At/Set.
func (t *Tensor) Data() []float64 {
	return t.data
}

// At returns the element at the given indices. Panics on out-of-bounds
// access.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.flatIndex(indices)]
}

// Set stores value at the given indices. Panics on out-of-bounds
// access.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.flatIndex(indices)] = value
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor: expected %d indices, got %d", len(t.shape), len(indices)))
	}

	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index[%d]=%d out of bounds [0,%d)", i, indices[i], t.shape[i]))
		}
		idx += indices[i] * stride
		stride *= t.shape[i]
	}
	return idx
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape...)
	copy(c.data, t.data)
	return c
}

// Reshape returns a view with a different shape sharing the underlying
// data. The element count must not change.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	if size != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape size %d to %v (size %d)", len(t.data), shape, size))
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{data: t.data, shape: shapeCopy}
}

// ShapeEquals reports whether the tensor has exactly the given shape.
func (t *Tensor) ShapeEquals(shape []int) bool {
	if len(t.shape) != len(shape) {
		return false
	}
	for i := range shape {
		if t.shape[i] != shape[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, size=%d)", t.shape, len(t.data))
}

// Softmax converts a (batch, classes) tensor of logits into per-row
// probability distributions. Each row sums to 1.
//
// Numerically stable: the row maximum is subtracted before
// exponentiation to prevent overflow.
func Softmax(x *Tensor) *Tensor {
	if len(x.shape) != 2 {
		panic("tensor: Softmax requires a 2D tensor")
	}

	batch, classes := x.shape[0], x.shape[1]
	out := New(batch, classes)

	for b := 0; b < batch; b++ {
		row := x.data[b*classes : (b+1)*classes]
		outRow := out.data[b*classes : (b+1)*classes]

		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}

		sum := 0.0
		for i, v := range row {
			e := math.Exp(v - maxVal)
			outRow[i] = e
			sum += e
		}
		for i := range outRow {
			outRow[i] /= sum
		}
	}

	return out
}

// Argmax returns the index of the largest value in each row of a
// (batch, classes) tensor. Ties resolve to the lowest index.
func Argmax(x *Tensor) []int {
	if len(x.shape) != 2 {
		panic("tensor: Argmax requires a 2D tensor")
	}

	batch, classes := x.shape[0], x.shape[1]
	out := make([]int, batch)

	for b := 0; b < batch; b++ {
		row := x.data[b*classes : (b+1)*classes]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		out[b] = best
	}

	return out
}
