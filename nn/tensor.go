package nn

import "fmt"

// Tensor is a dense row-major array of float64 values. The first axis is
// always the batch axis for anything the model layers touch.
type Tensor struct {
	Data    []float64
	Shape   []int // row-major
	Strides []int
}

// NewTensor allocates a zeroed tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Data: make([]float64, n), Shape: shape, Strides: computeStrides(shape)}
}

// NewTensorFromSlice wraps an existing slice. Returns nil if the slice
// length does not match the shape.
func NewTensorFromSlice(data []float64, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return nil
	}
	return &Tensor{Data: data, Shape: shape, Strides: computeStrides(shape)}
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the length of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// At reads the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	return t.Data[t.offset(idx)]
}

// Set writes the element at the given multi-index.
func (t *Tensor) Set(v float64, idx ...int) {
	t.Data[t.offset(idx)] = v
}

func (t *Tensor) offset(idx []int) int {
	off := 0
	for i, x := range idx {
		off += x * t.Strides[i]
	}
	return off
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return &Tensor{Data: data, Shape: shape, Strides: computeStrides(shape)}
}

// Reshape returns a view sharing the backing slice. Returns nil if the
// element counts differ.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != t.Size() {
		return nil
	}
	return &Tensor{Data: t.Data, Shape: shape, Strides: computeStrides(shape)}
}

// Slice returns a view of entry i along the first axis, with that axis
// removed. The view shares the backing slice.
func (t *Tensor) Slice(i int) *Tensor {
	row := t.Strides[0]
	shape := make([]int, len(t.Shape)-1)
	copy(shape, t.Shape[1:])
	if len(shape) == 0 {
		shape = []int{1}
	}
	return &Tensor{Data: t.Data[i*row : (i+1)*row], Shape: shape, Strides: computeStrides(shape)}
}

// Take gathers the given entries along the first axis into a new tensor.
func (t *Tensor) Take(indices []int) (*Tensor, error) {
	row := t.Strides[0]
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	shape[0] = len(indices)
	out := NewTensor(shape...)
	for j, i := range indices {
		if i < 0 || i >= t.Shape[0] {
			return nil, fmt.Errorf("take: index %d out of range for axis of length %d", i, t.Shape[0])
		}
		copy(out.Data[j*row:(j+1)*row], t.Data[i*row:(i+1)*row])
	}
	return out, nil
}

// Concat joins two tensors along the first axis. All other axes must match.
func Concat(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("concat: rank mismatch %d vs %d", len(a.Shape), len(b.Shape))
	}
	for i := 1; i < len(a.Shape); i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("concat: axis %d mismatch %d vs %d", i, a.Shape[i], b.Shape[i])
		}
	}
	shape := make([]int, len(a.Shape))
	copy(shape, a.Shape)
	shape[0] = a.Shape[0] + b.Shape[0]
	out := NewTensor(shape...)
	copy(out.Data, a.Data)
	copy(out.Data[len(a.Data):], b.Data)
	return out, nil
}

// SplitHalves splits a tensor into two equal halves along the first axis.
// The halves are views sharing the backing slice.
func (t *Tensor) SplitHalves() (*Tensor, *Tensor, error) {
	if t.Shape[0]%2 != 0 {
		return nil, nil, fmt.Errorf("split: first axis length %d is odd", t.Shape[0])
	}
	half := t.Shape[0] / 2
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	shape[0] = half
	strides := computeStrides(shape)
	n := half * t.Strides[0]
	a := &Tensor{Data: t.Data[:n], Shape: shape, Strides: strides}
	shapeB := make([]int, len(shape))
	copy(shapeB, shape)
	b := &Tensor{Data: t.Data[n:], Shape: shapeB, Strides: computeStrides(shapeB)}
	return a, b, nil
}

// Stack joins tensors of identical shape along a new leading axis.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stack: no tensors")
	}
	for _, t := range ts[1:] {
		if !SameShape(ts[0], t) {
			return nil, fmt.Errorf("stack: shape mismatch %v vs %v", ts[0].Shape, t.Shape)
		}
	}
	shape := append([]int{len(ts)}, ts[0].Shape...)
	out := NewTensor(shape...)
	row := ts[0].Size()
	for i, t := range ts {
		copy(out.Data[i*row:(i+1)*row], t.Data)
	}
	return out, nil
}

// SameShape reports whether two tensors have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}
