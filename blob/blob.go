package blob

import "fmt"

import "github.com/pkg/errors"

// ErrShape is returned when a blob does not have the dimensions a consumer indexes it with.
var ErrShape = errors.New("blob shape mismatch")

// Blob is a named, dense, row-major float32 tensor.
type Blob struct {
	Name  string
	Shape []int
	Data  []float32
}

// New allocates a zeroed blob of the given shape.
func New(name string, shape ...int) *Blob {
	return &Blob{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, Volume(shape)),
	}
}

// FromData wraps a copy of data into a blob, checking the element count.
func FromData(name string, data []float32, shape ...int) (*Blob, error) {
	if Volume(shape) != len(data) {
		return nil, errors.Wrapf(ErrShape, "%s: %d values for shape %v", name, len(data), shape)
	}
	b := New(name, shape...)
	copy(b.Data, data)
	return b, nil
}

// Volume is the number of elements of a shape.
func Volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len is the number of elements.
func (b *Blob) Len() int {
	return len(b.Data)
}

// Rank is the number of dimensions.
func (b *Blob) Rank() int {
	return len(b.Shape)
}

// Dim returns dimension i.
func (b *Blob) Dim(i int) int {
	return b.Shape[i]
}

// Offset converts a multi-index to a flat offset. It panics on an index out of range.
func (b *Blob) Offset(idx ...int) int {
	if len(idx) != len(b.Shape) {
		panic(fmt.Sprintf("blob %s: %d indices for rank %d", b.Name, len(idx), len(b.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= b.Shape[i] {
			panic(fmt.Sprintf("blob %s: index %d out of range [0,%d) on axis %d", b.Name, v, b.Shape[i], i))
		}
		off = off*b.Shape[i] + v
	}
	return off
}

// At reads one element.
func (b *Blob) At(idx ...int) float32 {
	return b.Data[b.Offset(idx...)]
}

// Set writes one element.
func (b *Blob) Set(v float32, idx ...int) {
	b.Data[b.Offset(idx...)] = v
}

// Clone returns a deep copy.
func (b *Blob) Clone() *Blob {
	c := &Blob{
		Name:  b.Name,
		Shape: append([]int(nil), b.Shape...),
		Data:  make([]float32, len(b.Data)),
	}
	copy(c.Data, b.Data)
	return c
}

// Expect checks the rank and every dimension that is not negative in dims.
// A negative entry matches any size on that axis.
func (b *Blob) Expect(dims ...int) error {
	if len(dims) != len(b.Shape) {
		return errors.Wrapf(ErrShape, "%s: rank %d, want %d (shape %v)", b.Name, len(b.Shape), len(dims), b.Shape)
	}
	for i, d := range dims {
		if d >= 0 && b.Shape[i] != d {
			return errors.Wrapf(ErrShape, "%s: axis %d is %d, want %d (shape %v)", b.Name, i, b.Shape[i], d, b.Shape)
		}
	}
	return nil
}

// Sample returns a copy of the elements of sample i along the leading axis.
func (b *Blob) Sample(i int) []float32 {
	if len(b.Shape) == 0 || i < 0 || i >= b.Shape[0] {
		panic(fmt.Sprintf("blob %s: sample %d out of range (shape %v)", b.Name, i, b.Shape))
	}
	n := len(b.Data) / b.Shape[0]
	out := make([]float32, n)
	copy(out, b.Data[i*n:(i+1)*n])
	return out
}

func (b *Blob) String() string {
	return fmt.Sprintf("%s%v", b.Name, b.Shape)
}
