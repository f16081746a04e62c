package tensor

import "fmt"

// Tensor is a simple n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, Numel(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromData copies data into a tensor of the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if Numel(shape) != len(data) {
		return nil, fmt.Errorf("data of length %d does not fit shape %v", len(data), shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Numel returns the number of elements in t.
func (t *Tensor) Numel() int { return len(t.Data) }

// Add returns a+b with broadcasting, or error if the shapes are incompatible.
func Add(a, b *Tensor) (*Tensor, error) {
	return binary(a, b, "add", func(x, y float64) float64 { return x + y })
}

// Mul returns the element-wise product a*b with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binary(a, b, "mul", func(x, y float64) float64 { return x * y })
}

func binary(a, b *Tensor, name string, fn func(x, y float64) float64) (*Tensor, error) {
	shape, err := BroadcastShape(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	ad, bd := a.Data, b.Data
	if !SameShape(a.Shape, shape) {
		if ad, err = ExpandElems(a.Data, a.Shape, shape); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if !SameShape(b.Shape, shape) {
		if bd, err = ExpandElems(b.Data, b.Shape, shape); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	out := New(shape...)
	for i := range out.Data {
		out.Data[i] = fn(ad[i], bd[i])
	}
	return out, nil
}

// Sum reduces t over axis, removing that dimension.
func Sum(t *Tensor, axis int) (*Tensor, error) {
	groups, shape, err := SumGroups(t.Shape, axis)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	out := New(shape...)
	for i, g := range groups {
		s := 0.0
		for _, idx := range g {
			s += t.Data[idx]
		}
		out.Data[i] = s
	}
	return out, nil
}

// Unsqueeze returns a view of t with a size-one dimension inserted at axis.
func Unsqueeze(t *Tensor, axis int) (*Tensor, error) {
	shape, err := UnsqueezeShape(t.Shape, axis)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: t.Data, Shape: shape}, nil
}

// Expand broadcasts t to shape, materializing the repeated entries.
func Expand(t *Tensor, shape ...int) (*Tensor, error) {
	data, err := ExpandElems(t.Data, t.Shape, shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// Narrow copies length entries of t along axis starting at start.
func Narrow(t *Tensor, axis, start, length int) (*Tensor, error) {
	data, shape, err := NarrowElems(t.Data, t.Shape, axis, start, length)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: data, Shape: shape}, nil
}

// Concat joins ts along axis.
func Concat(axis int, ts ...*Tensor) (*Tensor, error) {
	srcs := make([][]float64, len(ts))
	shapes := make([][]int, len(ts))
	for i, t := range ts {
		srcs[i], shapes[i] = t.Data, t.Shape
	}
	data, shape, err := ConcatElems(axis, srcs, shapes)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: data, Shape: shape}, nil
}

// View reinterprets t with a new shape of equal size. The data is shared.
func View(t *Tensor, shape ...int) (*Tensor, error) {
	s, err := ViewShape(t.Shape, shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: t.Data, Shape: s}, nil
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}

	// Compute linear index
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
