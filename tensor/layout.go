package tensor

import "fmt"

// The helpers below only rearrange elements; they never look at values. They are
// generic so that tensors of ciphertexts can share the exact indexing used by
// the float64 tensor.

// Numel returns the number of elements described by shape.
func Numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Strides returns the row-major strides of shape.
func Strides(shape []int) []int {
	st := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = s
		s *= shape[i]
	}
	return st
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BroadcastShape returns the shape both a and b broadcast to.
func BroadcastShape(a, b []int) ([]int, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if j := len(a) - n + i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

func checkAxis(axis, rank int) error {
	if axis < 0 || axis >= rank {
		return fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return nil
}

// splitAt returns the element counts before, at and after axis.
func splitAt(shape []int, axis int) (outer, dim, inner int) {
	return Numel(shape[:axis]), shape[axis], Numel(shape[axis+1:])
}

// UnsqueezeShape inserts a dimension of size one at axis.
func UnsqueezeShape(shape []int, axis int) ([]int, error) {
	if axis < 0 || axis > len(shape) {
		return nil, fmt.Errorf("unsqueeze axis %d out of range for rank %d", axis, len(shape))
	}
	out := make([]int, 0, len(shape)+1)
	out = append(out, shape[:axis]...)
	out = append(out, 1)
	return append(out, shape[axis:]...), nil
}

// ViewShape validates that target describes the same number of elements as shape.
func ViewShape(shape, target []int) ([]int, error) {
	for _, d := range target {
		if d <= 0 {
			return nil, fmt.Errorf("view: invalid dimension in %v", target)
		}
	}
	if Numel(shape) != Numel(target) {
		return nil, fmt.Errorf("view: cannot view %v as %v", shape, target)
	}
	return append([]int(nil), target...), nil
}

// NarrowElems selects length consecutive entries starting at start along axis.
func NarrowElems[E any](src []E, shape []int, axis, start, length int) ([]E, []int, error) {
	if err := checkAxis(axis, len(shape)); err != nil {
		return nil, nil, err
	}
	if start < 0 || length <= 0 || start+length > shape[axis] {
		return nil, nil, fmt.Errorf("narrow [%d, %d) out of range for axis %d of %v", start, start+length, axis, shape)
	}
	outer, dim, inner := splitAt(shape, axis)
	outShape := append([]int(nil), shape...)
	outShape[axis] = length

	out := make([]E, 0, outer*length*inner)
	for o := 0; o < outer; o++ {
		base := (o*dim + start) * inner
		out = append(out, src[base:base+length*inner]...)
	}
	return out, outShape, nil
}

// ExpandElems broadcasts src of the given shape to target. Leading dimensions
// may be added; existing dimensions must equal the target or be one.
func ExpandElems[E any](src []E, shape, target []int) ([]E, error) {
	if len(target) < len(shape) {
		return nil, fmt.Errorf("expand: target %v has lower rank than %v", target, shape)
	}
	offset := len(target) - len(shape)
	for i, d := range shape {
		if d != target[offset+i] && d != 1 {
			return nil, fmt.Errorf("expand: cannot expand %v to %v", shape, target)
		}
	}

	srcStrides := Strides(shape)
	total := Numel(target)
	out := make([]E, total)
	idx := make([]int, len(target))
	for flat := 0; flat < total; flat++ {
		srcIdx := 0
		for d := offset; d < len(target); d++ {
			if shape[d-offset] != 1 {
				srcIdx += idx[d] * srcStrides[d-offset]
			}
		}
		out[flat] = src[srcIdx]

		for d := len(target) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < target[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

// ConcatElems joins the sources along axis. All shapes must agree off axis.
func ConcatElems[E any](axis int, srcs [][]E, shapes [][]int) ([]E, []int, error) {
	if len(srcs) == 0 {
		return nil, nil, fmt.Errorf("concat: no inputs")
	}
	if len(srcs) != len(shapes) {
		return nil, nil, fmt.Errorf("concat: %d inputs but %d shapes", len(srcs), len(shapes))
	}
	first := shapes[0]
	if err := checkAxis(axis, len(first)); err != nil {
		return nil, nil, err
	}
	outShape := append([]int(nil), first...)
	outShape[axis] = 0
	for i, s := range shapes {
		if len(s) != len(first) {
			return nil, nil, fmt.Errorf("concat: input %d has shape %v, want rank %d", i, s, len(first))
		}
		for d := range s {
			if d != axis && s[d] != first[d] {
				return nil, nil, fmt.Errorf("concat: input %d has shape %v, incompatible with %v", i, s, first)
			}
		}
		outShape[axis] += s[axis]
	}

	outer, _, inner := splitAt(first, axis)
	out := make([]E, 0, Numel(outShape))
	for o := 0; o < outer; o++ {
		for i, src := range srcs {
			chunk := shapes[i][axis] * inner
			out = append(out, src[o*chunk:(o+1)*chunk]...)
		}
	}
	return out, outShape, nil
}

// SumGroups returns, for every element of the reduced shape, the source indices
// that sum into it in ascending order. The reduced axis is removed.
func SumGroups(shape []int, axis int) ([][]int, []int, error) {
	if err := checkAxis(axis, len(shape)); err != nil {
		return nil, nil, err
	}
	outer, dim, inner := splitAt(shape, axis)
	outShape := make([]int, 0, len(shape)-1)
	outShape = append(outShape, shape[:axis]...)
	outShape = append(outShape, shape[axis+1:]...)

	groups := make([][]int, outer*inner)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			g := make([]int, dim)
			for a := 0; a < dim; a++ {
				g[a] = (o*dim+a)*inner + in
			}
			groups[o*inner+in] = g
		}
	}
	return groups, outShape, nil
}
