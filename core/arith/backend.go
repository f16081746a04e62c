// Package arith defines the tensor primitives a layer is assembled from.
//
// A layer written against Backend never touches values directly, so a backend
// over ciphertexts, or one that records every call, sees every arithmetic step.
package arith

import "hconv/tensor"

// Backend supplies the tensor primitives over values of type T. Operands of
// type *tensor.Tensor are plaintext model parameters.
type Backend[T any] interface {
	Shape(x T) []int
	Unsqueeze(x T, axis int) (T, error)
	Expand(x T, shape ...int) (T, error)
	Narrow(x T, axis, start, length int) (T, error)
	// Mul multiplies x element-wise by w broadcast to x's shape.
	Mul(x T, w *tensor.Tensor) (T, error)
	// Add adds b broadcast to x's shape.
	Add(x T, b *tensor.Tensor) (T, error)
	Sum(x T, axis int) (T, error)
	Concat(axis int, xs ...T) (T, error)
	View(x T, shape ...int) (T, error)
}

// Plain evaluates the primitives on float64 tensors.
type Plain struct{}

var _ Backend[*tensor.Tensor] = Plain{}

func (Plain) Shape(x *tensor.Tensor) []int { return x.Shape }

func (Plain) Unsqueeze(x *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	return tensor.Unsqueeze(x, axis)
}

func (Plain) Expand(x *tensor.Tensor, shape ...int) (*tensor.Tensor, error) {
	return tensor.Expand(x, shape...)
}

func (Plain) Narrow(x *tensor.Tensor, axis, start, length int) (*tensor.Tensor, error) {
	return tensor.Narrow(x, axis, start, length)
}

func (Plain) Mul(x, w *tensor.Tensor) (*tensor.Tensor, error) { return tensor.Mul(x, w) }

func (Plain) Add(x, b *tensor.Tensor) (*tensor.Tensor, error) { return tensor.Add(x, b) }

func (Plain) Sum(x *tensor.Tensor, axis int) (*tensor.Tensor, error) { return tensor.Sum(x, axis) }

func (Plain) Concat(axis int, xs ...*tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Concat(axis, xs...)
}

func (Plain) View(x *tensor.Tensor, shape ...int) (*tensor.Tensor, error) {
	return tensor.View(x, shape...)
}
