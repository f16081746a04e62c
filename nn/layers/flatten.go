package layers

import (
	"fmt"

	"hconv/core/arith"
	"hconv/core/hetensor"
	"hconv/tensor"
)

// Flatten reshapes [B, d1, ..., dn] to [B, d1*...*dn]. On encrypted tensors
// it is a pure view over the same ciphertexts.
type Flatten struct {
	encrypted bool
	lastShape []int
}

func NewFlatten(encrypted bool) *Flatten { return &Flatten{encrypted: encrypted} }

// EnableEncrypted switches the layer between encrypted and plaintext mode
func (f *Flatten) EnableEncrypted(encrypted bool) {
	f.encrypted = encrypted
}

func flatten[T any](be arith.Backend[T], x T) (T, error) {
	shape := be.Shape(x)
	if len(shape) == 0 {
		var zero T
		return zero, fmt.Errorf("flatten: scalar input")
	}
	return be.View(x, shape[0], tensor.Numel(shape[1:]))
}

func (f *Flatten) Forward(x interface{}) (interface{}, error) {
	switch t := x.(type) {
	case *tensor.Tensor:
		out, err := flatten[*tensor.Tensor](arith.Plain{}, t)
		if err != nil {
			return nil, err
		}
		f.lastShape = append([]int(nil), t.Shape...)
		return out, nil
	case *hetensor.Tensor:
		if !f.encrypted {
			return nil, fmt.Errorf("flatten: encrypted input on a plaintext layer")
		}
		// views never reach the evaluator
		return flatten[*hetensor.Tensor](hetensor.NewBackend(nil, nil), t)
	default:
		return nil, fmt.Errorf("flatten: unsupported input type %T", x)
	}
}

// Backward reshapes the gradient back to the last plaintext input shape.
func (f *Flatten) Backward(g interface{}) (interface{}, error) {
	grad, ok := g.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("flatten: backward expects *tensor.Tensor, got %T", g)
	}
	if f.lastShape == nil {
		return nil, fmt.Errorf("flatten: no cached input shape")
	}
	return tensor.View(grad, f.lastShape...)
}

func (f *Flatten) Update(float64) error { return nil }
func (f *Flatten) Encrypted() bool      { return f.encrypted }
func (f *Flatten) Levels() int          { return 0 }

func (f *Flatten) Tag() string {
	return "Flatten"
}
