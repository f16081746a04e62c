package hetensor

import (
	"errors"
	"fmt"

	"hconv/core/arith"
	"hconv/core/ckkswrapper"
	"hconv/tensor"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ErrLevelExhausted is returned when a multiplication needs a level the
// ciphertext no longer has and no refresh is available.
var ErrLevelExhausted = errors.New("hetensor: ciphertext level exhausted")

// Backend evaluates arith primitives on encrypted tensors. Plaintext operands
// are encoded on the fly at the level of the ciphertext they meet.
type Backend struct {
	kit   *ckkswrapper.ServerKit
	heCtx *ckkswrapper.HeContext // optional, enables in-place refreshes
}

var _ arith.Backend[*Tensor] = (*Backend)(nil)

// NewBackend returns a backend using kit. heCtx may be nil; when it holds a
// secret key, exhausted ciphertexts are refreshed in place instead of failing.
func NewBackend(kit *ckkswrapper.ServerKit, heCtx *ckkswrapper.HeContext) *Backend {
	return &Backend{kit: kit, heCtx: heCtx}
}

// Evaluator exposes the counting evaluator.
func (be *Backend) Evaluator() *ckkswrapper.WrappedEvaluator { return be.kit.Evaluator }

func (be *Backend) Shape(x *Tensor) []int { return x.Shape }

func (be *Backend) Unsqueeze(x *Tensor, axis int) (*Tensor, error) {
	if axis == 0 {
		return nil, fmt.Errorf("unsqueeze: %w", ErrBatchAxis)
	}
	shape, err := tensor.UnsqueezeShape(x.Shape, axis)
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: shape, CTs: x.CTs}, nil
}

func (be *Backend) Expand(x *Tensor, shape ...int) (*Tensor, error) {
	if len(shape) != len(x.Shape) || shape[0] != x.Batch() {
		return nil, fmt.Errorf("expand %v to %v: %w", x.Shape, shape, ErrBatchAxis)
	}
	cts, err := tensor.ExpandElems(x.CTs, x.inner(), shape[1:])
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: append([]int(nil), shape...), CTs: cts}, nil
}

func (be *Backend) Narrow(x *Tensor, axis, start, length int) (*Tensor, error) {
	if axis == 0 {
		return nil, fmt.Errorf("narrow: %w", ErrBatchAxis)
	}
	cts, inner, err := tensor.NarrowElems(x.CTs, x.inner(), axis-1, start, length)
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: append([]int{x.Batch()}, inner...), CTs: cts}, nil
}

func (be *Backend) Concat(axis int, xs ...*Tensor) (*Tensor, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("concat: no inputs")
	}
	if axis == 0 {
		return nil, fmt.Errorf("concat: %w", ErrBatchAxis)
	}
	srcs := make([][]*rlwe.Ciphertext, len(xs))
	shapes := make([][]int, len(xs))
	for i, x := range xs {
		if x.Batch() != xs[0].Batch() {
			return nil, fmt.Errorf("concat: batch %d != %d: %w", x.Batch(), xs[0].Batch(), ErrBatchAxis)
		}
		srcs[i], shapes[i] = x.CTs, x.inner()
	}
	cts, inner, err := tensor.ConcatElems(axis-1, srcs, shapes)
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: append([]int{xs[0].Batch()}, inner...), CTs: cts}, nil
}

func (be *Backend) View(x *Tensor, shape ...int) (*Tensor, error) {
	if len(shape) == 0 || shape[0] != x.Batch() {
		return nil, fmt.Errorf("view %v as %v: %w", x.Shape, shape, ErrBatchAxis)
	}
	inner, err := tensor.ViewShape(x.inner(), shape[1:])
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: append([]int{x.Batch()}, inner...), CTs: x.CTs}, nil
}

func (be *Backend) Sum(x *Tensor, axis int) (*Tensor, error) {
	if axis == 0 {
		return nil, fmt.Errorf("sum: %w", ErrBatchAxis)
	}
	groups, inner, err := tensor.SumGroups(x.inner(), axis-1)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	out := &Tensor{Shape: append([]int{x.Batch()}, inner...), CTs: make([]*rlwe.Ciphertext, len(groups))}
	for i, g := range groups {
		acc := x.CTs[g[0]]
		for _, idx := range g[1:] {
			if acc, err = be.kit.Evaluator.AddNew(acc, x.CTs[idx]); err != nil {
				return nil, fmt.Errorf("sum: %w", err)
			}
		}
		out.CTs[i] = acc
	}
	return out, nil
}

func (be *Backend) Mul(x *Tensor, w *tensor.Tensor) (*Tensor, error) {
	wx, err := be.broadcast(x, w)
	if err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	params := be.kit.Params
	out := &Tensor{Shape: append([]int(nil), x.Shape...), CTs: make([]*rlwe.Ciphertext, len(x.CTs))}
	vals := make([]float64, x.Batch())
	for e, ct := range x.CTs {
		if ckkswrapper.NeedsBootstrap(ct, 0) {
			if err := be.refresh(ct); err != nil {
				return nil, fmt.Errorf("mul element %d: %w", e, err)
			}
		}
		be.slotValues(wx, e, len(x.CTs), vals)

		// Encoding at the scale of the prime about to be dropped makes the
		// rescaled product keep the scale of ct.
		pt := ckks.NewPlaintext(params, ct.Level())
		pt.Scale = rlwe.NewScale(params.Q()[ct.Level()])
		if err := be.kit.Encoder.Encode(vals, pt); err != nil {
			return nil, fmt.Errorf("mul: encode element %d: %w", e, err)
		}
		prod, err := be.kit.Evaluator.MulNew(ct, pt)
		if err != nil {
			return nil, fmt.Errorf("mul element %d: %w", e, err)
		}
		if err := be.kit.Evaluator.Rescale(prod, prod); err != nil {
			return nil, fmt.Errorf("mul: rescale element %d: %w", e, err)
		}
		out.CTs[e] = prod
	}
	return out, nil
}

func (be *Backend) Add(x *Tensor, b *tensor.Tensor) (*Tensor, error) {
	bx, err := be.broadcast(x, b)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	out := &Tensor{Shape: append([]int(nil), x.Shape...), CTs: make([]*rlwe.Ciphertext, len(x.CTs))}
	vals := make([]float64, x.Batch())
	for e, ct := range x.CTs {
		be.slotValues(bx, e, len(x.CTs), vals)
		pt := ckks.NewPlaintext(be.kit.Params, ct.Level())
		pt.Scale = ct.Scale
		if err := be.kit.Encoder.Encode(vals, pt); err != nil {
			return nil, fmt.Errorf("add: encode element %d: %w", e, err)
		}
		if out.CTs[e], err = be.kit.Evaluator.AddPlainNew(ct, pt); err != nil {
			return nil, fmt.Errorf("add element %d: %w", e, err)
		}
	}
	return out, nil
}

// broadcast expands a plaintext operand to the full shape of x.
func (be *Backend) broadcast(x *Tensor, p *tensor.Tensor) (*tensor.Tensor, error) {
	if tensor.SameShape(p.Shape, x.Shape) {
		return p, nil
	}
	return tensor.Expand(p, x.Shape...)
}

// slotValues gathers the batch column of element e from a full-shape operand.
func (be *Backend) slotValues(p *tensor.Tensor, e, n int, vals []float64) {
	for b := range vals {
		vals[b] = p.Data[b*n+e]
	}
}

// refresh lifts ct back to the top level in place, so elements sharing it
// after an Expand are refreshed once.
func (be *Backend) refresh(ct *rlwe.Ciphertext) error {
	if be.heCtx == nil || !be.heCtx.HasSecretKey() {
		return ErrLevelExhausted
	}
	return be.heCtx.CheatBootstrapInPlace(ct)
}
