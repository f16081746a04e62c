package arith

import (
	"fmt"

	"hconv/tensor"
	"hconv/utils"
)

// Op identifies a Backend primitive.
type Op int

const (
	OpUnsqueeze Op = iota
	OpExpand
	OpNarrow
	OpMul
	OpAdd
	OpSum
	OpConcat
	OpView
	numOps
)

var opNames = [numOps]string{"unsqueeze", "expand", "narrow", "mul", "add", "sum", "concat", "view"}

func (o Op) String() string {
	if o < 0 || o >= numOps {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// Observer is called after every successful primitive with the shape of the
// primary input and of the result.
type Observer func(op Op, in, out []int)

// Instrumented wraps a Backend and counts every primitive it forwards.
type Instrumented[T any] struct {
	inner    Backend[T]
	counts   [numOps]int
	observer Observer
}

// NewInstrumented wraps inner. observer may be nil.
func NewInstrumented[T any](inner Backend[T], observer Observer) *Instrumented[T] {
	return &Instrumented[T]{inner: inner, observer: observer}
}

// Count returns how many times op has run since the last Reset.
func (b *Instrumented[T]) Count(op Op) int { return b.counts[op] }

// Counts returns all non-zero counters keyed by op.
func (b *Instrumented[T]) Counts() map[Op]int {
	out := make(map[Op]int)
	for op, n := range b.counts {
		if n > 0 {
			out[Op(op)] = n
		}
	}
	return out
}

// Reset zeroes all counters.
func (b *Instrumented[T]) Reset() { b.counts = [numOps]int{} }

// PrintCounters prints the current operation counts.
// Respects utils.Verbose flag - does nothing if Verbose is false.
func (b *Instrumented[T]) PrintCounters(phase string) {
	if !utils.Verbose {
		return
	}
	fmt.Fprintf(utils.Output, "=== Phase: %s ===\n", phase)
	for op := Op(0); op < numOps; op++ {
		fmt.Fprintf(utils.Output, "  %-9s %d\n", op, b.counts[op])
	}
}

func (b *Instrumented[T]) record(op Op, in []int, out T, err error) (T, error) {
	if err != nil {
		return out, err
	}
	b.counts[op]++
	if b.observer != nil {
		b.observer(op, in, b.inner.Shape(out))
	}
	return out, nil
}

func (b *Instrumented[T]) Shape(x T) []int { return b.inner.Shape(x) }

func (b *Instrumented[T]) Unsqueeze(x T, axis int) (T, error) {
	out, err := b.inner.Unsqueeze(x, axis)
	return b.record(OpUnsqueeze, b.inner.Shape(x), out, err)
}

func (b *Instrumented[T]) Expand(x T, shape ...int) (T, error) {
	out, err := b.inner.Expand(x, shape...)
	return b.record(OpExpand, b.inner.Shape(x), out, err)
}

func (b *Instrumented[T]) Narrow(x T, axis, start, length int) (T, error) {
	out, err := b.inner.Narrow(x, axis, start, length)
	return b.record(OpNarrow, b.inner.Shape(x), out, err)
}

func (b *Instrumented[T]) Mul(x T, w *tensor.Tensor) (T, error) {
	out, err := b.inner.Mul(x, w)
	return b.record(OpMul, b.inner.Shape(x), out, err)
}

func (b *Instrumented[T]) Add(x T, bias *tensor.Tensor) (T, error) {
	out, err := b.inner.Add(x, bias)
	return b.record(OpAdd, b.inner.Shape(x), out, err)
}

func (b *Instrumented[T]) Sum(x T, axis int) (T, error) {
	out, err := b.inner.Sum(x, axis)
	return b.record(OpSum, b.inner.Shape(x), out, err)
}

func (b *Instrumented[T]) Concat(axis int, xs ...T) (T, error) {
	out, err := b.inner.Concat(axis, xs...)
	var in []int
	if len(xs) > 0 {
		in = b.inner.Shape(xs[0])
	}
	return b.record(OpConcat, in, out, err)
}

func (b *Instrumented[T]) View(x T, shape ...int) (T, error) {
	out, err := b.inner.View(x, shape...)
	return b.record(OpView, b.inner.Shape(x), out, err)
}
