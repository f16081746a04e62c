package ckkswrapper

import (
	"fmt"

	"hconv/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// WrappedEvaluator wraps a keyless ckks.Evaluator and counts the operations
// a plaintext-weight layer issues.
type WrappedEvaluator struct {
	eval *ckks.Evaluator

	// Operation counters
	MulCount     int
	RescaleCount int
	AddCount     int
}

// NewWrappedEvaluator creates a new wrapped evaluator
func NewWrappedEvaluator(eval *ckks.Evaluator) *WrappedEvaluator {
	return &WrappedEvaluator{
		eval: eval,
	}
}

// ResetCounters resets all operation counters to zero
func (w *WrappedEvaluator) ResetCounters() {
	w.MulCount = 0
	w.RescaleCount = 0
	w.AddCount = 0
}

// PrintCounters prints the current operation counts.
// Respects utils.Verbose flag - does nothing if Verbose is false.
func (w *WrappedEvaluator) PrintCounters(phaseName string) {
	if !utils.Verbose {
		return
	}
	fmt.Fprintf(utils.Output, "=== Phase: %s ===\n", phaseName)
	fmt.Fprintf(utils.Output, "Muls: %d, Rescales: %d, Adds: %d\n",
		w.MulCount, w.RescaleCount, w.AddCount)
}

// MulNew wraps eval.MulNew and counts multiplications
func (w *WrappedEvaluator) MulNew(ct *rlwe.Ciphertext, pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {
	w.MulCount++
	return w.eval.MulNew(ct, pt)
}

// Rescale wraps eval.Rescale and counts rescales
func (w *WrappedEvaluator) Rescale(ct *rlwe.Ciphertext, ctOut *rlwe.Ciphertext) error {
	w.RescaleCount++
	return w.eval.Rescale(ct, ctOut)
}

// AddNew wraps eval.AddNew and counts additions
func (w *WrappedEvaluator) AddNew(ct1, ct2 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	w.AddCount++
	return w.eval.AddNew(ct1, ct2)
}

// AddPlainNew adds a plaintext and counts it as an addition
func (w *WrappedEvaluator) AddPlainNew(ct *rlwe.Ciphertext, pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {
	w.AddCount++
	return w.eval.AddNew(ct, pt)
}
