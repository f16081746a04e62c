// Package hetensor provides CKKS-encrypted tensors and an arithmetic backend
// that evaluates every primitive homomorphically.
//
// A tensor of shape [B, d1, ..., dn] is stored as one ciphertext per element of
// [d1, ..., dn]; slot b of each ciphertext holds batch entry b. Structural
// operations therefore only move ciphertext pointers, and the batch axis can
// never be narrowed, reduced or reshaped.
package hetensor

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"hconv/core/ckkswrapper"
	"hconv/tensor"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ErrBatchAxis is returned for operations that would move data across slots.
var ErrBatchAxis = errors.New("hetensor: operation on the slot-packed batch axis")

// Tensor is an encrypted tensor. Shape includes the batch axis; CTs is
// row-major over Shape[1:].
type Tensor struct {
	Shape []int
	CTs   []*rlwe.Ciphertext
}

// Batch returns the size of the slot-packed axis.
func (t *Tensor) Batch() int { return t.Shape[0] }

func (t *Tensor) inner() []int { return t.Shape[1:] }

// Level returns the lowest level among the ciphertexts.
func (t *Tensor) Level() int {
	lvl := -1
	for _, ct := range t.CTs {
		if lvl < 0 || ct.Level() < lvl {
			lvl = ct.Level()
		}
	}
	return lvl
}

// Encrypt packs x (shape [B, ...]) into ciphertexts at the maximum level.
func Encrypt(h *ckkswrapper.HeContext, x *tensor.Tensor) (*Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("hetensor: cannot encrypt a scalar")
	}
	batch := x.Shape[0]
	if batch <= 0 || batch > h.Params.MaxSlots() {
		return nil, fmt.Errorf("hetensor: batch %d does not fit in %d slots", batch, h.Params.MaxSlots())
	}
	n := tensor.Numel(x.Shape[1:])
	out := &Tensor{Shape: append([]int(nil), x.Shape...), CTs: make([]*rlwe.Ciphertext, n)}

	vals := make([]float64, batch)
	for e := 0; e < n; e++ {
		for b := 0; b < batch; b++ {
			vals[b] = x.Data[b*n+e]
		}
		pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
		if err := h.Encoder.Encode(vals, pt); err != nil {
			return nil, fmt.Errorf("hetensor: encode element %d: %w", e, err)
		}
		ct, err := h.Encryptor.EncryptNew(pt)
		if err != nil {
			return nil, fmt.Errorf("hetensor: encrypt element %d: %w", e, err)
		}
		out.CTs[e] = ct
	}
	return out, nil
}

// Decrypt recovers the plaintext tensor. Only the real parts of the slots are kept.
func Decrypt(h *ckkswrapper.HeContext, t *Tensor) (*tensor.Tensor, error) {
	if !h.HasSecretKey() {
		return nil, ckkswrapper.ErrNoSecretKey
	}
	batch := t.Batch()
	n := len(t.CTs)
	out := tensor.New(t.Shape...)
	decoded := make([]complex128, h.Params.MaxSlots())
	for e, ct := range t.CTs {
		pt := h.Decryptor.DecryptNew(ct)
		if err := h.Encoder.Decode(pt, decoded); err != nil {
			return nil, fmt.Errorf("hetensor: decode element %d: %w", e, err)
		}
		for b := 0; b < batch; b++ {
			out.Data[b*n+e] = real(decoded[b])
		}
	}
	return out, nil
}

type wireTensor struct {
	Shape []int
	CTs   [][]byte
}

// MarshalBinary serializes the shape and every ciphertext.
func (t *Tensor) MarshalBinary() ([]byte, error) {
	w := wireTensor{Shape: t.Shape, CTs: make([][]byte, len(t.CTs))}
	for i, ct := range t.CTs {
		data, err := ct.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("hetensor: marshal ciphertext %d: %w", i, err)
		}
		w.CTs[i] = data
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a tensor written by MarshalBinary.
func (t *Tensor) UnmarshalBinary(data []byte) error {
	var w wireTensor
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	if len(w.Shape) == 0 || tensor.Numel(w.Shape[1:]) != len(w.CTs) {
		return fmt.Errorf("hetensor: shape %v does not match %d ciphertexts", w.Shape, len(w.CTs))
	}
	cts := make([]*rlwe.Ciphertext, len(w.CTs))
	for i, b := range w.CTs {
		ct := new(rlwe.Ciphertext)
		if err := ct.UnmarshalBinary(b); err != nil {
			return fmt.Errorf("hetensor: unmarshal ciphertext %d: %w", i, err)
		}
		cts[i] = ct
	}
	t.Shape, t.CTs = w.Shape, cts
	return nil
}
