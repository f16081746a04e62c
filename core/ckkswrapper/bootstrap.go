package ckkswrapper

import (
	"errors"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ErrNoSecretKey is returned when a refresh is requested from a context that
// cannot decrypt.
var ErrNoSecretKey = errors.New("ckkswrapper: context has no secret key")

// CheatBootstrap refreshes a ciphertext's level by decrypting and re-encrypting.
// This is a "cheating" bootstrap that requires the secret key - used for
// development and testing. In production, use real bootstrapping.
//
// The refreshed ciphertext will have the maximum level and default scale.
func (h *HeContext) CheatBootstrap(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if !h.HasSecretKey() {
		return nil, ErrNoSecretKey
	}

	// Decrypt to plaintext
	pt := h.Decryptor.DecryptNew(ct)

	// Decode the values
	values := make([]complex128, h.Params.MaxSlots())
	if err := h.Encoder.Decode(pt, values); err != nil {
		return nil, err
	}

	// Re-encode at max level
	newPt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, newPt); err != nil {
		return nil, err
	}

	// Re-encrypt
	return h.Encryptor.EncryptNew(newPt)
}

// CheatBootstrapInPlace refreshes a ciphertext in place. Every tensor element
// sharing ct sees the refreshed value.
func (h *HeContext) CheatBootstrapInPlace(ct *rlwe.Ciphertext) error {
	refreshed, err := h.CheatBootstrap(ct)
	if err != nil {
		return err
	}
	*ct = *refreshed
	return nil
}

// NeedsBootstrap reports whether ct is at or below minLevel. A minLevel of 0
// flags ciphertexts that cannot absorb another rescale.
func NeedsBootstrap(ct *rlwe.Ciphertext, minLevel int) bool {
	return ct.Level() <= minLevel
}
