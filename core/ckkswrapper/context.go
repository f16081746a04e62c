// Package ckkswrapper bundles the CKKS objects used to evaluate layers on
// encrypted data.
package ckkswrapper

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// DefaultLogN is the ring degree used by NewHeContext.
const DefaultLogN = 13

// HeContext holds the parameters and the key material of the data owner.
type HeContext struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor
}

// ServerKit is what an evaluator needs: parameters, an encoder for plaintext
// operands and an evaluator. It never holds the secret key.
type ServerKit struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Evaluator *WrappedEvaluator
}

// DefaultParametersLiteral returns the CKKS parameters for a ring of degree 2^logN.
// Three 40-bit primes leave room for a few rescales after a multiplication.
func DefaultParametersLiteral(logN int) ckks.ParametersLiteral {
	return ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            []int{55, 40, 40, 40},
		LogP:            []int{61},
		LogDefaultScale: 40,
	}
}

// NewHeContext creates a context with the default ring degree.
func NewHeContext() *HeContext {
	return NewHeContextWithLogN(DefaultLogN)
}

// NewHeContextWithLogN creates a context with the default modulus chain and a
// ring of degree 2^logN. It panics on invalid parameters.
func NewHeContextWithLogN(logN int) *HeContext {
	params, err := ckks.NewParametersFromLiteral(DefaultParametersLiteral(logN))
	if err != nil {
		panic(fmt.Sprintf("ckkswrapper: invalid parameters for logN=%d: %v", logN, err))
	}
	return NewHeContextWithParams(params)
}

// NewHeContextWithParams generates a fresh key pair for params.
func NewHeContextWithParams(params ckks.Parameters) *HeContext {
	sk, pk := rlwe.NewKeyGenerator(params).GenKeyPairNew()
	return &HeContext{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
	}
}

// HasSecretKey reports whether the context can decrypt.
func (h *HeContext) HasSecretKey() bool { return h.Decryptor != nil }

// NewPublicServerKit returns a kit without any evaluation keys. It supports
// additions, plaintext multiplications and rescaling, which is all a
// convolution with plaintext weights needs.
func NewPublicServerKit(params ckks.Parameters) *ServerKit {
	return &ServerKit{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Evaluator: NewWrappedEvaluator(ckks.NewEvaluator(params, nil)),
	}
}
