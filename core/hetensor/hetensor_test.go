package hetensor

import (
	"errors"
	"testing"

	"hconv/core/arith"
	"hconv/core/ckkswrapper"
	"hconv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heTolerance = 1e-4

func newTestContext(t *testing.T) *ckkswrapper.HeContext {
	t.Helper()
	return ckkswrapper.NewHeContextWithLogN(12)
}

func ramp(shape ...int) *tensor.Tensor {
	x := tensor.New(shape...)
	for i := range x.Data {
		x.Data[i] = float64(i%7)*0.25 - 0.5
	}
	return x
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	h := newTestContext(t)
	x := ramp(3, 2, 2)

	enc, err := Encrypt(h, x)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, enc.Shape)
	require.Len(t, enc.CTs, 4)
	assert.Equal(t, h.Params.MaxLevel(), enc.Level())

	dec, err := Decrypt(h, enc)
	require.NoError(t, err)
	assert.Equal(t, x.Shape, dec.Shape)
	assert.InDeltaSlice(t, x.Data, dec.Data, heTolerance)
}

func TestEncryptRejectsOversizedBatch(t *testing.T) {
	h := newTestContext(t)
	_, err := Encrypt(h, tensor.New(h.Params.MaxSlots()+1, 1))
	assert.Error(t, err)
	_, err = Encrypt(h, &tensor.Tensor{Data: []float64{1}})
	assert.Error(t, err)
}

func TestBackendMatchesPlain(t *testing.T) {
	h := newTestContext(t)
	be := NewBackend(ckkswrapper.NewPublicServerKit(h.Params), nil)
	plain := arith.Plain{}

	x := ramp(2, 3, 3)
	w := ramp(2, 2, 2)
	bias, err := tensor.FromData([]float64{0.5, -1}, 2)
	require.NoError(t, err)

	run := func(t *testing.T, x *tensor.Tensor) *tensor.Tensor {
		t.Helper()
		pn, err := plain.Narrow(x, 1, 1, 2)
		require.NoError(t, err)
		pn, err = plain.Narrow(pn, 2, 0, 2)
		require.NoError(t, err)
		pm, err := plain.Mul(pn, w)
		require.NoError(t, err)
		ps, err := plain.Sum(pm, 2)
		require.NoError(t, err)
		pa, err := plain.Add(ps, bias)
		require.NoError(t, err)
		return pa
	}
	want := run(t, x)

	enc, err := Encrypt(h, x)
	require.NoError(t, err)
	en, err := be.Narrow(enc, 1, 1, 2)
	require.NoError(t, err)
	en, err = be.Narrow(en, 2, 0, 2)
	require.NoError(t, err)
	em, err := be.Mul(en, w)
	require.NoError(t, err)
	es, err := be.Sum(em, 2)
	require.NoError(t, err)
	ea, err := be.Add(es, bias)
	require.NoError(t, err)

	got, err := Decrypt(h, ea)
	require.NoError(t, err)
	assert.Equal(t, want.Shape, got.Shape)
	assert.InDeltaSlice(t, want.Data, got.Data, heTolerance)

	ev := be.Evaluator()
	assert.Equal(t, 4, ev.MulCount)
	assert.Equal(t, 4, ev.RescaleCount)
	assert.Equal(t, 2+2, ev.AddCount) // two pairwise sums plus two bias adds
}

func TestStructuralOpsShareCiphertexts(t *testing.T) {
	h := newTestContext(t)
	be := NewBackend(ckkswrapper.NewPublicServerKit(h.Params), nil)
	enc, err := Encrypt(h, ramp(1, 2, 2))
	require.NoError(t, err)

	u, err := be.Unsqueeze(enc, 1)
	require.NoError(t, err)
	e, err := be.Expand(u, 1, 3, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2, 2}, e.Shape)
	require.Len(t, e.CTs, 12)
	assert.Same(t, enc.CTs[0], e.CTs[4])

	c, err := be.Concat(1, enc, enc)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2}, c.Shape)

	v, err := be.View(c, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8}, v.Shape)
	assert.Equal(t, 0, be.Evaluator().AddCount+be.Evaluator().MulCount)
}

func TestBatchAxisRejected(t *testing.T) {
	h := newTestContext(t)
	be := NewBackend(ckkswrapper.NewPublicServerKit(h.Params), nil)
	enc, err := Encrypt(h, ramp(2, 2))
	require.NoError(t, err)

	_, err = be.Narrow(enc, 0, 0, 1)
	assert.ErrorIs(t, err, ErrBatchAxis)
	_, err = be.Sum(enc, 0)
	assert.ErrorIs(t, err, ErrBatchAxis)
	_, err = be.Unsqueeze(enc, 0)
	assert.ErrorIs(t, err, ErrBatchAxis)
	_, err = be.Expand(enc, 4, 2)
	assert.ErrorIs(t, err, ErrBatchAxis)
	_, err = be.View(enc, 4, 1)
	assert.ErrorIs(t, err, ErrBatchAxis)
	_, err = be.Concat(0, enc, enc)
	assert.ErrorIs(t, err, ErrBatchAxis)
}

func TestMulLevelExhaustion(t *testing.T) {
	h := newTestContext(t)
	one := tensor.NewWithData([]float64{1})

	keyless := NewBackend(ckkswrapper.NewPublicServerKit(h.Params), nil)
	enc, err := Encrypt(h, ramp(1, 1))
	require.NoError(t, err)
	for enc.Level() > 0 {
		enc, err = keyless.Mul(enc, one)
		require.NoError(t, err)
	}
	_, err = keyless.Mul(enc, one)
	assert.True(t, errors.Is(err, ErrLevelExhausted), "got %v", err)

	refreshing := NewBackend(ckkswrapper.NewPublicServerKit(h.Params), h)
	u, err := refreshing.Unsqueeze(enc, 1)
	require.NoError(t, err)
	shared, err := refreshing.Expand(u, 1, 3, 1)
	require.NoError(t, err)
	ones, err := tensor.FromData([]float64{1, 1, 1}, 1, 3, 1)
	require.NoError(t, err)

	out, err := refreshing.Mul(shared, ones)
	require.NoError(t, err)
	// the shared ciphertext is refreshed in place once
	assert.Equal(t, h.Params.MaxLevel(), enc.Level())
	assert.Equal(t, h.Params.MaxLevel()-1, out.Level())
	assert.Equal(t, 3, refreshing.Evaluator().MulCount)

	dec, err := Decrypt(h, out)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.5, -0.5, -0.5}, dec.Data, heTolerance)
}

func TestMarshalRoundTrip(t *testing.T) {
	h := newTestContext(t)
	x := ramp(2, 3)
	enc, err := Encrypt(h, x)
	require.NoError(t, err)

	data, err := enc.MarshalBinary()
	require.NoError(t, err)

	var back Tensor
	require.NoError(t, back.UnmarshalBinary(data))
	assert.Equal(t, enc.Shape, back.Shape)

	dec, err := Decrypt(h, &back)
	require.NoError(t, err)
	assert.InDeltaSlice(t, x.Data, dec.Data, heTolerance)

	assert.Error(t, back.UnmarshalBinary([]byte("garbage")))
}
