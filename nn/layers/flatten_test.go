package layers

import (
	"testing"

	"hconv/core/ckkswrapper"
	"hconv/core/hetensor"
	"hconv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten_Plain(t *testing.T) {
	f := NewFlatten(false)
	input := tensor.New(2, 3, 2)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}
	out, err := f.Forward(input)
	require.NoError(t, err)
	flat := out.(*tensor.Tensor)
	assert.Equal(t, []int{2, 6}, flat.Shape)
	assert.Equal(t, input.Data, flat.Data)

	g, err := f.Backward(tensor.New(2, 6))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2}, g.(*tensor.Tensor).Shape)
}

func TestFlatten_Errors(t *testing.T) {
	f := NewFlatten(false)
	_, err := f.Backward(tensor.New(2, 6))
	assert.Error(t, err)
	_, err = f.Forward("nope")
	assert.Error(t, err)
	_, err = f.Forward(&hetensor.Tensor{Shape: []int{1, 1}})
	assert.Error(t, err)
}

func TestFlatten_HE(t *testing.T) {
	h := ckkswrapper.NewHeContextWithLogN(12)
	x := tensor.New(2, 2, 2)
	for i := range x.Data {
		x.Data[i] = float64(i) / 8
	}
	enc, err := hetensor.Encrypt(h, x)
	require.NoError(t, err)

	f := NewFlatten(true)
	out, err := f.Forward(enc)
	require.NoError(t, err)
	flat := out.(*hetensor.Tensor)
	assert.Equal(t, []int{2, 4}, flat.Shape)
	assert.Same(t, enc.CTs[3], flat.CTs[3])
}
