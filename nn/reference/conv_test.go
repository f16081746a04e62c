package reference

import (
	"testing"

	"hconv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naive is a direct six-loop convolution.
func naive(x, w, b *tensor.Tensor) *tensor.Tensor {
	batch, ch, rows, cols := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outCh, k := w.Shape[0], w.Shape[2]
	out := tensor.New(batch, outCh, rows-k+1, cols-k+1)
	for n := 0; n < batch; n++ {
		for o := 0; o < outCh; o++ {
			for r := 0; r+k <= rows; r++ {
				for c := 0; c+k <= cols; c++ {
					s := 0.0
					if b != nil {
						s = b.Data[o]
					}
					for ci := 0; ci < ch; ci++ {
						for i := 0; i < k; i++ {
							for j := 0; j < k; j++ {
								s += x.At(n, ci, r+i, c+j) * w.At(o, ci, i, j)
							}
						}
					}
					out.Set(s, n, o, r, c)
				}
			}
		}
	}
	return out
}

func filled(scale float64, shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = scale * float64((i*7)%11-5)
	}
	return t
}

func TestConv2DHandComputed(t *testing.T) {
	x, err := tensor.FromData([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	require.NoError(t, err)
	w, err := tensor.FromData([]float64{1, 0, 0, -1}, 1, 1, 2, 2)
	require.NoError(t, err)
	b := tensor.NewWithData([]float64{0.5})

	out, err := Conv2D(x, w, b)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, out.Shape)
	assert.InDeltaSlice(t, []float64{-3.5, -3.5, -3.5, -3.5}, out.Data, 1e-12)
}

func TestConv2DMatchesNaive(t *testing.T) {
	for _, tc := range []struct {
		name            string
		batch, ch, r, c int
		out, k          int
		bias            bool
	}{
		{"single", 1, 1, 4, 4, 1, 2, false},
		{"rect", 2, 1, 5, 7, 3, 3, true},
		{"multichannel", 3, 2, 6, 5, 4, 2, true},
		{"full kernel", 2, 1, 3, 3, 2, 3, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			x := filled(0.1, tc.batch, tc.ch, tc.r, tc.c)
			w := filled(0.05, tc.out, tc.ch, tc.k, tc.k)
			var b *tensor.Tensor
			if tc.bias {
				b = filled(0.3, tc.out)
			}
			got, err := Conv2D(x, w, b)
			require.NoError(t, err)
			want := naive(x, w, b)
			d, err := MaxAbsDiff(got, want)
			require.NoError(t, err)
			assert.LessOrEqual(t, d, 1e-12)
		})
	}
}

func TestConv2DRejectsBadShapes(t *testing.T) {
	x := tensor.New(1, 1, 3, 3)
	_, err := Conv2D(tensor.New(1, 3, 3), tensor.New(1, 1, 2, 2), nil)
	assert.Error(t, err)
	_, err = Conv2D(x, tensor.New(1, 2, 2, 2), nil)
	assert.Error(t, err)
	_, err = Conv2D(x, tensor.New(1, 1, 4, 4), nil)
	assert.Error(t, err)
	_, err = Conv2D(x, tensor.New(2, 1, 2, 2), tensor.New(3))
	assert.Error(t, err)
}

func TestMaxAbsDiff(t *testing.T) {
	a := tensor.NewWithData([]float64{1, 2, 3})
	b := tensor.NewWithData([]float64{1, 2.5, 2})
	d, err := MaxAbsDiff(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	_, err = MaxAbsDiff(a, tensor.New(2))
	assert.Error(t, err)
}
