// Package reference holds an independent convolution used to check the
// arithmetic-only layer. It lowers the input with im2col and runs one GEMM,
// so its summation order differs from the window-by-window evaluation.
package reference

import (
	"fmt"
	"math"

	"hconv/tensor"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Tolerance is the per-element bound for plaintext parity checks.
	Tolerance = 1e-6
	// HETolerance bounds CKKS approximation error for inputs and weights of
	// magnitude at most one.
	HETolerance = 1e-4
)

// Conv2D computes a valid, stride-1 cross-correlation.
// x is [B, C, R, Cols], w is [O, C, K, K], b is [O] or nil.
func Conv2D(x, w, b *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || len(w.Shape) != 4 {
		return nil, fmt.Errorf("reference: want rank-4 input and weight, got %v and %v", x.Shape, w.Shape)
	}
	batch, ch, rows, cols := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outCh, k := w.Shape[0], w.Shape[2]
	if w.Shape[1] != ch || w.Shape[3] != k {
		return nil, fmt.Errorf("reference: weight %v does not match input %v", w.Shape, x.Shape)
	}
	if k > rows || k > cols {
		return nil, fmt.Errorf("reference: kernel %d larger than %dx%d input", k, rows, cols)
	}
	if b != nil && (len(b.Shape) != 1 || b.Shape[0] != outCh) {
		return nil, fmt.Errorf("reference: bias %v, want [%d]", b.Shape, outCh)
	}

	outR, outC := rows-k+1, cols-k+1
	patches := outR * outC
	patchLen := ch * k * k

	wm := mat.NewDense(outCh, patchLen, append([]float64(nil), w.Data...))
	out := tensor.New(batch, outCh, outR, outC)
	cols2 := mat.NewDense(patchLen, patches, nil)
	var prod mat.Dense

	for n := 0; n < batch; n++ {
		im2col(x, n, k, outR, outC, cols2)
		prod.Mul(wm, cols2)
		for o := 0; o < outCh; o++ {
			row := prod.RawRowView(o)
			dst := out.Data[(n*outCh+o)*patches : (n*outCh+o+1)*patches]
			copy(dst, row)
			if b != nil {
				floats.AddConst(b.Data[o], dst)
			}
		}
	}
	return out, nil
}

// im2col writes the patches of sample n as columns of dst.
func im2col(x *tensor.Tensor, n, k, outR, outC int, dst *mat.Dense) {
	ch, rows, cols := x.Shape[1], x.Shape[2], x.Shape[3]
	base := n * ch * rows * cols
	for c := 0; c < ch; c++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				r := (c*k+i)*k + j
				for pr := 0; pr < outR; pr++ {
					for pc := 0; pc < outC; pc++ {
						dst.Set(r, pr*outC+pc, x.Data[base+(c*rows+pr+i)*cols+pc+j])
					}
				}
			}
		}
	}
}

// MaxAbsDiff returns the largest element-wise absolute difference.
func MaxAbsDiff(a, b *tensor.Tensor) (float64, error) {
	if !tensor.SameShape(a.Shape, b.Shape) {
		return 0, fmt.Errorf("reference: shape %v != %v", a.Shape, b.Shape)
	}
	if len(a.Data) == 0 {
		return 0, nil
	}
	return floats.Distance(a.Data, b.Data, math.Inf(1)), nil
}
