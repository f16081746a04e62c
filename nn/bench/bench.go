// Package bench times the convolution across geometries, ring sizes and core
// counts.
package bench

import (
	"fmt"
	"runtime"
	"time"

	"hconv/core/ckkswrapper"
	"hconv/core/hetensor"
	"hconv/nn"
	"hconv/nn/layers"
	"hconv/nn/reference"
	"hconv/tensor"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Case is one benchmark configuration. LogN 0 means plaintext.
type Case struct {
	Kernel, OutChannels int
	Batch, Rows, Cols   int
	LogN, Cores         int
	Bias                bool
}

// Plain reports whether c runs without encryption.
func (c Case) Plain() bool { return c.LogN == 0 }

func (c Case) String() string {
	mode := "Plain"
	if !c.Plain() {
		mode = fmt.Sprintf("HE(logN=%d)", c.LogN)
	}
	return fmt.Sprintf("Conv2D_1_%d_%d [%d,1,%d,%d] %s cores=%d", c.OutChannels, c.Kernel, c.Batch, c.Rows, c.Cols, mode, c.Cores)
}

// Point is the measured result of a Case.
type Point struct {
	Case
	Fwd     time.Duration // mean over the timed iterations
	Encrypt time.Duration
	Decrypt time.Duration
	Mul     int // per forward
	Add     int
	Level   int
	MaxDiff float64
}

// RunPoint times iters forwards of c after warmup untimed ones.
func RunPoint(c Case, iters, warmup int) (Point, error) {
	if iters <= 0 {
		return Point{}, fmt.Errorf("iters must be positive")
	}
	if c.Cores > 0 {
		defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(c.Cores))
	}

	cfg := layers.NewConv2DConfig(1, c.OutChannels, c.Kernel).WithSeed(1)
	cfg.Bias = c.Bias
	conv, err := layers.NewConv2D(cfg)
	if err != nil {
		return Point{}, err
	}
	x := nn.SyntheticInput([]int{c.Batch, c.Rows, c.Cols}, 2)
	want, err := reference.Conv2D(x, conv.W, conv.B)
	if err != nil {
		return Point{}, err
	}

	if c.Plain() {
		return runPlain(c, conv, x, want, iters, warmup)
	}
	return runHE(c, conv, x, want, iters, warmup)
}

func runPlain(c Case, conv *layers.Conv2D, x, want *tensor.Tensor, iters, warmup int) (Point, error) {
	p := Point{Case: c}
	var out *tensor.Tensor
	var total time.Duration
	for i := 0; i < warmup+iters; i++ {
		start := time.Now()
		var err error
		if out, err = conv.ForwardPlain(x); err != nil {
			return p, err
		}
		if i >= warmup {
			total += time.Since(start)
		}
	}
	p.Fwd = total / time.Duration(iters)
	var err error
	p.MaxDiff, err = reference.MaxAbsDiff(out, want)
	return p, err
}

func runHE(c Case, conv *layers.Conv2D, x, want *tensor.Tensor, iters, warmup int) (Point, error) {
	p := Point{Case: c}
	heCtx := ckkswrapper.NewHeContextWithLogN(c.LogN)
	conv.WithHE(ckkswrapper.NewPublicServerKit(heCtx.Params), nil)
	ev := conv.HEBackend().Evaluator()

	start := time.Now()
	enc, err := hetensor.Encrypt(heCtx, x)
	if err != nil {
		return p, err
	}
	p.Encrypt = time.Since(start)

	var out *hetensor.Tensor
	var total time.Duration
	for i := 0; i < warmup+iters; i++ {
		if i == warmup {
			ev.ResetCounters()
		}
		start := time.Now()
		if out, err = conv.ForwardHE(enc); err != nil {
			return p, err
		}
		if i >= warmup {
			total += time.Since(start)
		}
	}
	p.Fwd = total / time.Duration(iters)
	p.Mul = ev.MulCount / iters
	p.Add = ev.AddCount / iters
	p.Level = out.Level()

	start = time.Now()
	dec, err := hetensor.Decrypt(heCtx, out)
	if err != nil {
		return p, err
	}
	p.Decrypt = time.Since(start)
	p.MaxDiff, err = reference.MaxAbsDiff(dec, want)
	return p, err
}

// ParamsSummary describes the CKKS parameters used for a ring size.
func ParamsSummary(params ckks.Parameters) string {
	return fmt.Sprintf("logN=%d logQP=%.0f levels=%d logScale=%d slots=%d",
		params.LogN(), params.LogQP(), params.MaxLevel(), params.LogDefaultScale(), params.MaxSlots())
}
