package nn

import (
	"fmt"
	"time"

	"hconv/core/arith"
	"hconv/core/ckkswrapper"
	"hconv/core/hetensor"
	"hconv/nn/layers"
	"hconv/nn/reference"
	"hconv/tensor"
	"hconv/utils"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ConvLayerName is the key of the convolution in weights files.
const ConvLayerName = "conv"

// BuildConv creates the layer described by cfg. Weights come from
// cfg.WeightsPath when set, otherwise from the (optionally seeded) default
// initialization.
func BuildConv(cfg *utils.Config) (*layers.Conv2D, error) {
	lc := layers.NewConv2DConfig(1, cfg.OutChannels, cfg.KernelSize)
	lc.Bias = cfg.Bias
	if seed, ok := cfg.Seeded(); ok {
		lc = lc.WithSeed(seed)
	}
	conv, err := layers.NewConv2D(lc)
	if err != nil {
		return nil, err
	}
	if cfg.WeightsPath == "" {
		return conv, nil
	}
	mw, err := utils.LoadWeights(cfg.WeightsPath)
	if err != nil {
		return nil, err
	}
	lw, err := mw.Layer(ConvLayerName)
	if err != nil {
		return nil, err
	}
	if err := conv.LoadWeights(lw); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.WeightsPath, err)
	}
	return conv, nil
}

// SaveConv writes the layer parameters in the format BuildConv reads.
func SaveConv(path string, conv *layers.Conv2D) error {
	mw := utils.NewModelWeights()
	mw.Layers[ConvLayerName] = conv.ExportWeights(ConvLayerName)
	return utils.SaveWeights(path, mw)
}

// SyntheticInput draws a [batch, 1, rows, cols] tensor from U(-1, 1).
func SyntheticInput(shape []int, seed uint64) *tensor.Tensor {
	x := tensor.New(shape[0], 1, shape[1], shape[2])
	dist := distuv.Uniform{Min: -1, Max: 1, Src: rand.NewSource(seed)}
	for i := range x.Data {
		x.Data[i] = dist.Rand()
	}
	return x
}

// Report summarizes a verification run.
type Report struct {
	OutputShape []int
	PlainDiff   float64 // Apply vs reference, max abs
	Counts      map[arith.Op]int

	Encrypted bool
	HEDiff    float64 // decrypted output vs reference, max abs
	Level     int
	HEMuls    int
	HEAdds    int
}

// Passed reports whether every difference is within tolerance.
func (r *Report) Passed() bool {
	if r.PlainDiff > reference.Tolerance {
		return false
	}
	return !r.Encrypted || r.HEDiff <= reference.HETolerance
}

// Verify evaluates conv on x with the plain and instrumented backends and, in
// HE mode, on an encryption of x, comparing everything with the reference.
func Verify(cfg *utils.Config, conv *layers.Conv2D, x *tensor.Tensor, stats *utils.TimingStats) (*Report, error) {
	start := time.Now()
	want, err := reference.Conv2D(x, conv.W, conv.B)
	if err != nil {
		return nil, err
	}
	stats.ReferenceTime += time.Since(start)

	be := arith.NewInstrumented[*tensor.Tensor](arith.Plain{}, nil)
	start = time.Now()
	got, err := layers.Apply[*tensor.Tensor](conv, be, x)
	if err != nil {
		return nil, err
	}
	stats.AddForward(time.Since(start))
	be.PrintCounters("forward")

	rep := &Report{OutputShape: got.Shape, Counts: be.Counts()}
	if rep.PlainDiff, err = reference.MaxAbsDiff(got, want); err != nil {
		return nil, err
	}
	if cfg.Mode != utils.ModeHE {
		return rep, nil
	}

	start = time.Now()
	heCtx := ckkswrapper.NewHeContextWithLogN(cfg.LogN)
	conv.WithHE(ckkswrapper.NewPublicServerKit(heCtx.Params), nil)
	stats.HEInitTime += time.Since(start)

	start = time.Now()
	enc, err := hetensor.Encrypt(heCtx, x)
	if err != nil {
		return nil, err
	}
	stats.EncryptionTime += time.Since(start)

	start = time.Now()
	encOut, err := conv.ForwardHE(enc)
	if err != nil {
		return nil, err
	}
	stats.AddForward(time.Since(start))

	start = time.Now()
	dec, err := hetensor.Decrypt(heCtx, encOut)
	if err != nil {
		return nil, err
	}
	stats.DecryptionTime += time.Since(start)

	ev := conv.HEBackend().Evaluator()
	ev.PrintCounters("forward")
	rep.Encrypted = true
	rep.Level = encOut.Level()
	rep.HEMuls, rep.HEAdds = ev.MulCount, ev.AddCount
	if rep.HEDiff, err = reference.MaxAbsDiff(dec, want); err != nil {
		return nil, err
	}
	return rep, nil
}

// Fit runs steps of plaintext gradient descent on model towards target and
// returns the loss before every step.
func Fit(model *Sequential, x, target *tensor.Tensor, lr float64, steps int, stats *utils.TimingStats) ([]float64, error) {
	var loss MSELoss
	losses := make([]float64, 0, steps)
	for step := 0; step < steps; step++ {
		start := time.Now()
		out, err := model.Forward(x)
		if err != nil {
			return losses, err
		}
		stats.AddForward(time.Since(start))
		pred, ok := out.(*tensor.Tensor)
		if !ok {
			return losses, fmt.Errorf("fit: model returned %T", out)
		}
		l, err := loss.Forward(pred, target)
		if err != nil {
			return losses, err
		}
		losses = append(losses, l)

		start = time.Now()
		grad, err := loss.Backward(pred, target)
		if err != nil {
			return losses, err
		}
		if _, err := model.Backward(grad); err != nil {
			return losses, err
		}
		stats.BackwardTime += time.Since(start)

		start = time.Now()
		if err := model.Update(lr); err != nil {
			return losses, err
		}
		stats.UpdateTime += time.Since(start)
	}
	return losses, nil
}
