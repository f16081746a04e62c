// hconv: builds a restricted Conv2d, evaluates it in plaintext and optionally
// under CKKS, and checks every result against an independent reference.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"hconv/nn"
	"hconv/nn/layers"
	"hconv/nn/reference"
	"hconv/tensor"
	"hconv/utils"
)

var (
	outChannels = flag.Int("out", 2, "Output channels")
	kernelSize  = flag.Int("k", 3, "Kernel size")
	bias        = flag.Bool("bias", false, "Add a per-channel bias")
	shapeStr    = flag.String("shape", "4 8 8", "Input geometry: batch rows cols")
	seed        = flag.Int64("seed", 42, "Seed for weights and input (negative: clock)")
	mode        = flag.String("mode", utils.ModePlain, "Evaluation mode: plain, he")
	logN        = flag.Int("logN", 13, "Ring dimension log2")
	weightsFile = flag.String("weights", "", "Weights JSON file to load")
	saveFile    = flag.String("save", "", "Write the layer weights to this JSON file")
	trainSteps  = flag.Int("train", 0, "Gradient steps towards a second randomly initialized layer")
	lr          = flag.Float64("lr", 0.5, "Learning rate")
	verbose     = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	shape, err := utils.ParseShape(*shapeStr)
	if err != nil {
		fail("invalid shape %q: %v", *shapeStr, err)
	}
	cfg := &utils.Config{
		OutChannels: *outChannels,
		KernelSize:  *kernelSize,
		Bias:        *bias,
		Shape:       shape,
		Seed:        *seed,
		Mode:        *mode,
		LogN:        *logN,
		WeightsPath: *weightsFile,
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		fail("%v", err)
	}

	stats := &utils.TimingStats{}
	total := time.Now()

	start := time.Now()
	conv, err := nn.BuildConv(cfg)
	if err != nil {
		fail("%v", err)
	}
	stats.ModelInitTime = time.Since(start)
	log("Layer %s ready (bias=%v)", conv.Tag(), conv.HasBias())

	inputSeed, ok := cfg.Seeded()
	if !ok {
		inputSeed = uint64(time.Now().UnixNano())
	}
	x := nn.SyntheticInput(cfg.Shape, inputSeed+1)

	if *trainSteps > 0 {
		train(cfg, conv, x, stats)
	}

	rep, err := nn.Verify(cfg, conv, x, stats)
	if err != nil {
		fail("%v", err)
	}
	stats.TotalTime = time.Since(total)

	fmt.Printf("output shape: %v\n", rep.OutputShape)
	fmt.Printf("plain  max |diff| vs reference: %.3g (tolerance %g)\n", rep.PlainDiff, reference.Tolerance)
	if rep.Encrypted {
		fmt.Printf("ckks   max |diff| vs reference: %.3g (tolerance %g), level %d, %d muls, %d adds\n",
			rep.HEDiff, reference.HETolerance, rep.Level, rep.HEMuls, rep.HEAdds)
	}
	utils.PrintTimingStats(stats)

	if *saveFile != "" {
		if err := nn.SaveConv(*saveFile, conv); err != nil {
			fail("%v", err)
		}
		log("Weights written to %s", *saveFile)
	}
	if !rep.Passed() {
		fmt.Println("FAIL")
		os.Exit(1)
	}
	fmt.Println("PASS")
}

// train fits conv to the output of a differently seeded layer of the same shape.
func train(cfg *utils.Config, conv *layers.Conv2D, x *tensor.Tensor, stats *utils.TimingStats) {
	targetCfg := *cfg
	targetCfg.WeightsPath = ""
	targetCfg.Seed = cfg.Seed + 1000
	if cfg.Seed < 0 {
		targetCfg.Seed = -1
	}
	target, err := nn.BuildConv(&targetCfg)
	if err != nil {
		fail("%v", err)
	}
	y, err := target.ForwardPlain(x)
	if err != nil {
		fail("%v", err)
	}
	losses, err := nn.Fit(&nn.Sequential{Layers: []nn.Module{conv}}, x, y, *lr, *trainSteps, stats)
	if err != nil {
		fail("training: %v", err)
	}
	for i, l := range losses {
		log("Step %d/%d | Loss: %.6f", i+1, len(losses), l)
	}
	fmt.Printf("training loss: %.6f -> %.6f over %d steps\n", losses[0], losses[len(losses)-1], len(losses))
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "hconv: "+format+"\n", args...)
	os.Exit(1)
}

func log(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[CONV] "+format+"\n", args...)
	}
}
