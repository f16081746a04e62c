// hconv-bench: sweeps kernel sizes, ring sizes and core counts and writes the
// mean forward latency of the convolution to a CSV file.
package main

import (
	"flag"
	"fmt"
	"os"

	"hconv/core/ckkswrapper"
	"hconv/nn/bench"
	"hconv/utils"
)

func main() {
	var kernelsCSV, logNsCSV, coresCSV, shapeStr, outPath string
	var outChannels, iters, warmup int
	var bias, includePlain bool

	flag.StringVar(&kernelsCSV, "kernels", "2,3,5", "Comma-separated kernel sizes")
	flag.StringVar(&logNsCSV, "logNs", "13", "Comma-separated list of logN values (e.g., 13,14,15)")
	flag.StringVar(&coresCSV, "cores", "1,4", "Comma-separated list of core counts to run")
	flag.StringVar(&shapeStr, "shape", "8 12 12", "Input geometry: batch rows cols")
	flag.StringVar(&outPath, "out", "bench_results.csv", "Output CSV path")
	flag.IntVar(&outChannels, "out-channels", 4, "Output channels")
	flag.IntVar(&iters, "iters", 5, "Timed forwards per case")
	flag.IntVar(&warmup, "warmup", 1, "Untimed forwards per case")
	flag.BoolVar(&bias, "bias", true, "Add a per-channel bias")
	flag.BoolVar(&includePlain, "include-plain", true, "Also record plaintext timings (logN will be '-')")
	flag.BoolVar(&utils.Verbose, "verbose", true, "Print progress")
	flag.Parse()
	utils.Output = os.Stderr

	kernels, err := bench.ParseInts(kernelsCSV)
	exitOn(err)
	logNs, err := bench.ParseInts(logNsCSV)
	exitOn(err)
	cores, err := bench.ParseInts(coresCSV)
	exitOn(err)
	shape, err := utils.ParseShape(shapeStr)
	exitOn(err)

	// validate every combination before spending time on any of them
	var cases []bench.Case
	for _, k := range kernels {
		modes := append([]int(nil), logNs...)
		if includePlain {
			modes = append([]int{0}, modes...)
		}
		for _, logN := range modes {
			cfg := &utils.Config{OutChannels: outChannels, KernelSize: k, Shape: shape, Mode: utils.ModePlain, LogN: logN}
			if logN > 0 {
				cfg.Mode = utils.ModeHE
			}
			exitOn(utils.ValidateConfig(cfg))
			for _, c := range cores {
				cases = append(cases, bench.Case{
					Kernel: k, OutChannels: outChannels,
					Batch: shape[0], Rows: shape[1], Cols: shape[2],
					LogN: logN, Cores: c, Bias: bias,
				})
			}
		}
	}

	for _, logN := range logNs {
		h := ckkswrapper.NewHeContextWithLogN(logN)
		progress("CKKS %s", bench.ParamsSummary(h.Params))
	}

	points := make([]bench.Point, 0, len(cases))
	for i, c := range cases {
		p, err := bench.RunPoint(c, iters, warmup)
		exitOn(err)
		progress("[%d/%d] %v: fwd %v, max |diff| %.3g", i+1, len(cases), c, p.Fwd, p.MaxDiff)
		points = append(points, p)
	}

	f, err := os.Create(outPath)
	exitOn(err)
	defer f.Close()
	exitOn(bench.WriteCSV(f, points))
	progress("Wrote %d rows to %s", len(points), outPath)
}

func progress(format string, args ...interface{}) {
	if utils.Verbose {
		fmt.Fprintf(utils.Output, format+"\n", args...)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "hconv-bench: %v\n", err)
		os.Exit(2)
	}
}
