// hconv-client: encrypts synthetic batches, has the server convolve them and
// checks the decrypted results against a local plaintext evaluation.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"hconv/core/ckkswrapper"
	"hconv/nn"
	"hconv/nn/reference"
	"hconv/split"
	"hconv/utils"
)

var (
	addr        = flag.String("addr", "", "Server TCP address (empty: stdin/stdout)")
	outChannels = flag.Int("out", 2, "Output channels")
	kernelSize  = flag.Int("k", 3, "Kernel size")
	bias        = flag.Bool("bias", false, "Add a per-channel bias")
	shapeStr    = flag.String("shape", "4 8 8", "Input geometry: batch rows cols")
	seed        = flag.Int64("seed", 42, "Seed for weights and inputs")
	logN        = flag.Int("logN", 13, "Ring dimension log2")
	batches     = flag.Int("batches", 3, "Number of batches to send")
	weightsFile = flag.String("weights", "", "Weights JSON file to load")
	verbose     = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose
	// stdout may carry the protocol
	utils.Output = os.Stderr

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
		Mode:        utils.ModeHE,
		LogN:        *logN,
		WeightsPath: *weightsFile,
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		fail("%v", err)
	}
	if err := run(cfg, *addr, *batches); err != nil {
		fail("%v", err)
	}
}

// run drives one session against the server at addr, or over stdin/stdout
// when addr is empty.
func run(cfg *utils.Config, addr string, batches int) error {
	// The local copy must hold the same weights as the server's.
	conv, err := nn.BuildConv(cfg)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	var w io.Writer = os.Stdout
	if addr != "" {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		r, w = conn, conn
	}

	stats := &utils.TimingStats{}
	total := time.Now()

	start := time.Now()
	heCtx := ckkswrapper.NewHeContextWithLogN(cfg.LogN)
	stats.HEInitTime = time.Since(start)
	log("HE context ready (logN=%d, slots=%d)", cfg.LogN, heCtx.Params.MaxSlots())

	client, err := split.NewClient(split.NewProtocol(r, w), heCtx)
	if err != nil {
		return err
	}

	worst := 0.0
	for b := 0; b < batches; b++ {
		x := nn.SyntheticInput(cfg.Shape, uint64(cfg.Seed)+uint64(b)+1)

		start = time.Now()
		got, err := client.Forward(x)
		if err != nil {
			return fmt.Errorf("batch %d: %w", b, err)
		}
		stats.AddForward(time.Since(start))

		start = time.Now()
		want, err := reference.Conv2D(x, conv.W, conv.B)
		if err != nil {
			return err
		}
		stats.ReferenceTime += time.Since(start)

		d, err := reference.MaxAbsDiff(got, want)
		if err != nil {
			return fmt.Errorf("batch %d: %w", b, err)
		}
		log("Batch %d: max |diff| %.3g", b, d)
		if d > worst {
			worst = d
		}
	}
	if err := client.Close(); err != nil {
		return err
	}
	stats.TotalTime = time.Since(total)
	utils.PrintTimingStats(stats)

	fmt.Fprintf(os.Stderr, "%d batches, worst max |diff| %.3g (tolerance %g)\n", batches, worst, reference.HETolerance)
	if worst > reference.HETolerance {
		return fmt.Errorf("worst max |diff| %.3g exceeds tolerance %g", worst, reference.HETolerance)
	}
	return nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "hconv-client: "+format+"\n", args...)
	os.Exit(1)
}

func log(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[CLIENT] "+format+"\n", args...)
	}
}
