// hconv-server: evaluates the convolution on ciphertexts without holding any
// secret key. Speaks the split protocol on stdin/stdout, or on TCP with -addr.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"hconv/core/ckkswrapper"
	"hconv/nn"
	"hconv/split"
	"hconv/utils"
)

var (
	addr        = flag.String("addr", "", "TCP listen address (empty: stdin/stdout)")
	outChannels = flag.Int("out", 2, "Output channels")
	kernelSize  = flag.Int("k", 3, "Kernel size")
	bias        = flag.Bool("bias", false, "Add a per-channel bias")
	shapeStr    = flag.String("shape", "4 8 8", "Expected input geometry: batch rows cols")
	seed        = flag.Int64("seed", 42, "Seed for weight initialization")
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
		Mode:        utils.ModePlain, // ring size comes from the client
		WeightsPath: *weightsFile,
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		fail("%v", err)
	}

	if err := serve(cfg, *addr); err != nil {
		fail("%v", err)
	}
}

// serve handles clients on addr one after the other, or a single session over
// stdin/stdout when addr is empty.
func serve(cfg *utils.Config, addr string) error {
	if addr == "" {
		return session(cfg, os.Stdin, os.Stdout)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log("Listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		log("Client %s connected", conn.RemoteAddr())
		if err := session(cfg, conn, conn); err != nil {
			log("Session error: %v", err)
		}
		conn.Close()
	}
}

// session serves one client: parameters first, then forward requests.
func session(cfg *utils.Config, r io.Reader, w io.Writer) error {
	conv, err := nn.BuildConv(cfg)
	if err != nil {
		return err
	}
	protocol := split.NewProtocol(r, w)
	log("Waiting for parameters...")
	params, err := protocol.ReceiveParams()
	if err != nil {
		return err
	}
	conv.WithHE(ckkswrapper.NewPublicServerKit(params), nil)
	log("Layer %s ready (logN=%d, levels=%d)", conv.Tag(), params.LogN(), params.MaxLevel())

	n, err := split.Serve(protocol, conv)
	if err != nil {
		return err
	}
	conv.HEBackend().Evaluator().PrintCounters(fmt.Sprintf("%d batches", n))
	log("Server done (%d batches)", n)
	return nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "hconv-server: "+format+"\n", args...)
	os.Exit(1)
}

func log(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[SERVER] "+format+"\n", args...)
	}
}
