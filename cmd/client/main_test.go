package main

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"hconv/core/ckkswrapper"
	"hconv/nn"
	"hconv/split"
	"hconv/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *utils.Config {
	return &utils.Config{
		OutChannels: 2,
		KernelSize:  2,
		Bias:        true,
		Shape:       []int{2, 3, 4},
		Seed:        9,
		Mode:        utils.ModeHE,
		LogN:        12,
	}
}

// listen starts a one-shot evaluator; handle runs on the accepted connection
// and its result is delivered once the client has hung up.
func listen(t *testing.T, handle func(p *split.Protocol) error) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		herr := handle(split.NewProtocol(conn, conn))
		// returns nil on EOF, i.e. once the client closed its side
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		_, cerr := io.Copy(io.Discard, conn)
		done <- errors.Join(herr, cerr)
	}()
	return ln.Addr().String(), done
}

func TestRunAgainstServer(t *testing.T) {
	cfg := testConfig()
	conv, err := nn.BuildConv(cfg)
	require.NoError(t, err)

	addr, done := listen(t, func(p *split.Protocol) error {
		params, err := p.ReceiveParams()
		if err != nil {
			return err
		}
		conv.WithHE(ckkswrapper.NewPublicServerKit(params), nil)
		n, err := split.Serve(p, conv)
		if err == nil && n != 2 {
			err = errors.New("unexpected number of served batches")
		}
		return err
	})

	require.NoError(t, run(cfg, addr, 2))
	require.NoError(t, <-done)
}

func TestRunClosesConnectionOnError(t *testing.T) {
	addr, done := listen(t, func(p *split.Protocol) error {
		if _, err := p.ReceiveParams(); err != nil {
			return err
		}
		return p.SendError(errors.New("evaluator unavailable"))
	})

	err := run(testConfig(), addr, 1)
	assert.ErrorContains(t, err, "evaluator unavailable")
	require.NoError(t, <-done)
}

func TestRunDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	assert.Error(t, run(testConfig(), addr, 1))
}
