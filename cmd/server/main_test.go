package main

import (
	"net"
	"testing"

	"hconv/core/ckkswrapper"
	"hconv/nn"
	"hconv/split"
	"hconv/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionServesClient(t *testing.T) {
	cfg := &utils.Config{
		OutChannels: 1,
		KernelSize:  2,
		Shape:       []int{2, 3, 3},
		Seed:        5,
		Mode:        utils.ModePlain,
	}
	local, err := nn.BuildConv(cfg)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	done := make(chan error, 1)
	go func() {
		defer serverConn.Close()
		done <- session(cfg, serverConn, serverConn)
	}()

	client, err := split.NewClient(split.NewProtocol(clientConn, clientConn), ckkswrapper.NewHeContextWithLogN(12))
	require.NoError(t, err)
	x := nn.SyntheticInput(cfg.Shape, 1)
	got, err := client.Forward(x)
	require.NoError(t, err)
	want, err := local.ForwardPlain(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, got.Data, 1e-4)

	require.NoError(t, client.Close())
	require.NoError(t, <-done)
}

func TestServeListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// the address is taken, so serve returns instead of exiting the process
	assert.Error(t, serve(&utils.Config{}, ln.Addr().String()))
}
