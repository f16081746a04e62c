package split

import (
	"errors"
	"fmt"
	"io"

	"hconv/core/ckkswrapper"
	"hconv/core/hetensor"
	"hconv/tensor"
)

// Evaluator is the server side computation, e.g. an encrypted Conv2D.
type Evaluator interface {
	ForwardHE(x *hetensor.Tensor) (*hetensor.Tensor, error)
}

// Serve answers forward requests until the peer sends MsgDone. Evaluation
// failures are reported to the peer and do not end the session. It returns
// the number of batches answered.
func Serve(p *Protocol, ev Evaluator) (int, error) {
	served := 0
	for {
		batchID, x, err := p.ReceiveTensor()
		if errors.Is(err, io.EOF) {
			return served, nil
		}
		if err != nil {
			return served, err
		}
		y, err := ev.ForwardHE(x)
		if err != nil {
			if sendErr := p.SendError(fmt.Errorf("batch %d: %w", batchID, err)); sendErr != nil {
				return served, sendErr
			}
			continue
		}
		if err := p.SendTensor(MsgForwardOutput, batchID, y); err != nil {
			return served, err
		}
		served++
	}
}

// Client encrypts inputs, ships them to the server and decrypts the replies.
type Client struct {
	p      *Protocol
	heCtx  *ckkswrapper.HeContext
	nextID int
}

// NewClient announces heCtx's parameters to the server.
func NewClient(p *Protocol, heCtx *ckkswrapper.HeContext) (*Client, error) {
	if !heCtx.HasSecretKey() {
		return nil, ckkswrapper.ErrNoSecretKey
	}
	if err := p.SendParams(heCtx.Params); err != nil {
		return nil, err
	}
	return &Client{p: p, heCtx: heCtx}, nil
}

// Forward runs one remote evaluation of x.
func (c *Client) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	enc, err := hetensor.Encrypt(c.heCtx, x)
	if err != nil {
		return nil, err
	}
	id := c.nextID
	c.nextID++
	if err := c.p.SendTensor(MsgForwardInput, id, enc); err != nil {
		return nil, err
	}
	gotID, out, err := c.p.ReceiveTensor()
	if err != nil {
		return nil, err
	}
	if gotID != id {
		return nil, fmt.Errorf("reply for batch %d, want %d", gotID, id)
	}
	return hetensor.Decrypt(c.heCtx, out)
}

// Close ends the session.
func (c *Client) Close() error {
	return c.p.SendDone()
}
