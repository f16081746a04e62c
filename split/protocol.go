// Package split provides the wire protocol between a data owner holding the
// secret key (client) and an evaluator that only sees ciphertexts (server).
package split

import (
	"encoding/gob"
	"fmt"
	"io"

	"hconv/core/hetensor"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

func init() {
	// Register types for gob encoding
	gob.Register(ParamsPayload{})
	gob.Register(ForwardPayload{})
}

// MessageType defines message types for the split protocol
type MessageType int

const (
	MsgParams MessageType = iota
	MsgForwardInput
	MsgForwardOutput
	MsgDone
	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgParams:
		return "params"
	case MsgForwardInput:
		return "forward-input"
	case MsgForwardOutput:
		return "forward-output"
	case MsgDone:
		return "done"
	case MsgError:
		return "error"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Message represents a message in the split protocol
type Message struct {
	Type    MessageType
	Payload interface{}
}

// ParamsPayload carries the serialized CKKS parameters chosen by the client.
type ParamsPayload struct {
	Params []byte
}

// ForwardPayload contains an encrypted tensor
type ForwardPayload struct {
	BatchID int
	Tensor  []byte // serialized hetensor.Tensor
	Level   int
}

// Protocol handles split communication
type Protocol struct {
	encoder *gob.Encoder
	decoder *gob.Decoder
}

// NewProtocol creates a new protocol handler
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	p := &Protocol{}
	if w != nil {
		p.encoder = gob.NewEncoder(w)
	}
	if r != nil {
		p.decoder = gob.NewDecoder(r)
	}
	return p
}

// Send sends a message
func (p *Protocol) Send(msg *Message) error {
	return p.encoder.Encode(msg)
}

// Receive receives a message
func (p *Protocol) Receive() (*Message, error) {
	var msg Message
	if err := p.decoder.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendParams announces the parameters every later ciphertext uses.
func (p *Protocol) SendParams(params ckks.Parameters) error {
	data, err := params.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	return p.Send(&Message{Type: MsgParams, Payload: ParamsPayload{Params: data}})
}

// ReceiveParams waits for the parameter announcement.
func (p *Protocol) ReceiveParams() (ckks.Parameters, error) {
	msg, err := p.receive(MsgParams)
	if err != nil {
		return ckks.Parameters{}, err
	}
	payload, ok := msg.Payload.(ParamsPayload)
	if !ok {
		return ckks.Parameters{}, fmt.Errorf("invalid params payload type")
	}
	var params ckks.Parameters
	if err := params.UnmarshalBinary(payload.Params); err != nil {
		return ckks.Parameters{}, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

// SendTensor sends an encrypted tensor as a forward input or output.
func (p *Protocol) SendTensor(typ MessageType, batchID int, t *hetensor.Tensor) error {
	if typ != MsgForwardInput && typ != MsgForwardOutput {
		return fmt.Errorf("cannot send a tensor as %v", typ)
	}
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return p.Send(&Message{
		Type: typ,
		Payload: ForwardPayload{
			BatchID: batchID,
			Tensor:  data,
			Level:   t.Level(),
		},
	})
}

// SendDone signals completion
func (p *Protocol) SendDone() error {
	return p.Send(&Message{Type: MsgDone})
}

// SendError sends an error message
func (p *Protocol) SendError(err error) error {
	return p.Send(&Message{
		Type:    MsgError,
		Payload: err.Error(),
	})
}

// receive reads the next message, turning MsgError into an error and MsgDone
// into io.EOF, and checks that the remaining type is one of want.
func (p *Protocol) receive(want ...MessageType) (*Message, error) {
	msg, err := p.Receive()
	if err != nil {
		return nil, err
	}
	if msg.Type == MsgError {
		return nil, fmt.Errorf("remote error: %v", msg.Payload)
	}
	if msg.Type == MsgDone {
		return nil, io.EOF
	}
	for _, w := range want {
		if msg.Type == w {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("expected %v message, got %v", want, msg.Type)
}

// ReceiveForward receives a forward payload
func (p *Protocol) ReceiveForward() (*ForwardPayload, error) {
	msg, err := p.receive(MsgForwardInput, MsgForwardOutput)
	if err != nil {
		return nil, err
	}
	payload, ok := msg.Payload.(ForwardPayload)
	if !ok {
		return nil, fmt.Errorf("invalid forward payload type")
	}
	return &payload, nil
}

// ReceiveTensor receives a forward payload and decodes its tensor.
func (p *Protocol) ReceiveTensor() (int, *hetensor.Tensor, error) {
	payload, err := p.ReceiveForward()
	if err != nil {
		return 0, nil, err
	}
	var t hetensor.Tensor
	if err := t.UnmarshalBinary(payload.Tensor); err != nil {
		return 0, nil, err
	}
	if t.Level() != payload.Level {
		return 0, nil, fmt.Errorf("batch %d: level %d, header says %d", payload.BatchID, t.Level(), payload.Level)
	}
	return payload.BatchID, &t, nil
}
