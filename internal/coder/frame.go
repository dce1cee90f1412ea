package coder

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jzrake/gridflow/internal/errors"
)

// Frame is every envelope one rank sends another in one round.
type Frame struct {
	_        struct{} `cbor:",toarray"`
	Source   int
	Round    uint64
	Messages [][]byte
}

// FrameCodec encodes and decodes frames. It is safe for concurrent use.
type FrameCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewFrameCodec returns a FrameCodec.
func NewFrameCodec() (*FrameCodec, error) {
	enc, dec, err := Modes()
	if err != nil {
		return nil, err
	}
	return &FrameCodec{enc: enc, dec: dec}, nil
}

// Encode serializes f.
func (c *FrameCodec) Encode(f Frame) ([]byte, error) {
	data, err := c.enc.Marshal(f)
	if err != nil {
		return nil, errors.NewCodecError("encode frame", errors.Join(errors.ErrEncode, err)).
			WithRound(f.Round).WithRank(f.Source)
	}
	return data, nil
}

// Decode parses a frame.
func (c *FrameCodec) Decode(data []byte) (Frame, error) {
	var f Frame
	if err := c.dec.Unmarshal(data, &f); err != nil {
		return Frame{}, errors.NewCodecError(fmt.Sprintf("decode frame (%d bytes)", len(data)),
			errors.Join(errors.ErrDecode, err))
	}
	return f, nil
}
