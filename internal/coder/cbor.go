package coder

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jzrake/gridflow/internal/automaton"
	"github.com/jzrake/gridflow/internal/errors"
)

// encMode returns the shared deterministic encoding mode.
func encMode() (cbor.EncMode, error) {
	opts := cbor.CoreDetEncOptions()
	// Floats stay at their declared width and NaN or Inf bits pass through untouched.
	opts.ShortestFloat = cbor.ShortestFloatNone
	opts.NaNConvert = cbor.NaNConvertNone
	opts.InfConvert = cbor.InfConvertNone
	return opts.EncMode()
}

// decMode returns the shared strict decoding mode.
func decMode() (cbor.DecMode, error) {
	return cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
}

// Modes returns the encode and decode modes shared by every gridflow CBOR
// payload, for packages that persist data outside the message path.
func Modes() (cbor.EncMode, cbor.DecMode, error) {
	enc, err := encMode()
	if err != nil {
		return nil, nil, fmt.Errorf("coder: build encode mode: %w", err)
	}
	dec, err := decMode()
	if err != nil {
		return nil, nil, fmt.Errorf("coder: build decode mode: %w", err)
	}
	return enc, dec, nil
}

// CBOR encodes envelopes of key type K and message type M. It is safe for
// concurrent use.
type CBOR[K comparable, M any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ automaton.Coder[string, []byte] = (*CBOR[string, []byte])(nil)

// NewCBOR returns a CBOR coder.
func NewCBOR[K comparable, M any]() (*CBOR[K, M], error) {
	enc, dec, err := Modes()
	if err != nil {
		return nil, err
	}
	return &CBOR[K, M]{enc: enc, dec: dec}, nil
}

// Encode implements automaton.Coder.
func (c *CBOR[K, M]) Encode(env automaton.Envelope[K, M]) ([]byte, error) {
	data, err := c.enc.Marshal(env)
	if err != nil {
		return nil, errors.NewCodecError(fmt.Sprintf("encode envelope %v -> %v", env.From, env.To),
			errors.Join(errors.ErrEncode, err))
	}
	return data, nil
}

// Decode implements automaton.Coder.
func (c *CBOR[K, M]) Decode(data []byte) (automaton.Envelope[K, M], error) {
	var env automaton.Envelope[K, M]
	if err := c.dec.Unmarshal(data, &env); err != nil {
		return automaton.Envelope[K, M]{}, errors.NewCodecError(fmt.Sprintf("decode envelope (%d bytes)", len(data)),
			errors.Join(errors.ErrDecode, err))
	}
	return env, nil
}
