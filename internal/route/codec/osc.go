// Package codec provides wire codecs for the router.
//
// OSC encodes each message as an OSC 1.0 packet whose single blob argument is
// the message payload; an empty payload is sent without arguments. Decoding accepts any OSC message or bundle; bundles are
// flattened in order.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/ales-tsurko/hexagon/internal/route"
)

// ErrEmptyPacket is returned when decoding a zero-length packet.
var ErrEmptyPacket = errors.New("empty packet")

// OSC is an Open Sound Control codec.
type OSC struct{}

// Compile-time check that OSC implements route.Codec.
var _ route.Codec = OSC{}

// NewOSC creates an OSC codec.
func NewOSC() OSC {
	return OSC{}
}

// Encode builds an OSC message at msg.Address carrying the payload as a blob.
// An empty payload is encoded as a message without arguments.
func (OSC) Encode(msg route.Message) ([]byte, error) {
	return message(msg).MarshalBinary()
}

// message converts msg to an OSC message. The parser rejects zero-length
// blobs, so empty payloads carry no argument.
func message(msg route.Message) *osc.Message {
	if len(msg.Payload) == 0 {
		return osc.NewMessage(string(msg.Address))
	}
	return osc.NewMessage(string(msg.Address), msg.Payload)
}

// Decode parses an OSC packet into messages.
// The first argument of each OSC message becomes the payload: blobs and
// strings are taken verbatim, other values are formatted as text and a message
// without arguments has an empty payload.
func (OSC) Decode(packet []byte) (msgs []route.Message, err error) {
	if len(packet) == 0 {
		return nil, ErrEmptyPacket
	}

	// The parser may panic on truncated input.
	defer func() {
		if r := recover(); r != nil {
			msgs, err = nil, fmt.Errorf("malformed OSC packet: %v", r)
		}
	}()

	p, err := osc.ParsePacket(string(packet))
	if err != nil {
		return nil, err
	}
	return flatten(p, nil)
}

// EncodeBundle encodes several messages as one OSC bundle time-tagged now.
func (c OSC) EncodeBundle(msgs ...route.Message) ([]byte, error) {
	b := osc.NewBundle(time.Now())
	for _, m := range msgs {
		if err := b.Append(message(m)); err != nil {
			return nil, err
		}
	}
	return b.MarshalBinary()
}

func flatten(p osc.Packet, out []route.Message) ([]route.Message, error) {
	switch v := p.(type) {
	case *osc.Message:
		return append(out, route.NewMessage(v.Address, payloadOf(v))), nil
	case *osc.Bundle:
		var err error
		for _, m := range v.Messages {
			if out, err = flatten(m, out); err != nil {
				return nil, err
			}
		}
		for _, b := range v.Bundles {
			if out, err = flatten(b, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported OSC packet %T", p)
	}
}

func payloadOf(m *osc.Message) []byte {
	if len(m.Arguments) == 0 {
		return []byte{}
	}
	switch a := m.Arguments[0].(type) {
	case []byte:
		return a
	case string:
		return []byte(a)
	case nil:
		return []byte{}
	default:
		return []byte(fmt.Sprint(a))
	}
}
