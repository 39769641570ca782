package relay

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ales-tsurko/hexagon/internal/route/address"
)

// Envelope is the transport representation of a routed message.
type Envelope struct {
	Origin  string `msgpack:"o"`
	Address string `msgpack:"a"`
	Payload []byte `msgpack:"p"`
}

// Marshal encodes the envelope with msgpack.
func (e Envelope) Marshal() ([]byte, error) {
	return msgpack.Marshal(&e)
}

// UnmarshalEnvelope decodes an envelope and validates its address.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	if err := address.Validate(e.Address); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	return e, nil
}
