package relay

import "errors"

var (
	// ErrClosed is returned by operations on a closed relay.
	ErrClosed = errors.New("relay is closed")

	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("relay already started")

	// ErrPayloadTooLarge is returned when an envelope exceeds the transport
	// limit.
	ErrPayloadTooLarge = errors.New("payload exceeds transport limit")

	// ErrEnvelope is returned for envelopes that cannot be decoded.
	ErrEnvelope = errors.New("malformed envelope")
)
