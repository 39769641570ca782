package route

import (
	"errors"
	"fmt"

	"github.com/ales-tsurko/hexagon/internal/route/address"
)

// Sentinel errors for the router.
var (
	// ErrInvalidPattern is returned when a listen pattern fails to parse.
	ErrInvalidPattern = address.ErrInvalidPattern

	// ErrInvalidAddress is returned when a send target fails to parse.
	ErrInvalidAddress = address.ErrInvalidAddress

	// ErrCallbackNotFound is returned by single-target sends when no callback
	// is registered under the exact event name.
	ErrCallbackNotFound = errors.New("callback not found")

	// ErrSerialization is returned when a value cannot be serialized.
	ErrSerialization = errors.New("serialization failed")

	// ErrEncode is returned when the codec cannot encode a message.
	ErrEncode = errors.New("encode failed")

	// ErrDecode is returned when the codec cannot decode a packet.
	ErrDecode = errors.New("decode failed")

	// ErrNoCodec is returned by SendPacket when the router has no codec.
	ErrNoCodec = errors.New("router has no codec")

	// ErrNilCallback is returned when a nil callback is registered.
	ErrNilCallback = errors.New("callback cannot be nil")

	// ErrStopped is returned when a loop is started on a stopped router.
	ErrStopped = errors.New("router is stopped")
)

// CallbackNotFoundError reports a single-target send without a receiver.
type CallbackNotFoundError struct {
	Event string
}

// Error implements the error interface.
func (e *CallbackNotFoundError) Error() string {
	return "callback not found for event " + e.Event
}

// Is allows errors.Is to match CallbackNotFoundError with ErrCallbackNotFound.
func (e *CallbackNotFoundError) Is(target error) bool {
	return target == ErrCallbackNotFound
}

// SerializationError wraps a serializer failure.
type SerializationError struct {
	Event string
	Err   error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize payload for %s: %v", e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match SerializationError with ErrSerialization.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

// EncodeError wraps a codec encode failure.
type EncodeError struct {
	Address address.Address
	Err     error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode message for %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying error.
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match EncodeError with ErrEncode.
func (e *EncodeError) Is(target error) bool {
	return target == ErrEncode
}

// DecodeError wraps a codec decode failure.
type DecodeError struct {
	// Size is the length of the packet that failed to decode.
	Size int
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d byte packet: %v", e.Size, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match DecodeError with ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
