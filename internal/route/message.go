package route

import (
	"context"

	"github.com/ales-tsurko/hexagon/internal/route/address"
)

// Message is an address and payload pair in transit.
type Message struct {
	Address address.Address
	Payload []byte

	// Origin identifies the bridge that injected the message from another
	// process. It is empty for local sends.
	Origin string
}

// NewMessage creates a message, interning the address.
func NewMessage(addr string, payload []byte) Message {
	return Message{Address: address.Intern(addr), Payload: payload}
}

// Callback receives payloads delivered to a registered pattern.
// Implementations must be safe for concurrent use: two loops, or a loop and
// a direct send, may call the same callback at the same time.
type Callback interface {
	Call(ctx context.Context, payload []byte) error
}

// CallbackFunc is an adapter to allow ordinary functions as callbacks.
type CallbackFunc func(ctx context.Context, payload []byte) error

// Call implements Callback.
func (f CallbackFunc) Call(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Dispatcher receives messages drained from the router queue by an event
// loop.
type Dispatcher interface {
	Receive(ctx context.Context, msg Message)
}

// DispatcherFunc is an adapter to allow ordinary functions as dispatchers.
type DispatcherFunc func(ctx context.Context, msg Message)

// Receive implements Dispatcher.
func (f DispatcherFunc) Receive(ctx context.Context, msg Message) {
	f(ctx, msg)
}

// Codec converts messages to and from wire packets.
// Decode may return several messages for a single packet.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(packet []byte) ([]Message, error)
}

// Serializer turns arbitrary values into payload bytes for single-target
// sends.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}
