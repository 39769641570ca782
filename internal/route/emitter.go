package route

import (
	"context"

	"github.com/ales-tsurko/hexagon/internal/route/address"
)

// Emitter gives a Dispatcher implementation the router's send operations.
// Embed it in a dispatcher type and initialize it with NewEmitter.
//
//	type synth struct {
//	    route.Emitter
//	}
//
//	func (s *synth) Receive(ctx context.Context, msg route.Message) {
//	    _ = s.SendTo(ctx, "/ui/level", level(msg.Payload))
//	}
type Emitter struct {
	router *Router
}

// NewEmitter creates an emitter bound to r.
func NewEmitter(r *Router) Emitter {
	return Emitter{router: r}
}

// Router returns the bound router.
func (e Emitter) Router() *Router {
	return e.router
}

// Send routes payload to every callback matching addr, which may itself be
// a pattern address.
func (e Emitter) Send(ctx context.Context, addr string, payload []byte) error {
	a, err := address.ParseTarget(addr)
	if err != nil {
		return err
	}
	return e.router.Send(ctx, Message{Address: a, Payload: payload})
}

// SendTo serializes v and invokes the callback registered under event.
func (e Emitter) SendTo(ctx context.Context, event string, v any) error {
	return e.router.SendTo(ctx, event, v)
}
