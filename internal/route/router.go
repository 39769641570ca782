package route

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/route/address"
	"github.com/ales-tsurko/hexagon/internal/route/dispatch"
	"github.com/ales-tsurko/hexagon/internal/route/loop"
	"github.com/ales-tsurko/hexagon/internal/route/queue"
)

// Router owns a callback registry and a message queue and routes messages
// from senders to matching callbacks.
// A Router is safe for concurrent use.
type Router struct {
	registry   *Registry
	queue      *queue.Queue[Message]
	invoker    *dispatch.Invoker
	delivery   Delivery
	codec      Codec
	serializer Serializer
	logger     *zap.Logger

	mu      sync.Mutex // protects loops and stopped
	loops   []*loop.Handle
	stopped bool

	sent         atomic.Uint64
	enqueued     atomic.Uint64
	unmatched    atomic.Uint64
	decodeErrors atomic.Uint64
	encodeErrors atomic.Uint64
}

// Compile-time check that Router implements Dispatcher.
var _ Dispatcher = (*Router)(nil)

// New creates a router with the given options.
func New(opts ...Option) *Router {
	cfg := defaultRouterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Router{
		registry:   NewRegistry(),
		queue:      queue.New[Message](),
		delivery:   cfg.delivery,
		codec:      cfg.codec,
		serializer: cfg.serializer,
		logger:     cfg.logger,
	}
	r.invoker = dispatch.NewInvoker(
		dispatch.WithPanicHandler(func(addr string, v any, stack []byte) {
			r.logger.Error("callback panicked",
				zap.String("address", addr),
				zap.Any("panic", v),
				zap.ByteString("stack", stack),
			)
		}),
		dispatch.WithErrorHandler(func(addr string, err error) {
			r.logger.Warn("callback failed", zap.String("address", addr), zap.Error(err))
		}),
	)
	return r
}

// Registry returns the router's callback registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Delivery returns the configured delivery mode.
func (r *Router) Delivery() Delivery {
	return r.delivery
}

// Listen registers cb for every address matching pattern.
// Listening again on the same pattern text replaces the previous callback.
func (r *Router) Listen(pattern string, cb Callback) error {
	replaced, err := r.registry.Register(pattern, cb)
	if err != nil {
		return err
	}
	r.logger.Debug("listen", zap.String("pattern", pattern), zap.Bool("replaced", replaced))
	return nil
}

// ListenFunc registers a function as a callback.
func (r *Router) ListenFunc(pattern string, fn func(ctx context.Context, payload []byte) error) error {
	if fn == nil {
		return ErrNilCallback
	}
	return r.Listen(pattern, CallbackFunc(fn))
}

// Unlisten removes the callback registered under the exact pattern text.
// Unlistening a pattern that is not registered does nothing.
func (r *Router) Unlisten(pattern string) {
	if r.registry.Unregister(pattern) {
		r.logger.Debug("unlisten", zap.String("pattern", pattern))
	}
}

// Send routes msg to every callback whose pattern matches its address.
//
// In direct mode the callbacks run on the caller's goroutine before Send
// returns; a message matching nothing is not an error. In queued mode the
// message is enqueued for the event loops and Send returns immediately.
// Callback errors and panics are logged and counted, never returned.
//
// An address containing pattern metacharacters is itself a pattern, as in
// incoming OSC packets. It reaches every literal listener it matches and the
// listener registered under the same pattern text.
func (r *Router) Send(ctx context.Context, msg Message) error {
	if _, err := sendTargets(msg.Address); err != nil {
		return err
	}
	r.sent.Add(1)

	if r.delivery == DeliveryQueued {
		r.queue.Push(msg)
		r.enqueued.Add(1)
		return nil
	}
	return r.deliver(ctx, msg)
}

// SendTo serializes v and invokes the callback registered under the exact
// event name. Wildcards are not expanded. The callback runs on the caller's
// goroutine regardless of the delivery mode.
func (r *Router) SendTo(ctx context.Context, event string, v any) error {
	payload, err := r.serializer.Marshal(v)
	if err != nil {
		return &SerializationError{Event: event, Err: err}
	}

	cb, ok := r.registry.Snapshot().Lookup(event)
	if !ok {
		return &CallbackNotFoundError{Event: event}
	}
	r.sent.Add(1)
	ctx = withMessage(ctx, Message{Address: address.Address(event), Payload: payload})
	r.invoker.Invoke(ctx, event, payload, cb)
	return nil
}

// SendPacket decodes a wire packet with the router codec and sends every
// message it contains, in order.
func (r *Router) SendPacket(ctx context.Context, packet []byte) error {
	if r.codec == nil {
		return ErrNoCodec
	}
	msgs, err := r.codec.Decode(packet)
	if err != nil {
		r.decodeErrors.Add(1)
		return &DecodeError{Size: len(packet), Err: err}
	}

	var errs []error
	for _, msg := range msgs {
		if err := r.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Receive delivers a dequeued message to the matching callbacks.
// It implements Dispatcher, so the router can drain its own queue.
func (r *Router) Receive(ctx context.Context, msg Message) {
	if err := r.deliver(ctx, msg); err != nil {
		r.logger.Error("deliver queued message",
			zap.Stringer("address", msg.Address),
			zap.Error(err),
		)
	}
}

// deliver invokes every callback matching msg in the current registry
// snapshot with identical payload bytes.
func (r *Router) deliver(ctx context.Context, msg Message) error {
	p, err := sendTargets(msg.Address)
	if err != nil {
		return err
	}
	var listeners []Listener
	if p != nil {
		listeners = r.registry.Snapshot().MatchPattern(p)
	} else {
		listeners = r.registry.Snapshot().Match(msg.Address)
	}
	if len(listeners) == 0 {
		r.unmatched.Add(1)
		return nil
	}

	payload := msg.Payload
	if r.codec != nil {
		b, err := r.codec.Encode(msg)
		if err != nil {
			r.encodeErrors.Add(1)
			return &EncodeError{Address: msg.Address, Err: err}
		}
		payload = b
	}

	cbs := make([]dispatch.Callback, len(listeners))
	for i, l := range listeners {
		cbs[i] = l.Callback
	}
	ctx = withMessage(ctx, msg)
	r.invoker.InvokeAll(ctx, string(msg.Address), payload, cbs)
	return nil
}

// sendTargets validates a send address. It returns the compiled pattern for
// pattern addresses and nil for concrete ones.
func sendTargets(a address.Address) (*address.Pattern, error) {
	if !address.IsPattern(string(a)) {
		return nil, address.Validate(string(a))
	}
	return address.Compile(string(a))
}

// StartAsync starts a task event loop draining the router queue into d.
// A nil d delivers to the router's own callbacks.
func (r *Router) StartAsync(d Dispatcher) (*loop.Handle, error) {
	return r.start(loop.KindTask, d)
}

// StartThread starts an event loop on a dedicated OS thread draining the
// router queue into d. A nil d delivers to the router's own callbacks.
func (r *Router) StartThread(d Dispatcher) (*loop.Handle, error) {
	return r.start(loop.KindThread, d)
}

// StartLoop starts an event loop of the given kind.
func (r *Router) StartLoop(kind loop.Kind, d Dispatcher) (*loop.Handle, error) {
	return r.start(kind, d)
}

func (r *Router) start(kind loop.Kind, d Dispatcher) (*loop.Handle, error) {
	if d == nil {
		d = r
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, ErrStopped
	}
	h := loop.Start[Message](kind, r.queue, d.Receive, loop.WithLogger(r.logger))
	r.loops = append(r.loops, h)
	r.logger.Info("event loop started", zap.Stringer("loop", h.ID()), zap.Stringer("kind", kind))
	return h, nil
}

// Stop closes the router queue. Every event loop exits once it observes the
// close; a callback already running is not interrupted and messages still
// queued are not delivered. Stop is idempotent.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	r.queue.Close()
	r.logger.Info("router stopped", zap.Int("pending", r.queue.Len()))
}

// Close stops the router and waits for every started loop to exit or for
// ctx to be done.
func (r *Router) Close(ctx context.Context) error {
	r.Stop()

	r.mu.Lock()
	loops := append([]*loop.Handle(nil), r.loops...)
	r.mu.Unlock()

	for _, h := range loops {
		if err := h.Join(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stopped returns true once Stop has been called.
func (r *Router) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Loops returns the handles of every loop started on this router.
func (r *Router) Loops() []*loop.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*loop.Handle(nil), r.loops...)
}
