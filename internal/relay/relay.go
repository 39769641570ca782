package relay

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/route"
)

// DefaultChannel is the transport channel used when none is configured.
const DefaultChannel = "hexagon"

// retryDelay is the pause before a consumer retries after a transport error.
const retryDelay = time.Second

// Router is the part of a route.Router a relay needs.
type Router interface {
	Listen(pattern string, cb route.Callback) error
	Unlisten(pattern string)
	Send(ctx context.Context, msg route.Message) error
}

// Relay connects a router to a transport shared with other processes.
type Relay interface {
	// Forward publishes local messages matching pattern to the transport.
	// The relay registers pattern on the router, replacing any callback
	// already registered with the same pattern text.
	Forward(pattern string) error

	// Start subscribes to the transport and sends arriving messages into
	// the router. It returns once the subscription is active.
	Start(ctx context.Context) error

	// Close stops consuming, removes forwarded patterns from the router
	// and waits for the consumer to exit.
	Close() error
}

// Stats holds relay counters.
type Stats struct {
	Published uint64
	Received  uint64
	Dropped   uint64
	Errors    uint64
}

// Option configures a relay.
type Option func(*options)

type options struct {
	channel string
	logger  *zap.Logger
}

func defaultOptions() options {
	return options{channel: DefaultChannel, logger: zap.NewNop()}
}

// WithChannel sets the transport channel name.
func WithChannel(name string) Option {
	return func(o *options) {
		if name != "" {
			o.channel = name
		}
	}
}

// WithLogger sets the relay logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// base holds the transport-independent half of a relay.
type base struct {
	router  Router
	origin  string
	channel string
	logger  *zap.Logger
	publish func(ctx context.Context, data []byte) error
	retry   time.Duration

	mu       sync.Mutex
	forwards map[string]struct{}
	started  bool
	running  bool // a consumer goroutine owns done
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}

	published atomic.Uint64
	received  atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
}

func newBase(r Router, o options, publish func(ctx context.Context, data []byte) error) *base {
	origin := uuid.NewString()
	return &base{
		router:   r,
		origin:   origin,
		channel:  o.channel,
		logger:   o.logger.With(zap.String("channel", o.channel), zap.String("origin", origin)),
		publish:  publish,
		retry:    retryDelay,
		forwards: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Origin returns the ID stamped on envelopes published by this relay.
func (b *base) Origin() string {
	return b.origin
}

// Channel returns the transport channel name.
func (b *base) Channel() string {
	return b.channel
}

// Forward implements Relay.
func (b *base) Forward(pattern string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.router.Listen(pattern, route.CallbackFunc(b.forward)); err != nil {
		return err
	}
	b.forwards[pattern] = struct{}{}
	b.logger.Debug("forwarding", zap.String("pattern", pattern))
	return nil
}

// Forwards returns the forwarded patterns, sorted.
func (b *base) Forwards() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.forwards))
	for p := range b.forwards {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// forward is the router callback registered for forwarded patterns.
func (b *base) forward(ctx context.Context, payload []byte) error {
	msg, ok := route.MessageFromContext(ctx)
	if !ok || msg.Origin != "" || !msg.Address.IsValid() {
		// Relayed messages stay local. Pattern sends have no concrete
		// address to publish.
		return nil
	}

	data, err := Envelope{Origin: b.origin, Address: string(msg.Address), Payload: msg.Payload}.Marshal()
	if err != nil {
		b.failures.Add(1)
		return err
	}
	if err := b.publish(ctx, data); err != nil {
		b.failures.Add(1)
		return err
	}
	b.published.Add(1)
	return nil
}

// receive handles one envelope read from the transport.
func (b *base) receive(ctx context.Context, data []byte) {
	env, err := UnmarshalEnvelope(data)
	if err != nil {
		b.failures.Add(1)
		b.logger.Warn("drop envelope", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	if env.Origin == b.origin {
		b.dropped.Add(1)
		return
	}
	b.received.Add(1)

	msg := route.NewMessage(env.Address, env.Payload)
	msg.Origin = env.Origin
	if err := b.router.Send(ctx, msg); err != nil {
		b.failures.Add(1)
		b.logger.Warn("relay send", zap.String("address", env.Address), zap.Error(err))
	}
}

// begin marks the relay started and returns the consumer context.
func (b *base) begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.started {
		return nil, ErrStarted
	}
	b.started = true

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	return runCtx, nil
}

// abort undoes begin after a failed subscription.
func (b *base) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel()
	b.started = false
}

// launch records that a consumer is about to run. It fails if the relay was
// closed while Start was subscribing.
func (b *base) launch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.running = true
	return true
}

// sleep waits for the retry delay. It returns false if ctx ends first.
func (b *base) sleep(ctx context.Context) bool {
	t := time.NewTimer(b.retry)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// shutdown unregisters forwards and stops the consumer. It reports whether
// the relay was open and whether a consumer was running.
func (b *base) shutdown() (wasOpen, running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, false
	}
	b.closed = true
	for p := range b.forwards {
		b.router.Unlisten(p)
	}
	clear(b.forwards)
	if b.cancel != nil {
		b.cancel()
	}
	return true, b.running
}

// Stats returns a snapshot of the relay counters.
func (b *base) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Received:  b.received.Load(),
		Dropped:   b.dropped.Load(),
		Errors:    b.failures.Load(),
	}
}
