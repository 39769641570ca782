// Package loop runs event loops that drain a message queue.
//
// Two variants are provided. A task loop is an ordinary goroutine that
// suspends in a context-aware receive. A thread loop is a goroutine locked to
// its own OS thread that blocks in a plain receive, for callbacks that need
// thread affinity (audio, GUI or C libraries).
//
// Both variants handle each item synchronously before receiving the next one,
// survive handler panics, and exit cleanly once the queue is closed. Several
// loops may drain the same queue; each item is handled by exactly one of them.
package loop

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/route/queue"
)

// Kind identifies the loop variant.
type Kind uint8

const (
	// KindTask is a loop running as a cooperative goroutine.
	KindTask Kind = iota
	// KindThread is a loop running on a dedicated OS thread.
	KindThread
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name as returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "task", "":
		return KindTask, nil
	case "thread":
		return KindThread, nil
	default:
		return 0, errors.New("unknown loop kind " + s)
	}
}

// Source is the receiving side of a queue.
type Source[T any] interface {
	Recv() (T, error)
	RecvContext(ctx context.Context) (T, error)
}

// Handler processes one received item.
type Handler[T any] func(ctx context.Context, item T)

// Option configures a loop.
type Option func(*config)

type config struct {
	ctx    context.Context
	logger *zap.Logger
	name   string
}

// WithContext sets the context passed to the handler.
// A task loop also exits when this context is done.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithLogger sets the logger used for lifecycle and panic reports.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithName sets a name included in log entries.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Stats contains counters for a running or finished loop.
type Stats struct {
	// Received is the number of items taken from the queue.
	Received uint64

	// Handled is the number of items whose handler returned normally.
	Handled uint64

	// Panics is the number of handler panics recovered.
	Panics uint64
}

// Handle controls and observes a started loop.
type Handle struct {
	id   uuid.UUID
	kind Kind
	done chan struct{}

	errMu sync.Mutex
	err   error

	received atomic.Uint64
	handled  atomic.Uint64
	panics   atomic.Uint64
}

// ID returns the unique loop identifier.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Kind returns the loop variant.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Done returns a channel closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the loop has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Join waits for the loop to exit or for ctx to be done, whichever is first.
func (h *Handle) Join(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the reason the loop stopped abnormally, or nil if it is still
// running or stopped because the queue was closed.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// Stats returns loop counters.
func (h *Handle) Stats() Stats {
	return Stats{
		Received: h.received.Load(),
		Handled:  h.handled.Load(),
		Panics:   h.panics.Load(),
	}
}

// StartTask starts a task loop draining src.
func StartTask[T any](src Source[T], handler Handler[T], opts ...Option) *Handle {
	cfg, h := setup(KindTask, opts)
	go func() {
		defer close(h.done)
		run(h, cfg, handler, func() (T, error) {
			return src.RecvContext(cfg.ctx)
		})
	}()
	return h
}

// StartThread starts a loop on a dedicated OS thread draining src.
// The goroutine stays locked to its thread for the lifetime of the loop.
func StartThread[T any](src Source[T], handler Handler[T], opts ...Option) *Handle {
	cfg, h := setup(KindThread, opts)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(h.done)
		run(h, cfg, handler, src.Recv)
	}()
	return h
}

// Start starts a loop of the given kind.
func Start[T any](kind Kind, src Source[T], handler Handler[T], opts ...Option) *Handle {
	if kind == KindThread {
		return StartThread(src, handler, opts...)
	}
	return StartTask(src, handler, opts...)
}

func setup(kind Kind, opts []Option) (*config, *Handle) {
	cfg := &config{
		ctx:    context.Background(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	h := &Handle{
		id:   uuid.New(),
		kind: kind,
		done: make(chan struct{}),
	}
	cfg.logger = cfg.logger.With(
		zap.String("loop", h.id.String()),
		zap.Stringer("kind", kind),
	)
	if cfg.name != "" {
		cfg.logger = cfg.logger.With(zap.String("name", cfg.name))
	}
	return cfg, h
}

func run[T any](h *Handle, cfg *config, handler Handler[T], recv func() (T, error)) {
	cfg.logger.Debug("event loop started")
	for {
		item, err := recv()
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				cfg.logger.Debug("event loop stopped: queue closed")
				return
			}
			h.errMu.Lock()
			h.err = err
			h.errMu.Unlock()
			cfg.logger.Warn("event loop stopped", zap.Error(err))
			return
		}
		h.received.Add(1)
		if handle(cfg, handler, item) {
			h.handled.Add(1)
		} else {
			h.panics.Add(1)
		}
	}
}

// handle runs the handler for one item and reports whether it returned
// normally.
func handle[T any](cfg *config, handler Handler[T], item T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			cfg.logger.Error("event loop handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			ok = false
		}
	}()
	handler(cfg.ctx, item)
	return true
}
