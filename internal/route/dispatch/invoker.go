package dispatch

import (
	"context"
	"sync/atomic"
	"time"
)

// Invoker delivers payloads to callbacks synchronously in the caller's
// goroutine and keeps delivery statistics. It is safe for concurrent use.
type Invoker struct {
	executor *Executor

	invoked     atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	skipped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// Option configures an Invoker.
type Option func(*invokerConfig)

type invokerConfig struct {
	execOpts []ExecutorOption
}

// WithPanicHandler sets the handler called when a callback panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *invokerConfig) {
		c.execOpts = append(c.execOpts, WithExecutorPanicHandler(h))
	}
}

// WithErrorHandler sets the handler called when a callback returns an error.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *invokerConfig) {
		c.execOpts = append(c.execOpts, WithExecutorErrorHandler(h))
	}
}

// NewInvoker creates a new synchronous invoker.
func NewInvoker(opts ...Option) *Invoker {
	var cfg invokerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Invoker{executor: NewExecutor(cfg.execOpts...)}
}

// Invoke runs one callback and records its outcome.
func (i *Invoker) Invoke(ctx context.Context, address string, payload []byte, cb Callback) Result {
	i.invoked.Add(1)
	result := i.executor.Execute(ctx, address, payload, cb)
	i.totalTimeNs.Add(result.Duration.Nanoseconds())

	switch {
	case result.Skipped:
		i.skipped.Add(1)
	case result.Panicked:
		i.panicked.Add(1)
	case result.Error != nil:
		i.failed.Add(1)
	default:
		i.succeeded.Add(1)
	}
	return result
}

// InvokeAll runs every callback in order with the same payload bytes.
// Errors and panics do not stop delivery to the remaining callbacks; once ctx
// is done the remaining callbacks are marked skipped.
func (i *Invoker) InvokeAll(ctx context.Context, address string, payload []byte, cbs []Callback) []Result {
	results := make([]Result, len(cbs))
	for n, cb := range cbs {
		results[n] = i.Invoke(ctx, address, payload, cb)
	}
	return results
}

// Stats returns invocation statistics.
// Counters are read individually, so values may be slightly inconsistent
// while callbacks are running.
func (i *Invoker) Stats() Stats {
	invoked := i.invoked.Load()
	totalNs := i.totalTimeNs.Load()

	var avgNs int64
	if ran := invoked - i.skipped.Load(); ran > 0 {
		avgNs = totalNs / int64(ran)
	}

	return Stats{
		Invoked:       invoked,
		Succeeded:     i.succeeded.Load(),
		Failed:        i.failed.Load(),
		Panicked:      i.panicked.Load(),
		Skipped:       i.skipped.Load(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// ResetStats resets all statistics to zero.
func (i *Invoker) ResetStats() {
	i.invoked.Store(0)
	i.succeeded.Store(0)
	i.failed.Store(0)
	i.panicked.Store(0)
	i.skipped.Store(0)
	i.totalTimeNs.Store(0)
}

// Stats contains statistics for an Invoker.
type Stats struct {
	// Invoked is the total number of callback invocations attempted.
	Invoked uint64

	// Succeeded is the number of callbacks that returned nil.
	Succeeded uint64

	// Failed is the number of callbacks that returned errors.
	Failed uint64

	// Panicked is the number of callbacks that panicked.
	Panicked uint64

	// Skipped is the number of callbacks not run because ctx was done.
	Skipped uint64

	// TotalDuration is the cumulative time spent in callbacks.
	TotalDuration time.Duration

	// AvgDuration is the average callback run time.
	AvgDuration time.Duration
}
