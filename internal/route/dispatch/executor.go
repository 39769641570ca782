package dispatch

import (
	"context"
	"runtime/debug"
	"time"
)

// Executor runs a single callback, recovering panics and measuring time.
type Executor struct {
	panicHandler PanicHandler
	errorHandler ErrorHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// WithExecutorErrorHandler sets the error handler for the executor.
func WithExecutorErrorHandler(h ErrorHandler) ExecutorOption {
	return func(e *Executor) {
		e.errorHandler = h
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute calls cb with payload and returns the result.
// A panic inside cb is recovered and reported as a *PanicError.
func (e *Executor) Execute(ctx context.Context, address string, payload []byte, cb Callback) (result Result) {
	select {
	case <-ctx.Done():
		return Result{Error: ctx.Err(), Skipped: true}
	default:
	}

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()
			result.Error = &PanicError{Address: address, Value: r}
			result.Panicked = true
			result.PanicStack = stack
			e.reportPanic(address, r, stack)
		}
	}()

	if err := cb.Call(ctx, payload); err != nil {
		result.Error = err
		e.reportError(address, err)
	}
	return result
}

// reportPanic calls the panic handler, swallowing a panic raised by the
// handler itself.
func (e *Executor) reportPanic(address string, v any, stack []byte) {
	if e.panicHandler == nil {
		return
	}
	defer func() { _ = recover() }()
	e.panicHandler(address, v, stack)
}

func (e *Executor) reportError(address string, err error) {
	if e.errorHandler == nil {
		return
	}
	defer func() { _ = recover() }()
	e.errorHandler(address, err)
}
