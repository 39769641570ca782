package dispatch

import (
	"context"
	"time"
)

// Callback is the interface for route callbacks.
// It mirrors route.Callback to avoid an import cycle.
type Callback interface {
	Call(ctx context.Context, payload []byte) error
}

// Result represents the outcome of one callback invocation.
type Result struct {
	// Error is the error returned by the callback, if any.
	// For a panic it is a *PanicError.
	Error error

	// Panicked is true if the callback panicked.
	Panicked bool

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the callback took to run.
	Duration time.Duration

	// Skipped is true if the callback was not run because ctx was done.
	Skipped bool
}

// IsSuccess returns true if the callback ran and returned nil.
func (r Result) IsSuccess() bool {
	return !r.Skipped && !r.Panicked && r.Error == nil
}

// IsError returns true if the callback returned an error (not a panic).
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked && !r.Skipped
}

// PanicHandler is called when a callback panics.
// It receives the delivery address, the panic value and the stack trace.
type PanicHandler func(address string, panicValue any, stack []byte)

// ErrorHandler is called when a callback returns an error.
type ErrorHandler func(address string, err error)
