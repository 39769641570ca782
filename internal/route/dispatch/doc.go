// Package dispatch invokes route callbacks with panic recovery and timing.
//
// An Invoker runs callbacks synchronously in the caller's goroutine, one after
// another, and records a Result for each. A failing or panicking callback never
// prevents the remaining callbacks of the same delivery from running: errors
// and panics are reported through handlers and counted, never propagated to
// the sender.
//
// Usage:
//
//	inv := dispatch.NewInvoker(
//	    dispatch.WithPanicHandler(func(addr string, v any, stack []byte) {
//	        logger.Error("callback panicked", zap.String("address", addr), zap.Any("panic", v))
//	    }),
//	)
//	results := inv.InvokeAll(ctx, "/synth/1/freq", payload, callbacks)
package dispatch
