// Package route implements an address-based publish/subscribe router.
//
// Callbacks listen on OSC-style address patterns such as "/synth/*/freq" or
// "/mixer/{gain,pan}". Messages sent to a concrete address are delivered to
// every callback whose pattern matches it.
//
// # Delivery
//
// A Router delivers in one of two modes, selected with WithDelivery:
//
//   - DeliveryDirect: Send matches and invokes callbacks on the caller's
//     goroutine before returning.
//   - DeliveryQueued: Send pushes onto the router's unbounded queue and
//     returns immediately. Event loops started with StartAsync or StartThread
//     drain the queue into a Dispatcher; the Router itself is a Dispatcher
//     that performs the direct-mode fan-out on the loop.
//
// SendTo is the single-target operation: it serializes a value and calls the
// one callback registered under the exact event name, failing with
// ErrCallbackNotFound otherwise.
//
// Callbacks can recover the message being delivered, including the concrete
// address that matched, with MessageFromContext.
//
// # Consistency
//
// The registry is copy-on-write. Each delivery matches against the snapshot
// current when it begins, so a listener added during a delivery is not called
// for it and one removed during a delivery may still be called once.
//
// # Shutdown
//
// Stop closes the queue. Loops blocked on receive wake up and exit; a callback
// that is already running is not interrupted, and messages still queued are
// dropped. Close additionally waits for the loops to exit.
//
// # Usage
//
//	r := route.New(route.WithDelivery(route.DeliveryQueued))
//	_ = r.ListenFunc("/synth/*/freq", func(ctx context.Context, p []byte) error {
//	    return nil
//	})
//	if _, err := r.StartAsync(nil); err != nil {
//	    return err
//	}
//	_ = r.Send(ctx, route.NewMessage("/synth/1/freq", payload))
//	defer r.Close(ctx)
package route
