package route

import "time"

// Stats contains router statistics.
type Stats struct {
	// MessagesSent is the number of accepted Send and SendTo calls.
	MessagesSent uint64

	// MessagesQueued is the number of messages pushed onto the queue.
	MessagesQueued uint64

	// QueueDepth is the number of messages waiting in the queue.
	QueueDepth int

	// Unmatched is the number of deliveries that matched no pattern.
	Unmatched uint64

	// CallbacksInvoked is the number of callback invocations attempted.
	CallbacksInvoked uint64

	// CallbackErrors is the number of callbacks that returned errors.
	CallbackErrors uint64

	// CallbackPanics is the number of callbacks that panicked.
	CallbackPanics uint64

	// EncodeErrors is the number of deliveries dropped by codec failures.
	EncodeErrors uint64

	// DecodeErrors is the number of packets that failed to decode.
	DecodeErrors uint64

	// AvgCallbackTime is the average callback run time.
	AvgCallbackTime time.Duration

	// Listeners is the number of registered patterns.
	Listeners int

	// Loops is the number of event loops started.
	Loops int
}

// Stats returns router statistics.
func (r *Router) Stats() Stats {
	inv := r.invoker.Stats()

	r.mu.Lock()
	loops := len(r.loops)
	r.mu.Unlock()

	return Stats{
		MessagesSent:     r.sent.Load(),
		MessagesQueued:   r.enqueued.Load(),
		QueueDepth:       r.queue.Len(),
		Unmatched:        r.unmatched.Load(),
		CallbacksInvoked: inv.Invoked,
		CallbackErrors:   inv.Failed,
		CallbackPanics:   inv.Panicked,
		EncodeErrors:     r.encodeErrors.Load(),
		DecodeErrors:     r.decodeErrors.Load(),
		AvgCallbackTime:  inv.AvgDuration,
		Listeners:        r.registry.Len(),
		Loops:            loops,
	}
}
