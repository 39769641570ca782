package route

import "context"

type messageKey struct{}

func withMessage(ctx context.Context, msg Message) context.Context {
	return context.WithValue(ctx, messageKey{}, msg)
}

// MessageFromContext returns the message being delivered to a callback.
// Callbacks registered with a pattern use it to learn the concrete address
// that matched. The payload is the message payload before encoding.
func MessageFromContext(ctx context.Context) (Message, bool) {
	msg, ok := ctx.Value(messageKey{}).(Message)
	return msg, ok
}
