package route

import (
	"fmt"

	"go.uber.org/zap"
)

// Delivery selects how Send reaches callbacks.
type Delivery uint8

const (
	// DeliveryDirect invokes matching callbacks on the sender's goroutine.
	DeliveryDirect Delivery = iota
	// DeliveryQueued enqueues messages for event loops to deliver.
	DeliveryQueued
)

// String returns the delivery mode name.
func (d Delivery) String() string {
	switch d {
	case DeliveryDirect:
		return "direct"
	case DeliveryQueued:
		return "queued"
	default:
		return fmt.Sprintf("Delivery(%d)", uint8(d))
	}
}

// ParseDelivery parses a delivery mode name.
func ParseDelivery(s string) (Delivery, error) {
	switch s {
	case "direct", "":
		return DeliveryDirect, nil
	case "queued":
		return DeliveryQueued, nil
	default:
		return 0, fmt.Errorf("unknown delivery mode %q", s)
	}
}

// Option configures a Router.
type Option func(*routerConfig)

// routerConfig contains configuration for the router.
type routerConfig struct {
	delivery   Delivery
	codec      Codec
	serializer Serializer
	logger     *zap.Logger
}

// defaultRouterConfig returns the default configuration: direct delivery,
// no codec, MessagePack serialization and a no-op logger.
func defaultRouterConfig() routerConfig {
	return routerConfig{
		delivery:   DeliveryDirect,
		serializer: MsgpackSerializer{},
		logger:     zap.NewNop(),
	}
}

// WithDelivery sets the delivery mode used by Send.
func WithDelivery(d Delivery) Option {
	return func(c *routerConfig) {
		c.delivery = d
	}
}

// WithCodec sets the codec used to encode payloads for callbacks and to
// decode packets passed to SendPacket. Without a codec callbacks receive
// the raw message payload.
func WithCodec(codec Codec) Option {
	return func(c *routerConfig) {
		c.codec = codec
	}
}

// WithSerializer sets the serializer used by SendTo.
func WithSerializer(s Serializer) Option {
	return func(c *routerConfig) {
		if s != nil {
			c.serializer = s
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *routerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
