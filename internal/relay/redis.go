package relay

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay relays messages over a Redis pub/sub channel.
type RedisRelay struct {
	*base
	client *redis.Client
	ps     *redis.PubSub // guarded by base.mu
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisRelay creates a relay publishing on client. The client is owned by
// the caller and is not closed by Close.
func NewRedisRelay(r Router, client *redis.Client, opts ...Option) *RedisRelay {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	rr := &RedisRelay{client: client}
	rr.base = newBase(r, o, rr.publish)
	return rr
}

func (r *RedisRelay) publish(ctx context.Context, data []byte) error {
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Start implements Relay.
func (r *RedisRelay) Start(ctx context.Context) error {
	runCtx, err := r.begin(ctx)
	if err != nil {
		return err
	}

	ps := r.client.Subscribe(runCtx, r.channel)
	// Wait for the subscription confirmation so that messages published
	// after Start returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		r.abort()
		return err
	}

	if !r.launch() {
		ps.Close()
		return ErrClosed
	}
	r.mu.Lock()
	r.ps = ps
	r.mu.Unlock()

	// A blocked socket read ignores context cancellation; closing the
	// subscription is what unblocks ReceiveMessage.
	go func() {
		<-runCtx.Done()
		r.closeSubscription()
	}()
	go r.consume(runCtx, ps)
	r.logger.Info("redis relay started")
	return nil
}

func (r *RedisRelay) consume(ctx context.Context, ps *redis.PubSub) {
	defer close(r.done)

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			r.failures.Add(1)
			r.logger.Warn("redis receive", zap.Error(err))
			if !r.sleep(ctx) {
				return
			}
			continue
		}
		r.receive(ctx, []byte(msg.Payload))
	}
}

// closeSubscription closes the subscription once.
func (r *RedisRelay) closeSubscription() {
	r.mu.Lock()
	ps := r.ps
	r.ps = nil
	r.mu.Unlock()

	if ps != nil {
		if err := ps.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			r.logger.Debug("close subscription", zap.Error(err))
		}
	}
}

// Close implements Relay.
func (r *RedisRelay) Close() error {
	wasOpen, running := r.shutdown()
	if !wasOpen {
		return nil
	}
	r.closeSubscription()
	if running {
		<-r.done
	}
	r.logger.Info("redis relay closed")
	return nil
}
