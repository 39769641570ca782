package relay

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MaxNotifyPayload is the PostgreSQL limit for a NOTIFY payload in bytes.
const MaxNotifyPayload = 8000

// PostgresRelay relays messages with PostgreSQL LISTEN/NOTIFY.
// Envelopes are base64 encoded because notification payloads are text.
type PostgresRelay struct {
	*base
	pool *pgxpool.Pool
}

var _ Relay = (*PostgresRelay)(nil)

// NewPostgresRelay creates a relay using pool. The pool is owned by the
// caller and must stay open for the lifetime of the relay.
func NewPostgresRelay(r Router, pool *pgxpool.Pool, opts ...Option) *PostgresRelay {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pr := &PostgresRelay{pool: pool}
	pr.base = newBase(r, o, pr.publish)
	return pr
}

func (p *PostgresRelay) publish(ctx context.Context, data []byte) error {
	text := base64.StdEncoding.EncodeToString(data)
	if len(text) > MaxNotifyPayload {
		return fmt.Errorf("%w: %d bytes encoded, limit %d", ErrPayloadTooLarge, len(text), MaxNotifyPayload)
	}
	_, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", p.channel, text)
	return err
}

// Start implements Relay. It holds one pool connection for LISTEN until the
// relay is closed.
func (p *PostgresRelay) Start(ctx context.Context) error {
	runCtx, err := p.begin(ctx)
	if err != nil {
		return err
	}

	conn, err := p.subscribe(ctx)
	if err != nil {
		p.abort()
		return err
	}
	if !p.launch() {
		conn.Release()
		return ErrClosed
	}

	go p.consume(runCtx, conn)
	p.logger.Info("postgres relay started")
	return nil
}

// subscribe acquires a pool connection and issues LISTEN on it.
func (p *PostgresRelay) subscribe(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

// consume reads notifications until ctx ends. A failed connection is
// dropped and the relay subscribes again after the retry delay.
func (p *PostgresRelay) consume(ctx context.Context, conn *pgxpool.Conn) {
	defer close(p.done)

	for {
		err := p.listen(ctx, conn)
		// The connection is hijacked rather than returned: it is still
		// subscribed to the channel.
		conn.Hijack().Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		p.failures.Add(1)
		p.logger.Error("postgres listen", zap.Error(err))

		if conn = p.resubscribe(ctx); conn == nil {
			return
		}
	}
}

func (p *PostgresRelay) listen(ctx context.Context, conn *pgxpool.Conn) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		data, err := base64.StdEncoding.DecodeString(n.Payload)
		if err != nil {
			p.failures.Add(1)
			p.logger.Warn("drop notification", zap.Error(err))
			continue
		}
		p.receive(ctx, data)
	}
}

// resubscribe retries subscribe until it succeeds or ctx ends, in which case
// it returns nil.
func (p *PostgresRelay) resubscribe(ctx context.Context) *pgxpool.Conn {
	for p.sleep(ctx) {
		conn, err := p.subscribe(ctx)
		if err == nil {
			p.logger.Info("postgres relay resubscribed")
			return conn
		}
		p.failures.Add(1)
		p.logger.Warn("postgres resubscribe", zap.Error(err))
	}
	return nil
}

// Close implements Relay.
func (p *PostgresRelay) Close() error {
	wasOpen, running := p.shutdown()
	if !wasOpen {
		return nil
	}
	if running {
		<-p.done
	}
	p.logger.Info("postgres relay closed")
	return nil
}
