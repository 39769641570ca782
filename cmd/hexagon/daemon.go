package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/config"
	"github.com/ales-tsurko/hexagon/internal/relay"
	"github.com/ales-tsurko/hexagon/internal/route"
	"github.com/ales-tsurko/hexagon/internal/route/codec"
	"github.com/ales-tsurko/hexagon/internal/route/loop"
	"github.com/ales-tsurko/hexagon/internal/script"
)

// daemon owns every component started by the command.
type daemon struct {
	logger  *zap.Logger
	router  *route.Router
	host    *script.Host
	watcher *script.Watcher
	relays  []relay.Relay
	closers []func()
}

// newDaemon builds the router, script host and relays described by cfg.
// Components already built are released if a later one fails.
func newDaemon(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*daemon, error) {
	d := &daemon{logger: logger}
	err := d.buildRouter(cfg.Router)
	if err == nil {
		err = d.buildScripts(cfg.Scripts)
	}
	if err == nil {
		err = d.buildRelays(ctx, cfg.Relay)
	}
	if err != nil {
		d.close(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *daemon) buildRouter(cfg config.RouterConfig) error {
	delivery, err := route.ParseDelivery(cfg.Delivery)
	if err != nil {
		return err
	}
	opts := []route.Option{
		route.WithDelivery(delivery),
		route.WithLogger(d.logger.Named("router")),
	}
	if cfg.Codec == "osc" {
		opts = append(opts, route.WithCodec(codec.NewOSC()))
	}
	d.router = route.New(opts...)

	if delivery != route.DeliveryQueued {
		return nil
	}
	kind, err := loop.ParseKind(cfg.LoopKind)
	if err != nil {
		return err
	}
	for i := 0; i < max(cfg.Loops, 1); i++ {
		if _, err := d.router.StartLoop(kind, nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *daemon) buildScripts(cfg config.ScriptsConfig) error {
	if len(cfg.Paths) == 0 {
		return nil
	}

	d.host = script.NewHost(d.router,
		script.WithLogger(d.logger.Named("lua")),
		script.WithCallbackTimeout(cfg.CallbackTimeout),
	)
	for _, path := range cfg.Paths {
		if err := d.host.LoadFile(path); err != nil {
			return fmt.Errorf("loading script: %w", err)
		}
		d.logger.Info("script loaded", zap.String("path", path))
	}

	if !cfg.Watch {
		return nil
	}
	w, err := script.NewWatcher(d.host,
		script.WithReloadDelay(cfg.ReloadDelay),
		script.WithWatcherLogger(d.logger.Named("watcher")),
	)
	if err != nil {
		return fmt.Errorf("watching scripts: %w", err)
	}
	d.watcher = w
	return nil
}

func (d *daemon) buildRelays(ctx context.Context, cfg config.RelayConfig) error {
	if rc := cfg.Redis; rc.Enabled {
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		d.closers = append(d.closers, func() { client.Close() })

		r := relay.NewRedisRelay(d.router, client,
			relay.WithChannel(rc.Channel),
			relay.WithLogger(d.logger.Named("redis")),
		)
		if err := d.addRelay(r, rc.Forward); err != nil {
			return err
		}
	}

	if pc := cfg.Postgres; pc.Enabled {
		pool, err := pgxpool.New(ctx, pc.DSN)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)

		r := relay.NewPostgresRelay(d.router, pool,
			relay.WithChannel(pc.Channel),
			relay.WithLogger(d.logger.Named("postgres")),
		)
		if err := d.addRelay(r, pc.Forward); err != nil {
			return err
		}
	}
	return nil
}

func (d *daemon) addRelay(r relay.Relay, forward []string) error {
	d.relays = append(d.relays, r)
	for _, p := range forward {
		if err := r.Forward(p); err != nil {
			return fmt.Errorf("forwarding %s: %w", p, err)
		}
	}
	return nil
}

// close releases components in reverse order of construction and reports
// final router statistics.
func (d *daemon) close(ctx context.Context) error {
	var errs []error
	for _, r := range d.relays {
		errs = append(errs, r.Close())
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	if d.watcher != nil {
		errs = append(errs, d.watcher.Close())
	}
	if d.host != nil {
		errs = append(errs, d.host.Close())
	}
	if d.router != nil {
		errs = append(errs, d.router.Close(ctx))

		s := d.router.Stats()
		d.logger.Info("router stopped",
			zap.Uint64("sent", s.MessagesSent),
			zap.Uint64("unmatched", s.Unmatched),
			zap.Uint64("callbacks", s.CallbacksInvoked),
			zap.Uint64("callback_errors", s.CallbackErrors),
			zap.Uint64("callback_panics", s.CallbackPanics),
		)
	}
	return errors.Join(errs...)
}
