package config

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ales-tsurko/hexagon/internal/config/loader"
	"github.com/ales-tsurko/hexagon/internal/logging"
	"github.com/ales-tsurko/hexagon/internal/route"
	"github.com/ales-tsurko/hexagon/internal/route/address"
	"github.com/ales-tsurko/hexagon/internal/route/loop"
)

// Config is the process configuration.
type Config struct {
	Router  RouterConfig   `yaml:"router"`
	Logging logging.Config `yaml:"logging"`
	Scripts ScriptsConfig  `yaml:"scripts"`
	Relay   RelayConfig    `yaml:"relay"`
}

// RouterConfig configures the router and its event loops.
type RouterConfig struct {
	// Delivery is "direct" or "queued".
	Delivery string `yaml:"delivery"`
	// Loops is the number of event loops started in queued mode.
	Loops int `yaml:"loops"`
	// LoopKind is "task" or "thread".
	LoopKind string `yaml:"loop_kind"`
	// Codec is "osc" or "none". With "osc" callbacks receive encoded OSC
	// packets and stdin lines may carry raw packets.
	Codec string `yaml:"codec"`
}

// ScriptsConfig configures the Lua host.
type ScriptsConfig struct {
	Paths           []string      `yaml:"paths"`
	Watch           bool          `yaml:"watch"`
	ReloadDelay     time.Duration `yaml:"reload_delay"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
}

// RelayConfig configures cross-process relays.
type RelayConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig configures the Redis relay.
type RedisConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Channel  string   `yaml:"channel"`
	Forward  []string `yaml:"forward"`
}

// PostgresConfig configures the PostgreSQL relay.
type PostgresConfig struct {
	Enabled bool     `yaml:"enabled"`
	DSN     string   `yaml:"dsn"`
	Channel string   `yaml:"channel"`
	Forward []string `yaml:"forward"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			Delivery: "direct",
			Loops:    1,
			LoopKind: "task",
			Codec:    "none",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Scripts: ScriptsConfig{
			ReloadDelay:     100 * time.Millisecond,
			CallbackTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "hexagon",
			},
			Postgres: PostgresConfig{
				Channel: "hexagon",
			},
		},
	}
}

// EnvMapping maps environment variables to setting paths.
func EnvMapping() map[string]string {
	return map[string]string{
		"HEXAGON_DELIVERY":         "router.delivery",
		"HEXAGON_LOOPS":            "router.loops",
		"HEXAGON_LOOP_KIND":        "router.loop_kind",
		"HEXAGON_CODEC":            "router.codec",
		"HEXAGON_LOG_LEVEL":        "logging.level",
		"HEXAGON_LOG_FORMAT":       "logging.format",
		"HEXAGON_SCRIPTS":          "scripts.paths",
		"HEXAGON_SCRIPTS_WATCH":    "scripts.watch",
		"HEXAGON_CALLBACK_TIMEOUT": "scripts.callback_timeout",
		"HEXAGON_REDIS_ENABLED":    "relay.redis.enabled",
		"HEXAGON_REDIS_ADDR":       "relay.redis.addr",
		"HEXAGON_REDIS_PASSWORD":   "relay.redis.password",
		"HEXAGON_REDIS_DB":         "relay.redis.db",
		"HEXAGON_REDIS_CHANNEL":    "relay.redis.channel",
		"HEXAGON_REDIS_FORWARD":    "relay.redis.forward",
		"HEXAGON_POSTGRES_ENABLED": "relay.postgres.enabled",
		"HEXAGON_POSTGRES_DSN":     "relay.postgres.dsn",
		"HEXAGON_POSTGRES_CHANNEL": "relay.postgres.channel",
		"HEXAGON_POSTGRES_FORWARD": "relay.postgres.forward",
	}
}

// Load resolves defaults, the file at path (skipped when path is empty) and
// the environment. A missing file is an error only when path is non-empty.
func Load(path string) (*Config, error) {
	var sources []loader.Loader
	if path != "" {
		fl, err := loader.ForPath(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, requireFile{fl})
	}
	sources = append(sources, loader.NewEnvLoader(EnvMapping()))
	return LoadFrom(sources...)
}

// LoadFrom applies sources over the defaults in order.
func LoadFrom(sources ...loader.Loader) (*Config, error) {
	merged := make(map[string]any)
	for _, src := range sources {
		m, err := src.Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, m)
	}

	cfg := Default()
	if len(merged) == 0 {
		return cfg, nil
	}
	if err := decode(merged, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays a generic map onto cfg. Unknown settings are rejected.
func decode(m map[string]any, cfg *Config) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding merged config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// requireFile turns a missing file into an error.
type requireFile struct {
	*loader.FileLoader
}

func (r requireFile) Load() (map[string]any, error) {
	m, err := r.FileLoader.Load()
	if err == nil && m == nil {
		return nil, fmt.Errorf("config file %s: %w", r.Path(), errNotExist)
	}
	return m, err
}

var errNotExist = errors.New("file does not exist")

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := route.ParseDelivery(c.Router.Delivery); err != nil {
		invalid("router.delivery", "%v", err)
	}
	if _, err := loop.ParseKind(c.Router.LoopKind); err != nil {
		invalid("router.loop_kind", "%v", err)
	}
	if c.Router.Loops < 0 {
		invalid("router.loops", "must not be negative, got %d", c.Router.Loops)
	}
	switch c.Router.Codec {
	case "", "none", "osc":
	default:
		invalid("router.codec", "unknown codec %q", c.Router.Codec)
	}

	if err := c.Logging.Validate(); err != nil {
		invalid("logging", "%v", err)
	}

	if c.Scripts.ReloadDelay < 0 {
		invalid("scripts.reload_delay", "must not be negative")
	}
	if c.Scripts.CallbackTimeout < 0 {
		invalid("scripts.callback_timeout", "must not be negative")
	}

	if r := c.Relay.Redis; r.Enabled {
		if r.Addr == "" {
			invalid("relay.redis.addr", "required when the redis relay is enabled")
		}
		validatePatterns("relay.redis.forward", r.Forward, invalid)
	}
	if p := c.Relay.Postgres; p.Enabled {
		if p.DSN == "" {
			invalid("relay.postgres.dsn", "required when the postgres relay is enabled")
		}
		validatePatterns("relay.postgres.forward", p.Forward, invalid)
	}

	return errors.Join(errs...)
}

func validatePatterns(path string, patterns []string, invalid func(string, string, ...any)) {
	for _, p := range patterns {
		if _, err := address.Compile(p); err != nil {
			invalid(path, "%v", err)
		}
	}
}
