// Package main is the entry point for the hexagon router daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ales-tsurko/hexagon/internal/config"
	"github.com/ales-tsurko/hexagon/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// shutdownTimeout bounds how long loops and relays get to finish.
const shutdownTimeout = 5 * time.Second

// options holds command line settings. Only flags given explicitly override
// the configuration file and environment.
type options struct {
	configPath string
	scripts    stringList
	logLevel   string
	logFormat  string
	delivery   string
	loops      int
	loopKind   string
	codec      string
	watch      bool
	exitOnEOF  bool
	set        map[string]bool
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return 1
	}

	err = d.run(ctx, os.Stdin, opts.exitOnEOF)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := d.close(closeCtx); cerr != nil {
		logger.Warn("shutdown", zap.Error(cerr))
	}

	if err != nil && !errors.Is(err, errEndOfInput) && !errors.Is(err, context.Canceled) {
		logger.Error("exited", zap.Error(err))
		return 1
	}
	return 0
}

// run starts the relays, script watcher and input reader and waits until
// one fails, the input ends with exitOnEOF set or ctx is cancelled.
func (d *daemon) run(ctx context.Context, input io.Reader, exitOnEOF bool) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range d.relays {
		g.Go(func() error {
			if err := r.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return nil
		})
	}
	if d.watcher != nil {
		g.Go(func() error {
			return d.watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		err := d.readInput(gctx, input)
		if errors.Is(err, errEndOfInput) && !exitOnEOF {
			<-gctx.Done()
			return nil
		}
		return err
	})

	d.logger.Info("hexagon running",
		zap.String("version", version),
		zap.Stringer("delivery", d.router.Delivery()),
		zap.Int("loops", len(d.router.Loops())),
		zap.Int("relays", len(d.relays)),
	)
	return g.Wait()
}

func parseFlags() options {
	opts := options{set: make(map[string]bool)}
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (.toml, .yaml)")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.Var(&opts.scripts, "script", "Lua script to load (repeatable)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFormat, "log-format", "console", "Log format (console, json)")
	flag.StringVar(&opts.delivery, "delivery", "direct", "Delivery mode (direct, queued)")
	flag.IntVar(&opts.loops, "loops", 1, "Number of event loops in queued mode")
	flag.StringVar(&opts.loopKind, "loop-kind", "task", "Event loop kind (task, thread)")
	flag.StringVar(&opts.codec, "codec", "none", "Payload codec (none, osc)")
	flag.BoolVar(&opts.watch, "watch", false, "Reload scripts when they change")
	flag.BoolVar(&opts.exitOnEOF, "exit-on-eof", false, "Exit when standard input ends")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hexagon - OSC address pattern router\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hexagon [options]\n\n")
		fmt.Fprintf(os.Stderr, "Reads \"address payload\" lines from standard input and routes them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hexagon -script synth.lua                 Route stdin to a Lua script\n")
		fmt.Fprintf(os.Stderr, "  hexagon -c hexagon.toml -watch            Use a config file, reload scripts\n")
		fmt.Fprintf(os.Stderr, "  hexagon -delivery queued -loops 4         Deliver on four event loops\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("hexagon %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	flag.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts
}

// apply overrides cfg with explicitly given flags.
func (o options) apply(cfg *config.Config) {
	if len(o.scripts) > 0 {
		cfg.Scripts.Paths = append(cfg.Scripts.Paths, o.scripts...)
	}
	if o.set["log-level"] {
		cfg.Logging.Level = o.logLevel
	}
	if o.set["log-format"] {
		cfg.Logging.Format = o.logFormat
	}
	if o.set["delivery"] {
		cfg.Router.Delivery = o.delivery
	}
	if o.set["loops"] {
		cfg.Router.Loops = o.loops
	}
	if o.set["loop-kind"] {
		cfg.Router.LoopKind = o.loopKind
	}
	if o.set["codec"] {
		cfg.Router.Codec = o.codec
	}
	if o.set["watch"] {
		cfg.Scripts.Watch = o.watch
	}
}
