package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/route"
)

// DefaultCallbackTimeout bounds a single Lua callback invocation.
const DefaultCallbackTimeout = 5 * time.Second

// Router is the part of a route.Router a host drives.
type Router interface {
	Listen(pattern string, cb route.Callback) error
	Unlisten(pattern string)
	Send(ctx context.Context, msg route.Message) error
	SendTo(ctx context.Context, event string, v any) error
}

// source is a loaded script, replayed in order on Reload.
type source struct {
	name string
	path string // empty for chunks loaded from strings
	code string
}

// outgoing is a send requested from Lua, routed once the state is unlocked.
type outgoing struct {
	msg   route.Message
	event string // single-target send when non-empty
	value any
}

// Host runs Lua scripts against a router.
// A Host is safe for concurrent use; calls into Lua are serialized.
type Host struct {
	router  Router
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	L        *lua.LState
	gen      uint64
	sources  []source
	patterns map[string]struct{}
	outbox   []outgoing
	closed   bool
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger used for hexagon.log and host diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCallbackTimeout bounds each Lua callback invocation and each run of a
// script's top-level chunk during load or reload.
// Zero disables the bound. Lua code is interrupted only between instructions.
func WithCallbackTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.timeout = d
	}
}

// NewHost creates a host with a fresh sandboxed Lua state bound to r.
func NewHost(r Router, opts ...Option) *Host {
	h := &Host{
		router:   r,
		logger:   zap.NewNop(),
		timeout:  DefaultCallbackTimeout,
		patterns: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.L = h.newState()
	return h
}

// newState creates a sandboxed Lua state with the hexagon module installed.
func (h *Host) newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("hexagon", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"listen":   h.luaListen,
		"unlisten": h.luaUnlisten,
		"send":     h.luaSend,
		"emit":     h.luaEmit,
		"log":      h.luaLog,
	}))
	return L
}

// LoadFile runs the script at path and remembers it for Reload.
func (h *Host) LoadFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	code, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	return h.load(source{name: abs, path: abs, code: string(code)})
}

// LoadString runs code as a chunk called name and remembers it for Reload.
func (h *Host) LoadString(name, code string) error {
	return h.load(source{name: name, code: code})
}

func (h *Host) load(src source) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	err := h.run(src)
	if err == nil {
		h.remember(src)
	}
	out := h.takeOutbox()
	h.mu.Unlock()

	h.flush(context.Background(), out)
	return err
}

// remember records src, replacing an earlier source with the same name.
func (h *Host) remember(src source) {
	for i := range h.sources {
		if h.sources[i].name == src.name {
			h.sources[i] = src
			return
		}
	}
	h.sources = append(h.sources, src)
}

// run executes a chunk. The caller must hold h.mu.
func (h *Host) run(src source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ScriptError{Name: src.name, Err: fmt.Errorf("lua panic: %v", r)}
		}
	}()

	fn, err := h.L.Load(strings.NewReader(src.code), src.name)
	if err != nil {
		return &ScriptError{Name: src.name, Err: err}
	}
	if h.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		h.L.SetContext(ctx)
		defer h.L.RemoveContext()
	}
	if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return &ScriptError{Name: src.name, Err: err}
	}
	return nil
}

// Reload discards the Lua state, removes every listener registered by
// scripts and runs all remembered scripts again in load order. Files are
// re-read from disk. Errors from individual scripts are joined; the other
// scripts still load.
func (h *Host) Reload() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}

	h.unlistenAll()
	h.L.Close()
	h.L = h.newState()
	h.gen++
	h.outbox = nil

	var errs []error
	for i, src := range h.sources {
		if src.path != "" {
			code, err := os.ReadFile(src.path)
			if err != nil {
				errs = append(errs, &ScriptError{Name: src.name, Err: err})
				continue
			}
			src.code = string(code)
			h.sources[i] = src
		}
		if err := h.run(src); err != nil {
			errs = append(errs, err)
		}
	}
	out := h.takeOutbox()
	h.mu.Unlock()

	h.logger.Info("scripts reloaded", zap.Int("scripts", len(h.sources)), zap.Int("errors", len(errs)))
	h.flush(context.Background(), out)
	return errors.Join(errs...)
}

// Files returns the paths of loaded script files.
func (h *Host) Files() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var files []string
	for _, src := range h.sources {
		if src.path != "" {
			files = append(files, src.path)
		}
	}
	return files
}

// Patterns returns the patterns currently registered by scripts, sorted.
func (h *Host) Patterns() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.patterns))
	for p := range h.patterns {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close unregisters every script listener and releases the Lua state.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.unlistenAll()
	h.L.Close()
	h.closed = true
	h.outbox = nil
	return nil
}

// unlistenAll removes every router registration made by scripts.
// The caller must hold h.mu.
func (h *Host) unlistenAll() {
	for p := range h.patterns {
		h.router.Unlisten(p)
	}
	clear(h.patterns)
}

// takeOutbox returns and clears pending sends. The caller must hold h.mu.
func (h *Host) takeOutbox() []outgoing {
	out := h.outbox
	h.outbox = nil
	return out
}

// flush routes sends queued by Lua. It must be called without h.mu held
// because delivery may re-enter the host.
func (h *Host) flush(ctx context.Context, out []outgoing) {
	for _, o := range out {
		var err error
		if o.event != "" {
			err = h.router.SendTo(ctx, o.event, o.value)
		} else {
			err = h.router.Send(ctx, o.msg)
		}
		if err != nil {
			h.logger.Warn("script send failed",
				zap.String("address", o.target()),
				zap.Error(err),
			)
		}
	}
}

func (o outgoing) target() string {
	if o.event != "" {
		return o.event
	}
	return string(o.msg.Address)
}
