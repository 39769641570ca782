package script

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultReloadDelay coalesces bursts of file events into one reload.
const DefaultReloadDelay = 100 * time.Millisecond

// Watcher reloads a Host when one of its script files changes.
type Watcher struct {
	host     *Host
	fsw      *fsnotify.Watcher
	logger   *zap.Logger
	delay    time.Duration
	onReload func(error)

	files   map[string]bool
	reloads atomic.Uint64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithReloadDelay sets how long the watcher waits for further changes
// before reloading.
func WithReloadDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithReloadHook sets a function called with the result of every reload.
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher watches the script files currently loaded in h.
// Directories are watched rather than files so that editors replacing a file
// by rename are noticed.
func NewWatcher(h *Host, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		host:   h,
		fsw:    fsw,
		logger: zap.NewNop(),
		delay:  DefaultReloadDelay,
		files:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	dirs := make(map[string]bool)
	for _, f := range h.Files() {
		w.files[filepath.Clean(f)] = true
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("script changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			err := w.host.Reload()
			w.reloads.Add(1)
			if err != nil {
				w.logger.Error("script reload failed", zap.Error(err))
			}
			if w.onReload != nil {
				w.onReload(err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("script watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether ev modifies a watched script.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !w.files[filepath.Clean(ev.Name)] {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

// Reloads returns the number of reloads performed.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Close stops watching. Run returns once Close has been called.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
