package script

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.lua")
	writeScript(t, path, `hexagon.listen("/before", function() end)`)

	h, _ := newTestHost(t)
	if err := h.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	reloaded := make(chan error, 4)
	w, err := NewWatcher(h,
		WithReloadDelay(20*time.Millisecond),
		WithReloadHook(func(err error) { reloaded <- err }),
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeScript(t, path, `hexagon.listen("/after", function() end)`)

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("script was not reloaded")
	}

	if got := h.Patterns(); len(got) != 1 || got[0] != "/after" {
		t.Errorf("Patterns() = %v, want [/after]", got)
	}
	if w.Reloads() == 0 {
		t.Error("Reloads() = 0")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.lua")
	writeScript(t, path, `hexagon.listen("/a", function() end)`)

	h, _ := newTestHost(t)
	if err := h.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan error, 1)
	w, err := NewWatcher(h,
		WithReloadDelay(10*time.Millisecond),
		WithReloadHook(func(err error) { reloaded <- err }),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeScript(t, filepath.Join(dir, "notes.txt"), "unrelated")

	select {
	case <-reloaded:
		t.Error("reloaded after an unrelated file changed")
	case <-time.After(100 * time.Millisecond):
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWatcher_CloseStopsRun(t *testing.T) {
	h, _ := newTestHost(t)
	w, err := NewWatcher(h)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	w.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Close()")
	}
}
