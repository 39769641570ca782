package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	lua "github.com/yuin/gopher-lua"

	"github.com/ales-tsurko/hexagon/internal/route"
)

// sink collects payloads delivered to a Go listener.
type sink struct {
	mu  sync.Mutex
	got []string
}

func (s *sink) Call(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, string(payload))
	return nil
}

func (s *sink) values() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func newTestHost(t *testing.T, opts ...Option) (*Host, *route.Router) {
	t.Helper()
	r := route.New()
	h := NewHost(r, opts...)
	t.Cleanup(func() { h.Close() })
	return h, r
}

func writeScript(t *testing.T, path, code string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestHost_ListenAndSend(t *testing.T) {
	h, r := newTestHost(t)
	out := &sink{}
	if err := r.Listen("/out/echo", out); err != nil {
		t.Fatal(err)
	}

	err := h.LoadString("echo", `
		hexagon.listen("/in/*", function(payload, pattern, address)
			hexagon.send("/out/echo", pattern .. ":" .. address .. ":" .. string.upper(payload))
		end)
	`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if got := h.Patterns(); len(got) != 1 || got[0] != "/in/*" {
		t.Errorf("Patterns() = %v, want [/in/*]", got)
	}

	if err := r.Send(context.Background(), route.NewMessage("/in/a", []byte("hi"))); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := out.values(); len(got) != 1 || got[0] != "/in/*:/in/a:HI" {
		t.Errorf("echo = %v, want [/in/*:/in/a:HI]", got)
	}
}

func TestHost_SendDuringLoad(t *testing.T) {
	h, r := newTestHost(t)
	out := &sink{}
	r.Listen("/boot", out)

	if err := h.LoadString("boot", `hexagon.send("/boot", "ready")`); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if got := out.values(); len(got) != 1 || got[0] != "ready" {
		t.Errorf("got %v, want [ready]", got)
	}
}

func TestHost_LuaToLuaDelivery(t *testing.T) {
	h, r := newTestHost(t)
	out := &sink{}
	r.Listen("/done", out)

	err := h.LoadString("chain", `
		hexagon.listen("/first", function(p) hexagon.send("/second", p .. "1") end)
		hexagon.listen("/second", function(p) hexagon.send("/done", p .. "2") end)
	`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	if err := r.Send(context.Background(), route.NewMessage("/first", []byte("x"))); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := out.values(); len(got) != 1 || got[0] != "x12" {
		t.Errorf("got %v, want [x12]", got)
	}
}

func TestHost_Emit(t *testing.T) {
	h, r := newTestHost(t)
	out := &sink{}
	r.Listen("/ui/level", out)

	err := h.LoadString("emit", `hexagon.emit("/ui/level", {channel = 2, db = -6, tags = {"a", "b"}})`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	got := out.values()
	if len(got) != 1 {
		t.Fatalf("listener invoked %d times, want 1", len(got))
	}
	var level struct {
		Channel int64    `msgpack:"channel"`
		DB      int64    `msgpack:"db"`
		Tags    []string `msgpack:"tags"`
	}
	if err := msgpack.Unmarshal([]byte(got[0]), &level); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if level.Channel != 2 || level.DB != -6 || len(level.Tags) != 2 || level.Tags[1] != "b" {
		t.Errorf("payload = %+v", level)
	}
}

func TestHost_CallbackError(t *testing.T) {
	h, r := newTestHost(t)
	if err := h.LoadString("fail", `hexagon.listen("/fail", function() error("nope") end)`); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	cb, ok := r.Registry().Snapshot().Lookup("/fail")
	if !ok {
		t.Fatal("callback not registered")
	}
	err := cb.Call(context.Background(), nil)
	var se *ScriptError
	if !errors.As(err, &se) || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Call() error = %v, want ScriptError mentioning nope", err)
	}

	// Through the router the error is counted, not returned.
	if err := r.Send(context.Background(), route.NewMessage("/fail", nil)); err != nil {
		t.Errorf("Send() error = %v", err)
	}
	if r.Stats().CallbackErrors != 1 {
		t.Errorf("CallbackErrors = %d, want 1", r.Stats().CallbackErrors)
	}
}

func TestHost_CallbackTimeout(t *testing.T) {
	h, r := newTestHost(t, WithCallbackTimeout(20*time.Millisecond))
	if err := h.LoadString("spin", `hexagon.listen("/spin", function() while true do end end)`); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	cb, _ := r.Registry().Snapshot().Lookup("/spin")

	done := make(chan error, 1)
	go func() { done <- cb.Call(context.Background(), nil) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Call() = nil, want timeout error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not interrupted")
	}
}

func TestHost_LoadTimeout(t *testing.T) {
	h, r := newTestHost(t, WithCallbackTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- h.LoadString("spin", `while true do end`) }()

	select {
	case err := <-done:
		var se *ScriptError
		if !errors.As(err, &se) || se.Name != "spin" {
			t.Errorf("LoadString() error = %v, want *ScriptError for spin", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("top-level chunk was not interrupted")
	}

	// The host stays usable after an interrupted chunk.
	if err := h.LoadString("ok", `hexagon.listen("/ok", function() end)`); err != nil {
		t.Fatalf("LoadString() after timeout error = %v", err)
	}
	if _, ok := r.Registry().Snapshot().Lookup("/ok"); !ok {
		t.Error("/ok not registered")
	}
}

func TestHost_Reload_Timeout(t *testing.T) {
	dir := t.TempDir()
	spin := filepath.Join(dir, "spin.lua")
	good := filepath.Join(dir, "good.lua")
	writeScript(t, spin, `hexagon.listen("/spin", function() end)`)
	writeScript(t, good, `hexagon.listen("/good", function() end)`)

	h, _ := newTestHost(t, WithCallbackTimeout(20*time.Millisecond))
	if err := h.LoadFile(spin); err != nil {
		t.Fatal(err)
	}
	if err := h.LoadFile(good); err != nil {
		t.Fatal(err)
	}

	writeScript(t, spin, `while true do end`)
	done := make(chan error, 1)
	go func() { done <- h.Reload() }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Reload() = nil, want timeout error from spin.lua")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reload() was not interrupted")
	}
	if got := h.Patterns(); len(got) != 1 || got[0] != "/good" {
		t.Errorf("Patterns() = %v, want [/good]", got)
	}
}

func TestHost_LoadErrors(t *testing.T) {
	h, _ := newTestHost(t)

	tests := []struct {
		name string
		code string
	}{
		{"syntax", `hexagon.listen(`},
		{"invalid pattern", `hexagon.listen("no-slash", function() end)`},
		{"invalid address", `hexagon.send("/a b", "x")`},
		{"runtime", `error("boom")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.LoadString(tt.name, tt.code)
			var se *ScriptError
			if !errors.As(err, &se) {
				t.Fatalf("LoadString() error = %v, want *ScriptError", err)
			}
			if se.Name != tt.name {
				t.Errorf("Name = %q, want %q", se.Name, tt.name)
			}
		})
	}
}

func TestHost_Sandbox(t *testing.T) {
	h, _ := newTestHost(t)
	err := h.LoadString("sandbox", `
		assert(os == nil, "os available")
		assert(io == nil, "io available")
		assert(debug == nil, "debug available")
		assert(dofile == nil and loadfile == nil and load == nil, "loaders available")
		assert(require == nil, "require available")
		assert(string.upper("a") == "A")
		assert(math.floor(1.5) == 1)
		assert(#table.concat({"a", "b"}) == 2)
	`)
	if err != nil {
		t.Errorf("sandbox check failed: %v", err)
	}
}

func TestHost_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.lua")
	writeScript(t, path, `hexagon.listen("/a", function() end)`)

	h, r := newTestHost(t)
	if err := h.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	old, ok := r.Registry().Snapshot().Lookup("/a")
	if !ok {
		t.Fatal("/a not registered")
	}

	writeScript(t, path, `hexagon.listen("/b", function() end)`)
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := h.Patterns(); len(got) != 1 || got[0] != "/b" {
		t.Errorf("Patterns() = %v, want [/b]", got)
	}
	if got := r.Registry().Patterns(); len(got) != 1 || got[0] != "/b" {
		t.Errorf("router patterns = %v, want [/b]", got)
	}
	if err := old.Call(context.Background(), nil); !errors.Is(err, ErrStaleCallback) {
		t.Errorf("stale Call() error = %v, want ErrStaleCallback", err)
	}
	if files := h.Files(); len(files) != 1 || files[0] != path {
		t.Errorf("Files() = %v, want [%s]", files, path)
	}
}

func TestHost_Reload_KeepsGoingOnError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.lua")
	good := filepath.Join(dir, "good.lua")
	writeScript(t, bad, `hexagon.listen("/bad", function() end)`)
	writeScript(t, good, `hexagon.listen("/good", function() end)`)

	h, _ := newTestHost(t)
	if err := h.LoadFile(bad); err != nil {
		t.Fatal(err)
	}
	if err := h.LoadFile(good); err != nil {
		t.Fatal(err)
	}

	writeScript(t, bad, `error("broken")`)
	err := h.Reload()
	if err == nil {
		t.Fatal("Reload() = nil, want error from bad.lua")
	}
	if got := h.Patterns(); len(got) != 1 || got[0] != "/good" {
		t.Errorf("Patterns() = %v, want [/good]", got)
	}
}

func TestHost_Unlisten(t *testing.T) {
	h, r := newTestHost(t)
	err := h.LoadString("u", `
		hexagon.listen("/a", function() end)
		hexagon.unlisten("/a")
		hexagon.unlisten("/never")
	`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if len(h.Patterns()) != 0 || r.Registry().Len() != 0 {
		t.Errorf("patterns left: host %v, router %v", h.Patterns(), r.Registry().Patterns())
	}
}

func TestHost_Close(t *testing.T) {
	r := route.New()
	h := NewHost(r)
	if err := h.LoadString("c", `hexagon.listen("/a", function() end)`); err != nil {
		t.Fatal(err)
	}
	cb, _ := r.Registry().Snapshot().Lookup("/a")

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if r.Registry().Len() != 0 {
		t.Errorf("router still has %v", r.Registry().Patterns())
	}
	if err := h.LoadString("late", ""); !errors.Is(err, ErrHostClosed) {
		t.Errorf("LoadString() after Close() error = %v, want ErrHostClosed", err)
	}
	if err := h.Reload(); !errors.Is(err, ErrHostClosed) {
		t.Errorf("Reload() after Close() error = %v, want ErrHostClosed", err)
	}
	if err := cb.Call(context.Background(), nil); !errors.Is(err, ErrHostClosed) {
		t.Errorf("Call() after Close() error = %v, want ErrHostClosed", err)
	}
}

func TestHost_ConcurrentCallbacks(t *testing.T) {
	r := route.New(route.WithDelivery(route.DeliveryQueued))
	h := NewHost(r)
	defer h.Close()

	out := &sink{}
	r.Listen("/count", out)
	err := h.LoadString("counter", `
		local n = 0
		hexagon.listen("/tick", function()
			n = n + 1
			hexagon.send("/count", tostring(n))
		end)
	`)
	if err != nil {
		t.Fatal(err)
	}

	r.StartAsync(nil)
	r.StartThread(nil)
	for i := 0; i < 100; i++ {
		r.Send(context.Background(), route.NewMessage("/tick", nil))
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(out.values()) < 100 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	r.Close(context.Background())

	got := out.values()
	if len(got) != 100 {
		t.Fatalf("got %d counts, want 100", len(got))
	}
	seen := make(map[string]bool)
	for _, v := range got {
		if seen[v] {
			t.Errorf("count %s delivered twice: Lua state was entered concurrently", v)
		}
		seen[v] = true
	}
}

func TestToGoValue(t *testing.T) {
	h, _ := newTestHost(t)
	if err := h.LoadString("v", `
		value = {1, 2.5, "x", true, nested = nil}
		mapping = {a = 1, b = {c = "d"}}
	`); err != nil {
		t.Fatal(err)
	}

	arr, ok := toGoValue(h.L.GetGlobal("value"), map[*lua.LTable]bool{}).([]any)
	if !ok || len(arr) != 4 {
		t.Fatalf("value = %#v, want 4-element slice", arr)
	}
	if arr[0] != int64(1) || arr[1] != 2.5 || arr[2] != "x" || arr[3] != true {
		t.Errorf("value = %#v", arr)
	}

	m, ok := toGoValue(h.L.GetGlobal("mapping"), map[*lua.LTable]bool{}).(map[string]any)
	if !ok || m["a"] != int64(1) {
		t.Fatalf("mapping = %#v", m)
	}
	if inner, ok := m["b"].(map[string]any); !ok || inner["c"] != "d" {
		t.Errorf("mapping.b = %#v", m["b"])
	}
}
