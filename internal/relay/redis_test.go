package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ales-tsurko/hexagon/internal/route"
)

func newRedisClient(t *testing.T, s *miniredis.Miniredis) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// closeWithin closes r and fails the test if Close does not return in time.
func closeWithin(t *testing.T, r Relay, d time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(d):
		t.Fatalf("Close() did not return within %v", d)
	}
}

func TestRedisRelay_RoundTrip(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	local, remote := route.New(), route.New()
	out := NewRedisRelay(local, newRedisClient(t, s), WithChannel("studio"))
	in := NewRedisRelay(remote, newRedisClient(t, s), WithChannel("studio"))
	defer closeWithin(t, out, 2*time.Second)
	defer closeWithin(t, in, 2*time.Second)

	got := make(chan route.Message, 1)
	remote.ListenFunc("/synth/*/freq", func(ctx context.Context, payload []byte) error {
		msg, _ := route.MessageFromContext(ctx)
		got <- msg
		return nil
	})
	// The remote side forwards too; relayed messages must not bounce back.
	if err := in.Forward("/synth/*/*"); err != nil {
		t.Fatal(err)
	}
	if err := out.Forward("/synth/*/freq"); err != nil {
		t.Fatal(err)
	}
	if err := out.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := in.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := local.Send(ctx, route.NewMessage("/synth/1/freq", []byte("440"))); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-got:
		if msg.Address != "/synth/1/freq" || string(msg.Payload) != "440" || msg.Origin != out.Origin() {
			t.Errorf("received %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for relayed message")
	}

	waitFor(t, "own echoes", func() bool { return out.Stats().Dropped == 1 })
	if in.Stats().Published != 0 {
		t.Errorf("remote relay republished %d messages", in.Stats().Published)
	}
	if in.Stats().Received != 1 {
		t.Errorf("remote Received = %d, want 1", in.Stats().Received)
	}
}

func TestRedisRelay_StartTwice(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	rr := NewRedisRelay(route.New(), newRedisClient(t, s))
	if err := rr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := rr.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start() error = %v, want ErrStarted", err)
	}
	closeWithin(t, rr, 2*time.Second)
	closeWithin(t, rr, 2*time.Second)
	if err := rr.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close() error = %v, want ErrClosed", err)
	}
}

func TestRedisRelay_StopsWithContext(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rr := NewRedisRelay(route.New(), newRedisClient(t, s))
	if err := rr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-rr.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not exit after cancel")
	}
	closeWithin(t, rr, 2*time.Second)
}

func TestRedisRelay_CloseWhileIdle(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	r := route.New()
	rr := NewRedisRelay(r, newRedisClient(t, s))
	if err := rr.Forward("/a/*"); err != nil {
		t.Fatal(err)
	}
	if err := rr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Give the consumer time to block in a socket read.
	time.Sleep(50 * time.Millisecond)

	closeWithin(t, rr, 2*time.Second)
	if r.Registry().Len() != 0 {
		t.Error("forward not removed")
	}
}

func TestRedisRelay_CloseWhileRetrying(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	rr := NewRedisRelay(route.New(), newRedisClient(t, s))
	rr.retry = time.Hour
	if err := rr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Close()
	waitFor(t, "receive failure", func() bool { return rr.Stats().Errors > 0 })

	closeWithin(t, rr, 2*time.Second)
}

func TestBase_LaunchAfterClose(t *testing.T) {
	rr := NewRedisRelay(route.New(), nil)
	if _, err := rr.begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	closeWithin(t, rr, time.Second)
	if rr.launch() {
		t.Error("launch() = true after Close()")
	}
}

func TestRedisRelay_CloseWithoutStart(t *testing.T) {
	r := route.New()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	rr := NewRedisRelay(r, client)
	rr.Forward("/a")
	if err := rr.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if r.Registry().Len() != 0 {
		t.Error("forward not removed")
	}
}
