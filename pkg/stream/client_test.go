package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var errDialRefused = errors.New("dial refused")

// fakeConn feeds scripted frames to the client's read loop.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.frames:
		return 1, frame, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer scripts dial outcomes per attempt and records headers.
type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	headers  []http.Header
	dial     func(attempt int) (Conn, error)
	started  chan int
}

func newFakeDialer(dial func(attempt int) (Conn, error)) *fakeDialer {
	return &fakeDialer{dial: dial, started: make(chan int, 32)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	d.headers = append(d.headers, header.Clone())
	d.mu.Unlock()
	d.started <- n
	return d.dial(n)
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestClient_TerminalDisconnectAfterMaxAttempts(t *testing.T) {
	dialer := newFakeDialer(func(int) (Conn, error) { return nil, errDialRefused })
	client := NewClient(Options{
		URL:         "ws://test/ws",
		Dialer:      dialer,
		BaseDelay:   time.Millisecond,
		MaxAttempts: 3,
	})

	var mu sync.Mutex
	fired := 0
	done := make(chan struct{})
	client.OnDisconnect(func() {
		mu.Lock()
		fired++
		mu.Unlock()
		close(done)
	})

	client.Connect(context.Background())
	waitFor(t, done, "terminal disconnect")

	if got := dialer.attemptCount(); got != 3 {
		t.Errorf("dial attempts = %d, want 3", got)
	}
	if client.IsConnected() {
		t.Error("client should not report connected after giving up")
	}

	// No further attempts or signals after the terminal disconnect.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.attemptCount(); got != 3 {
		t.Errorf("dial attempts after terminal = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("disconnect fired %d times, want exactly 1", fired)
	}
}

func TestClient_DispatchOrderAndFiltering(t *testing.T) {
	selfID := uuid.New()
	otherID := uuid.New()
	conn := newFakeConn()
	dialer := newFakeDialer(func(int) (Conn, error) { return conn, nil })

	client := NewClient(Options{
		URL:       "ws://test/ws",
		Dialer:    dialer,
		UserID:    selfID,
		BaseDelay: time.Millisecond,
	})

	received := make(chan Event, 16)
	client.OnEvent(func(ev Event) { received <- ev })
	client.Connect(context.Background())
	defer client.Disconnect()

	conn.frames <- []byte(fmt.Sprintf(`{"type":"message:new","actor":%q,"data":{"n":1}}`, otherID))
	conn.frames <- []byte(`{broken json`)
	conn.frames <- []byte(`"just a string"`)
	conn.frames <- []byte(fmt.Sprintf(`{"type":"reaction:added","actor":%q}`, selfID))
	conn.frames <- []byte(fmt.Sprintf(`{"type":"conversation:read","actor":%q}`, otherID))

	first := <-received
	if first.Type != "message:new" {
		t.Errorf("first event = %q, want message:new", first.Type)
	}
	second := <-received
	if second.Type != "conversation:read" {
		t.Errorf("second event = %q, want conversation:read (malformed and self-origin frames dropped)", second.Type)
	}

	select {
	case ev := <-received:
		t.Errorf("unexpected extra event %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(func(int) (Conn, error) { return conn, nil })

	client := NewClient(Options{URL: "ws://test/ws", Dialer: dialer})
	client.Connect(context.Background())
	defer client.Disconnect()

	select {
	case <-dialer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
	}

	client.Connect(context.Background())
	client.Connect(context.Background())

	time.Sleep(50 * time.Millisecond)
	if got := dialer.attemptCount(); got != 1 {
		t.Errorf("dial attempts = %d, want 1 (Connect while connected must be a no-op)", got)
	}
	if !client.IsConnected() {
		t.Error("client should report connected")
	}
}

func TestClient_DisconnectCancelsPendingReconnect(t *testing.T) {
	dialer := newFakeDialer(func(int) (Conn, error) { return nil, errDialRefused })
	client := NewClient(Options{
		URL:    "ws://test/ws",
		Dialer: dialer,
		// Long enough that the retry timer is guaranteed pending.
		BaseDelay:   time.Minute,
		MaxAttempts: 5,
	})

	disconnected := make(chan struct{}, 4)
	client.OnDisconnect(func() { disconnected <- struct{}{} })

	client.Connect(context.Background())
	select {
	case <-dialer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first dial")
	}

	start := time.Now()
	client.Disconnect()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Disconnect took %v, should cancel the pending retry immediately", elapsed)
	}
	waitFor(t, disconnected, "disconnect signal")

	if got := dialer.attemptCount(); got != 1 {
		t.Errorf("dial attempts = %d, want 1", got)
	}

	// The client is reusable after an explicit disconnect.
	client.Connect(context.Background())
	select {
	case <-dialer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial after reconnect")
	}
	client.Disconnect()
}

func TestClient_FreshTokenPerDial(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(func(attempt int) (Conn, error) {
		if attempt == 1 {
			return nil, errDialRefused
		}
		return conn, nil
	})

	var mu sync.Mutex
	issued := 0
	client := NewClient(Options{
		URL:    "ws://test/ws",
		Dialer: dialer,
		Tokens: TokenFunc(func(context.Context) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			issued++
			return fmt.Sprintf("tok-%d", issued), nil
		}),
		BaseDelay:   time.Millisecond,
		MaxAttempts: 5,
	})

	client.Connect(context.Background())
	defer client.Disconnect()

	// Wait for the second dial (first fails, second succeeds).
	for i := 0; i < 2; i++ {
		select {
		case <-dialer.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for dial %d", i+1)
		}
	}

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if got := dialer.headers[0].Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("first dial auth = %q, want %q", got, "Bearer tok-1")
	}
	if got := dialer.headers[1].Get("Authorization"); got != "Bearer tok-2" {
		t.Errorf("second dial auth = %q, want %q (token must be refreshed per attempt)", got, "Bearer tok-2")
	}
}

func TestClient_ReconnectAfterDrop(t *testing.T) {
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	dialer := newFakeDialer(func(attempt int) (Conn, error) {
		if attempt > len(conns) {
			return nil, errDialRefused
		}
		return conns[attempt-1], nil
	})

	client := NewClient(Options{
		URL:         "ws://test/ws",
		Dialer:      dialer,
		BaseDelay:   time.Millisecond,
		MaxAttempts: 3,
	})

	received := make(chan Event, 4)
	client.OnEvent(func(ev Event) { received <- ev })
	client.Connect(context.Background())
	defer client.Disconnect()

	conns[0].frames <- []byte(fmt.Sprintf(`{"type":"message:new","actor":%q}`, uuid.New()))
	<-received

	// Drop the first connection; the client should redial and resume
	// delivering from the replacement.
	conns[0].Close()
	select {
	case <-dialer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redial")
	}
	select {
	case <-dialer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redial")
	}

	conns[1].frames <- []byte(fmt.Sprintf(`{"type":"message:edited","actor":%q}`, uuid.New()))
	select {
	case ev := <-received:
		if ev.Type != "message:edited" {
			t.Errorf("post-reconnect event = %q, want message:edited", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event after reconnect")
	}
}

func TestClient_PacedRedialAfterDrop(t *testing.T) {
	const baseDelay = 100 * time.Millisecond

	// Every dial succeeds with a connection that is already closed,
	// simulating a server that accepts and instantly hangs up.
	dialer := newFakeDialer(func(int) (Conn, error) {
		conn := newFakeConn()
		conn.Close()
		return conn, nil
	})

	client := NewClient(Options{
		URL:         "ws://test/ws",
		Dialer:      dialer,
		BaseDelay:   baseDelay,
		MaxAttempts: 5,
	})

	client.Connect(context.Background())
	defer client.Disconnect()

	select {
	case <-dialer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first dial")
	}

	first := time.Now()
	select {
	case <-dialer.started:
		if elapsed := time.Since(first); elapsed < baseDelay/2 {
			t.Errorf("redial after %v, want at least one base delay (%v)", elapsed, baseDelay)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second dial")
	}
}
