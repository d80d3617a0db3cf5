package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBaseDelay   = 2 * time.Second
	defaultMaxAttempts = 5
)

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
)

// Options configures a Client. URL and Tokens are required; the rest
// have working defaults.
type Options struct {
	// URL of the push-event endpoint, e.g. wss://host/api/v1/ws.
	URL string

	// Tokens supplies the bearer credential for each dial.
	Tokens TokenSupplier

	// UserID is the authenticated user. Events whose actor matches are
	// suppressed: the client already applied its own mutations through
	// the REST responses.
	UserID uuid.UUID

	// BaseDelay scales the reconnect backoff: attempt n waits n*BaseDelay.
	BaseDelay time.Duration

	// MaxAttempts bounds consecutive failed dials before the client
	// gives up and signals a terminal disconnect.
	MaxAttempts int

	Dialer Dialer
	Logger *zap.Logger
}

// Client maintains one push-event connection, redialing with linear
// backoff when it drops. After MaxAttempts consecutive dial failures it
// stops and fires the disconnect callbacks exactly once; the caller
// decides whether to Connect again.
type Client struct {
	url         string
	tokens      TokenSupplier
	userID      uuid.UUID
	baseDelay   time.Duration
	maxAttempts int
	dialer      Dialer
	logger      *zap.Logger

	mu           sync.Mutex
	state        connState
	conn         Conn
	cancel       context.CancelFunc
	done         chan struct{}
	handlers     []Handler
	onDisconnect []func()
}

func NewClient(opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		url:         opts.URL,
		tokens:      opts.Tokens,
		userID:      opts.UserID,
		baseDelay:   opts.BaseDelay,
		maxAttempts: opts.MaxAttempts,
		dialer:      opts.Dialer,
		logger:      opts.Logger,
	}
}

// OnEvent registers a handler for incoming events. Handlers run on the
// read goroutine in delivery order; keep them fast or hand off.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// OnDisconnect registers a callback fired once when the client stops
// trying: either Disconnect was called or reconnection gave up.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// IsConnected reports whether a transport connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Connect starts the connection loop. It returns immediately; delivery
// begins once the dial succeeds. Calling Connect while the client is
// already connected or connecting is a no-op.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.state = stateConnecting
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(runCtx, done)
}

// Disconnect tears the connection down and cancels any pending
// reconnect. It blocks until the connection loop has stopped. The
// client can Connect again afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.fireDisconnect()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			failures++
			if failures >= c.maxAttempts {
				c.logger.Warn("giving up on stream connection",
					zap.Int("attempts", failures), zap.Error(err))
				return
			}
			delay := time.Duration(failures) * c.baseDelay
			c.logger.Debug("stream dial failed, retrying",
				zap.Int("attempt", failures), zap.Duration("delay", delay), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		failures = 0
		c.setConnected(conn)

		// Tie the connection's lifetime to the context: ReadMessage does
		// not observe cancellation, closing the conn unblocks it.
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()

		c.readLoop(conn)
		close(stop)
		c.setConnecting()

		// A successful open reset the attempt counter, but the redial
		// after a drop still waits one base delay: a server that accepts
		// and immediately closes must not induce a tight dial loop.
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.baseDelay):
		}
	}
}

// fireDisconnect moves the client back to idle and runs the disconnect
// callbacks. Deferred from run, so it fires exactly once per session.
func (c *Client) fireDisconnect() {
	c.mu.Lock()
	c.state = stateIdle
	c.conn = nil
	c.cancel = nil
	callbacks := make([]func(), len(c.onDisconnect))
	copy(callbacks, c.onDisconnect)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}
	return c.dialer.Dial(ctx, c.url, header)
}

func (c *Client) setConnected(conn Conn) {
	c.mu.Lock()
	c.state = stateConnected
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setConnecting() {
	c.mu.Lock()
	c.state = stateConnecting
	c.conn = nil
	c.mu.Unlock()
}

func (c *Client) readLoop(conn Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame and hands it to the handlers. Frames that
// do not decode are dropped; a bad message must not kill the stream.
func (c *Client) dispatch(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		c.logger.Debug("dropping undecodable frame", zap.Error(err))
		return
	}
	if ev.Actor != uuid.Nil && ev.Actor == c.userID {
		return
	}

	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
