// Package stream owns the client side of the push-event connection:
// one long-lived authenticated websocket per session, typed event
// dispatch, and bounded reconnection.
//
// Events are liveness hints, not state deltas. A handler should treat
// every event as "something changed, refetch the affected resource";
// the connection dropping therefore costs staleness, never corruption.
package stream

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is one typed notification received from the server. Actor is
// the user whose mutation produced the event.
type Event struct {
	Type  string          `json:"type"`
	Actor uuid.UUID       `json:"actor"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives events in the order the transport delivers them.
type Handler func(Event)

// TokenSupplier produces the bearer credential for a (re)connect
// attempt. It is called before every dial so reconnects never present
// an expired token.
type TokenSupplier interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to the TokenSupplier interface.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Conn is the read side of an established transport connection.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer establishes transport connections. Tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebSocketDialer is the production Dialer backed by gorilla/websocket.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{dialer: websocket.DefaultDialer}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
