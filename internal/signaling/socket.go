package signaling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the subset of *websocket.Conn a Channel drives.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

var _ Socket = (*websocket.Conn)(nil)

// Dialer opens a Socket to a WebSocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, *http.Response, error)
}

// WebSocketDialer adapts a gorilla *websocket.Dialer to Dialer.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial connects to url and returns the connection.
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, *http.Response, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, resp, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, resp, nil
}
