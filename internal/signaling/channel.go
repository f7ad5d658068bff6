package signaling

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcall/internal/util"
)

const (
	// CloseReason accompanies the normal-closure frame sent by Disconnect.
	CloseReason = "User calls websocket disconnect"

	// Default timeouts applied when Options leaves them zero.
	DefaultDialTimeout  = 10 * time.Second
	DefaultCloseTimeout = 5 * time.Second

	writeWait = time.Second
)

// Options tunes a Channel. The zero value dials with gorilla's default
// dialer and the default timeouts.
type Options struct {
	Dialer       Dialer
	Header       http.Header
	DialTimeout  time.Duration
	CloseTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = WebSocketDialer{}
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	return o
}

// Channel owns at most one WebSocket to a fixed URL. Socket events update
// the ConnectionState and are forwarded to a single Listener.
type Channel struct {
	url      string
	opts     Options
	listener Listener

	mu     sync.Mutex
	state  ConnectionState
	sock   Socket
	failed bool   // sock hit a read failure and is no longer usable
	gen    uint64 // bumped by every Connect / Cancel to invalidate stale dials

	writeMu sync.Mutex
}

// NewChannel creates a disconnected Channel. listener may be nil.
func NewChannel(url string, listener Listener, opts Options) *Channel {
	if listener == nil {
		listener = NopListener{}
	}
	return &Channel{
		url:      url,
		opts:     opts.withDefaults(),
		listener: listener,
		state:    Disconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts dialing when the channel is Disconnected and returns
// Connecting. In any other state it returns the current state and does
// nothing. The dial itself runs in the background; its outcome is reported
// through OnOpen or OnFailure.
func (c *Channel) Connect(ctx context.Context) ConnectionState {
	c.mu.Lock()
	if c.state != Disconnected {
		state := c.state
		c.mu.Unlock()
		util.LogDebug("websocket is %s, ignoring connect to %s", state, c.url)
		return state
	}
	c.state = Connecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	util.LogDebug("connect url: %s", c.url)
	go c.dial(ctx, gen)
	return Connecting
}

// dial opens the socket and, on success, runs the read loop until the
// socket ends.
func (c *Channel) dial(ctx context.Context, gen uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	sock, resp, err := c.opts.Dialer.Dial(dialCtx, c.url, c.opts.Header)
	cancel()

	if err != nil {
		c.mu.Lock()
		current := c.gen == gen
		if current {
			c.state = Disconnected
		}
		c.mu.Unlock()

		if current {
			util.LogWarning("websocket dial failed: %v", err)
			c.listener.OnFailure(&TransportError{Op: "dial", Err: err}, resp)
		}
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != Connecting {
		// Cancelled while dialing.
		c.mu.Unlock()
		sock.Close()
		return
	}
	c.sock = sock
	c.state = Connected
	c.mu.Unlock()

	util.LogDebug("websocket connected: %s", c.url)
	c.listener.OnOpen(resp)

	c.readLoop(sock)
}

// readLoop forwards inbound frames to the listener in receive order.
func (c *Channel) readLoop(sock Socket) {
	for {
		typ, data, err := sock.ReadMessage()
		if err != nil {
			c.handleReadError(sock, err)
			return
		}

		util.Stats.AddRecv()
		switch typ {
		case websocket.TextMessage:
			util.LogTrace("message: %s", data)
			c.listener.OnText(string(data))
		case websocket.BinaryMessage:
			util.LogTrace("message: %d bytes", len(data))
			c.listener.OnBinary(data)
		}
	}
}

func (c *Channel) handleReadError(sock Socket, err error) {
	c.mu.Lock()
	if c.sock != sock {
		// Already released by Cancel or a close timeout.
		c.mu.Unlock()
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.state = Disconnecting
		c.mu.Unlock()

		util.LogDebug("connection closing, reason: %q (%d)", closeErr.Text, closeErr.Code)
		c.listener.OnClosing(closeErr.Code, closeErr.Text)
		c.release(sock, closeErr.Code, closeErr.Text)
		return
	}

	c.failed = true
	c.mu.Unlock()

	util.LogWarning("websocket failed: %v", err)
	c.listener.OnFailure(&TransportError{Op: "read", Err: err}, nil)
}

// release drops sock if it is still the active socket, closes it and
// reports OnClosed.
func (c *Channel) release(sock Socket, code int, reason string) {
	c.mu.Lock()
	if c.sock != sock {
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.failed = false
	c.state = Disconnected
	c.mu.Unlock()

	sock.Close()
	util.LogDebug("connection closed, reason: %q (%d)", reason, code)
	c.listener.OnClosed(code, reason)
}

// SendText writes a text frame. It fails with ErrNotConnected unless the
// channel is Connected.
func (c *Channel) SendText(text string) error {
	return c.send(websocket.TextMessage, []byte(text))
}

// SendBinary writes a binary frame. It fails with ErrNotConnected unless
// the channel is Connected.
func (c *Channel) SendBinary(data []byte) error {
	return c.send(websocket.BinaryMessage, data)
}

func (c *Channel) send(typ int, data []byte) error {
	c.mu.Lock()
	sock, state := c.sock, c.state
	c.mu.Unlock()

	if sock == nil || state != Connected {
		err := &TransportError{Op: "send", Err: ErrNotConnected}
		c.listener.OnFailure(err, nil)
		return err
	}

	c.writeMu.Lock()
	err := sock.WriteMessage(typ, data)
	c.writeMu.Unlock()

	if err != nil {
		tErr := &TransportError{Op: "send", Err: err}
		c.listener.OnFailure(tErr, nil)
		return tErr
	}

	util.Stats.AddSent()
	return nil
}

// Disconnect requests a normal closure (1000, CloseReason) and returns
// without waiting for the peer's close frame. If the peer does not answer
// within CloseTimeout the socket is closed anyway. A socket that already
// failed is released immediately.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	sock, failed := c.sock, c.failed
	c.mu.Unlock()

	if sock == nil {
		return &TransportError{Op: "disconnect", Err: ErrNotConnected}
	}
	if failed {
		c.release(sock, websocket.CloseAbnormalClosure, "connection failed")
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, CloseReason)
	if err := sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.release(sock, websocket.CloseAbnormalClosure, err.Error())
		return &TransportError{Op: "disconnect", Err: err}
	}

	time.AfterFunc(c.opts.CloseTimeout, func() {
		c.release(sock, websocket.CloseAbnormalClosure, "close handshake timed out")
	})
	return nil
}

// Cancel closes the socket immediately without a close handshake and
// abandons any dial in progress.
func (c *Channel) Cancel() {
	c.mu.Lock()
	c.gen++
	sock := c.sock
	c.sock = nil
	c.failed = false
	c.state = Disconnected
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
		c.listener.OnClosed(websocket.CloseAbnormalClosure, "canceled")
	}
}
