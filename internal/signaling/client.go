package signaling

import (
	"context"
	"net/http"

	"github.com/1ureka/rtcall/internal/pubsub"
	"github.com/1ureka/rtcall/internal/util"
)

// DefaultReplay is the number of recent messages replayed to a late
// Messages subscriber.
const DefaultReplay = 1

// ClientOptions tunes a Client.
type ClientOptions struct {
	Options

	// Replay is the size of the message stream's replay window. Zero means
	// DefaultReplay; a negative value disables replay.
	Replay int
}

// Client is the signaling endpoint used by a call. It connects eagerly at
// construction, passes sends through to its Channel, and republishes every
// inbound text frame on an ordered message stream.
//
// An optional Listener sees every Channel event first, synchronously on the
// read goroutine; text frames are published to the stream right after, so a
// stream subscriber never observes a message before the listener does.
type Client struct {
	ch       *Channel
	listener Listener
	messages *pubsub.Broadcast[string]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a Client for url and starts connecting in the
// background. listener may be nil.
func NewClient(ctx context.Context, url string, listener Listener, opts ClientOptions) *Client {
	replay := opts.Replay
	switch {
	case replay == 0:
		replay = DefaultReplay
	case replay < 0:
		replay = 0
	}
	if listener == nil {
		listener = NopListener{}
	}

	cCtx, cCancel := context.WithCancel(ctx)
	c := &Client{
		listener: listener,
		messages: pubsub.NewBroadcast[string](replay),
		ctx:      cCtx,
		cancel:   cCancel,
	}
	c.ch = NewChannel(url, clientListener{c}, opts.Options)
	c.ch.Connect(cCtx)
	return c
}

// State returns the underlying channel's connection state.
func (c *Client) State() ConnectionState { return c.ch.State() }

// Messages subscribes to inbound text messages. Each call returns an
// independent subscription; cancel it when done.
func (c *Client) Messages() *pubsub.Subscription[string] {
	return c.messages.Subscribe()
}

// SendText passes a text frame through to the channel.
func (c *Client) SendText(text string) error {
	util.LogDebug("[Message(String)] %s", text)
	return c.ch.SendText(text)
}

// SendBinary passes a binary frame through to the channel.
func (c *Client) SendBinary(data []byte) error {
	util.LogDebug("[Message(ByteString)] %d bytes", len(data))
	return c.ch.SendBinary(data)
}

// Disconnect performs a graceful close of the underlying channel.
func (c *Client) Disconnect() error {
	return c.ch.Disconnect()
}

// Dispose aborts the connection immediately and ends the message stream.
// Safe to call multiple times.
func (c *Client) Dispose() {
	c.cancel()
	c.ch.Cancel()
	c.messages.Close()
}

// clientListener fans channel events out to the external listener and the
// message stream.
type clientListener struct {
	c *Client
}

func (l clientListener) OnOpen(resp *http.Response) {
	util.LogDebug("signaling connected")
	l.c.listener.OnOpen(resp)
}

func (l clientListener) OnText(text string) {
	l.c.listener.OnText(text)
	l.c.messages.Publish(text)
}

func (l clientListener) OnBinary(data []byte) {
	l.c.listener.OnBinary(data)
}

func (l clientListener) OnClosing(code int, reason string) {
	l.c.listener.OnClosing(code, reason)
}

func (l clientListener) OnClosed(code int, reason string) {
	l.c.listener.OnClosed(code, reason)
}

func (l clientListener) OnFailure(err error, resp *http.Response) {
	util.LogDebug("signaling failure: %v", err)
	l.c.listener.OnFailure(err, resp)
}
