// Package app contains the top-level orchestration of a call for the caller
// and callee roles.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/media"
	"github.com/1ureka/rtcall/internal/negotiation"
	"github.com/1ureka/rtcall/internal/pubsub"
	"github.com/1ureka/rtcall/internal/rtc"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/util"
)

// Role is the side a Call plays in the offer/answer exchange.
type Role string

const (
	RoleCaller Role = "call"
	RoleCallee Role = "answer"
)

// ErrSignalingClosed is returned by Run when the signaling connection ends
// before a remote track arrives.
var ErrSignalingClosed = errors.New("signaling connection closed")

// Options configures a Call.
type Options struct {
	Role      Role
	SignalURL string
	Signaling signaling.ClientOptions
	Peer      rtc.Config

	// Local media to publish. Nil makes a receive-only call.
	Local *media.Local

	// NewPeer overrides how the peer connection is created.
	NewPeer func(rtc.Config) (rtc.PeerConnection, error)
}

// Call joins one signaling Client and one negotiation Coordinator.
//
//	inbound:  offer → SetOffer + Answer → SendAnswer
//	          answer → SetAnswer
//	          candidate → SetICECandidate
//	outbound: local candidate → SendCandidate
//	          (caller) socket open → Offer → SendOffer
type Call struct {
	role   Role
	coord  *negotiation.Coordinator
	remote chan rtc.Track

	// client is set once; ready is closed after that.
	client *signaling.Client
	ready  chan struct{}

	mu      sync.Mutex
	offered bool

	done      chan struct{}
	doneErr   error
	doneOnce  sync.Once
	closeOnce sync.Once
}

// NewCall creates the peer connection, starts local capture if media was
// given, and connects to the signaling server.
func NewCall(ctx context.Context, opts Options) (*Call, error) {
	switch opts.Role {
	case RoleCaller, RoleCallee:
	default:
		return nil, fmt.Errorf("invalid role %q", opts.Role)
	}

	newPeer := opts.NewPeer
	if newPeer == nil {
		newPeer = rtc.NewPeerConnection
	}
	pc, err := newPeer(opts.Peer)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c := &Call{
		role:   opts.Role,
		remote: make(chan rtc.Track, 1),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	c.coord = negotiation.New(ctx, pc, opts.Local, coordListener{c})
	if opts.Local != nil {
		if err := c.coord.StartCaptureLocalVideo(); err != nil {
			c.coord.Dispose()
			return nil, err
		}
	}
	go c.watchRemote(c.coord.RemoteVideo())

	c.client = signaling.NewClient(ctx, opts.SignalURL, signalListener{c: c}, opts.Signaling)
	close(c.ready)
	return c, nil
}

// signal returns the signaling client. The socket may open before NewCall
// has stored it, so callbacks wait here.
func (c *Call) signal() *signaling.Client {
	<-c.ready
	return c.client
}

// Coordinator exposes the call's negotiation state for inspection.
func (c *Call) Coordinator() *negotiation.Coordinator { return c.coord }

// Run blocks until the first remote video track arrives and returns it. It fails
// when ctx ends, when signaling closes or fails first, or when the local
// offer/answer cannot be produced.
func (c *Call) Run(ctx context.Context) (rtc.Track, error) {
	select {
	case track := <-c.remote:
		return track, nil
	case <-c.done:
		return nil, c.doneErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the call: the signaling socket is closed gracefully and then
// released, and the peer connection and local media are torn down. Safe to
// call multiple times.
func (c *Call) Close() {
	c.closeOnce.Do(func() {
		if err := c.signal().Disconnect(); err != nil && !errors.Is(err, signaling.ErrNotConnected) {
			util.LogDebug("signaling disconnect: %v", err)
		}
		c.signal().Dispose()
		c.coord.Dispose()
	})
}

// fail ends Run with err. Only the first call has an effect.
func (c *Call) fail(err error) {
	c.doneOnce.Do(func() {
		c.doneErr = err
		close(c.done)
	})
}

func (c *Call) watchRemote(sub *pubsub.Subscription[rtc.Track]) {
	for track := range sub.C() {
		select {
		case c.remote <- track:
		default:
			// Only the first track is handed to Run.
		}
	}
}

// ---------------------------------------------------------------------------
// Offer / answer
// ---------------------------------------------------------------------------

// offer starts an offer/answer exchange. The first offer is sent when the
// socket opens; later ones only renegotiate a completed exchange.
func (c *Call) offer(renegotiate bool) {
	if renegotiate {
		switch c.coord.State() {
		case negotiation.Answered, negotiation.Active:
		default:
			return
		}
	}

	c.mu.Lock()
	if renegotiate != c.offered {
		c.mu.Unlock()
		return
	}
	c.offered = true
	c.mu.Unlock()

	result := c.coord.Offer(func(sdp string) {
		if err := c.signal().SendOffer(sdp); err != nil {
			util.LogWarning("failed to send offer: %v", err)
		}
	})
	go c.await("offer", result)
}

func (c *Call) answer(sdp string) {
	c.coord.SetOffer(sdp)
	result := c.coord.Answer(func(sdp string) {
		if err := c.signal().SendAnswer(sdp); err != nil {
			util.LogWarning("failed to send answer: %v", err)
		}
	})
	go c.await("answer", result)
}

func (c *Call) await(op string, result <-chan error) {
	if err, ok := <-result; ok && err != nil {
		c.fail(fmt.Errorf("%s: %w", op, err))
	}
}

// dispatch routes one inbound signaling message to the coordinator.
// Unparsable messages are logged and skipped.
func (c *Call) dispatch(text string) {
	msg, err := signaling.ParseMessage(text)
	if err != nil {
		util.LogWarning("skipping signaling message: %v", err)
		return
	}

	switch msg.Type {
	case signaling.MsgTypeOffer:
		if c.role != RoleCallee {
			util.LogWarning("caller received an offer; ignoring")
			return
		}
		c.answer(msg.SDP)

	case signaling.MsgTypeAnswer:
		if c.role != RoleCaller {
			util.LogWarning("callee received an answer; ignoring")
			return
		}
		c.coord.SetAnswer(msg.SDP)

	case signaling.MsgTypeCandidate:
		cand := msg.Candidate
		c.coord.SetICECandidate(cand.SDPMid, cand.SDPMLineIndex, cand.SDP)
	}
}

// ---------------------------------------------------------------------------
// Listeners
// ---------------------------------------------------------------------------

// signalListener reacts to the signaling connection.
type signalListener struct {
	signaling.NopListener
	c *Call
}

func (l signalListener) OnOpen(*http.Response) {
	util.LogInfo("signaling connected as %s", l.c.role)
	if l.c.role == RoleCaller {
		l.c.offer(false)
	}
}

func (l signalListener) OnText(text string) {
	l.c.dispatch(text)
}

func (l signalListener) OnClosed(code int, reason string) {
	l.c.fail(fmt.Errorf("%w (%d %s)", ErrSignalingClosed, code, reason))
}

func (l signalListener) OnFailure(err error, _ *http.Response) {
	if errors.Is(err, signaling.ErrNotConnected) {
		return
	}
	l.c.fail(err)
}

// coordListener carries the coordinator's outbound events to signaling.
type coordListener struct {
	c *Call
}

func (l coordListener) OnNegotiationNeeded() {
	if l.c.role == RoleCaller {
		l.c.offer(true)
	}
}

func (l coordListener) OnICECandidate(init webrtc.ICECandidateInit) {
	cand := signaling.Candidate{SDP: init.Candidate}
	if init.SDPMid != nil {
		cand.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		cand.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	if err := l.c.signal().SendCandidate(cand); err != nil {
		util.LogWarning("failed to send candidate: %v", err)
	}
}

func (l coordListener) OnError(err error) {
	util.LogDebug("negotiation: %v", err)
}
