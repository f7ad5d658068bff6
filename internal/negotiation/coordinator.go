// Package negotiation drives one peer connection through the SDP
// offer/answer and trickle-ICE exchange.
//
// The Coordinator never touches the signaling transport: outbound data
// (local candidates, negotiation-needed) goes to a Listener, and the host
// application decides how to send it.
package negotiation

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/media"
	"github.com/1ureka/rtcall/internal/pubsub"
	"github.com/1ureka/rtcall/internal/rtc"
	"github.com/1ureka/rtcall/internal/util"
)

// Replay windows of the media streams.
const (
	localReplay  = 1
	videoReplay  = 1
	remoteReplay = 2 // one audio + one video
)

// errDropped marks an operation abandoned because of Dispose. It is never
// delivered to callers.
var errDropped = errors.New("operation dropped")

// Listener receives the outbound half of the signaling loop plus errors
// that have no caller to return to.
type Listener interface {
	OnNegotiationNeeded()
	OnICECandidate(candidate webrtc.ICECandidateInit)
	OnError(err error)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnNegotiationNeeded()                   {}
func (NopListener) OnICECandidate(webrtc.ICECandidateInit) {}
func (NopListener) OnError(error)                          {}

// Coordinator owns exactly one PeerConnection for the lifetime of a call.
//
// Every PeerConnection mutation runs on a single-writer operation queue and
// additionally holds pcMu, so descriptions and candidates are never applied
// concurrently no matter how many goroutines call the public API. Events
// coming from the media engine run on a separate event queue.
type Coordinator struct {
	pc       rtc.PeerConnection
	local    *media.Local
	listener Listener

	ctx    context.Context
	cancel context.CancelFunc
	ops    *queue
	events *queue

	pcMu sync.Mutex

	mu        sync.Mutex
	state     State
	capturing bool

	localVideo   *pubsub.Broadcast[rtc.Track]
	remoteVideo  *pubsub.Broadcast[rtc.Track]
	remoteTracks *pubsub.Broadcast[rtc.Track]

	// Local candidates are held until the first local description has been
	// handed to its completion. Both fields belong to the events queue.
	released   bool
	candidates []webrtc.ICECandidateInit
}

// New creates a Coordinator around pc. local may be nil for a receive-only
// session; listener may be nil. The coordinator's work is cancelled when
// ctx ends or Dispose is called.
func New(ctx context.Context, pc rtc.PeerConnection, local *media.Local, listener Listener) *Coordinator {
	if listener == nil {
		listener = NopListener{}
	}

	cCtx, cCancel := context.WithCancel(ctx)
	c := &Coordinator{
		pc:           pc,
		local:        local,
		listener:     listener,
		ctx:          cCtx,
		cancel:       cCancel,
		ops:          newQueue(cCtx),
		events:       newQueue(cCtx),
		state:        Idle,
		localVideo:   pubsub.NewBroadcast[rtc.Track](localReplay),
		remoteVideo:  pubsub.NewBroadcast[rtc.Track](videoReplay),
		remoteTracks: pubsub.NewBroadcast[rtc.Track](remoteReplay),
	}

	pc.OnTrack(func(track rtc.Track) {
		c.events.enqueue(job{run: func(context.Context) { c.onRemoteTrack(track) }})
	})
	pc.OnNegotiationNeeded(func() {
		c.events.enqueue(job{run: func(context.Context) {
			util.LogDebug("negotiation needed")
			c.listener.OnNegotiationNeeded()
		}})
	})
	pc.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		c.events.enqueue(job{run: func(context.Context) {
			util.Stats.AddLocalCandidate()
			if !c.released {
				c.candidates = append(c.candidates, candidate)
				return
			}
			c.listener.OnICECandidate(candidate)
		}})
	})

	return c
}

// State returns the current negotiation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves to next unless the coordinator is disposed. It returns
// the previous state.
func (c *Coordinator) transition(next State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	if prev != Disposed {
		c.state = next
	}
	return prev
}

// LocalVideo subscribes to the local-ready stream: the local video track,
// published once capture starts.
func (c *Coordinator) LocalVideo() *pubsub.Subscription[rtc.Track] {
	return c.localVideo.Subscribe()
}

// RemoteVideo subscribes to the remote-arrived stream: remote video tracks
// only.
func (c *Coordinator) RemoteVideo() *pubsub.Subscription[rtc.Track] {
	return c.remoteVideo.Subscribe()
}

// RemoteTracks subscribes to every remote track, audio included.
func (c *Coordinator) RemoteTracks() *pubsub.Subscription[rtc.Track] {
	return c.remoteTracks.Subscribe()
}

// ---------------------------------------------------------------------------
// Offer / answer
// ---------------------------------------------------------------------------

// Offer creates an SDP offer and applies it as the local description, then
// calls completion with the offer's SDP. The returned channel receives nil
// on success or a *NegotiationError, and is then closed; completion is only
// called on success. If the coordinator is disposed first, completion is
// dropped and the channel is closed without a value.
func (c *Coordinator) Offer(completion func(sdp string)) <-chan error {
	return c.createLocal(webrtc.SDPTypeOffer, completion)
}

// Answer is the answering counterpart of Offer. It requires a remote offer
// applied with SetOffer.
func (c *Coordinator) Answer(completion func(sdp string)) <-chan error {
	return c.createLocal(webrtc.SDPTypeAnswer, completion)
}

func (c *Coordinator) createLocal(typ webrtc.SDPType, completion func(sdp string)) <-chan error {
	result := make(chan error, 1)

	ok := c.ops.enqueue(job{
		run: func(ctx context.Context) {
			defer close(result)

			sdp, err := c.applyLocal(ctx, typ)
			switch {
			case errors.Is(err, errDropped):
				return
			case err != nil:
				util.LogError("%v", err)
				result <- err
				return
			}

			if ctx.Err() != nil {
				return
			}
			util.LogDebug("[%s] onSuccess", typ)
			if completion != nil {
				completion(sdp)
			}
			c.events.enqueue(job{run: func(context.Context) { c.releaseCandidates() }})
			result <- nil
		},
		drop: func() { close(result) },
	})
	if !ok {
		close(result)
	}
	return result
}

// applyLocal creates the description and sets it locally. On failure the
// state returns to what it was before.
func (c *Coordinator) applyLocal(ctx context.Context, typ webrtc.SDPType) (string, error) {
	c.pcMu.Lock()
	defer c.pcMu.Unlock()

	if ctx.Err() != nil {
		return "", errDropped
	}

	pending, done := Offering, Offered
	create := c.pc.CreateOffer
	if typ == webrtc.SDPTypeAnswer {
		pending, done = Answering, Answered
		create = c.pc.CreateAnswer
	}

	prev := c.transition(pending)

	desc, err := create()
	if err != nil {
		c.transition(prev)
		return "", &NegotiationError{Op: "create " + typ.String(), Err: err}
	}
	if ctx.Err() != nil {
		c.transition(prev)
		return "", errDropped
	}

	if err := c.pc.SetLocalDescription(desc); err != nil {
		c.transition(prev)
		return "", &NegotiationError{Op: "set local " + typ.String(), Err: err}
	}

	c.transition(done)
	return desc.SDP, nil
}

// SetOffer applies a remote offer. Failures are reported through
// Listener.OnError.
func (c *Coordinator) SetOffer(sdp string) {
	c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}, RemoteOffered)
}

// SetAnswer applies the remote answer to a previously sent offer. Failures
// are reported through Listener.OnError.
func (c *Coordinator) SetAnswer(sdp string) {
	c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}, Answered)
}

func (c *Coordinator) setRemote(desc webrtc.SessionDescription, next State) {
	c.ops.enqueue(job{run: func(ctx context.Context) {
		err := c.withPeer(ctx, func() error {
			if err := c.pc.SetRemoteDescription(desc); err != nil {
				return err
			}
			c.transition(next)
			return nil
		})
		switch {
		case errors.Is(err, errDropped):
		case err != nil:
			c.report(&NegotiationError{Op: "set remote " + desc.Type.String(), Err: err})
		default:
			util.LogDebug("[SDP] remote %s applied", desc.Type)
		}
	}})
}

// SetICECandidate forwards a remote candidate to the peer connection. It is
// not buffered: a candidate arriving before the remote description is
// handed over as-is, and a rejection is reported through Listener.OnError
// as a *CandidateError.
func (c *Coordinator) SetICECandidate(mid string, lineIndex int, sdp string) {
	c.ops.enqueue(job{run: func(ctx context.Context) {
		if lineIndex < 0 || lineIndex > math.MaxUint16 {
			c.report(&CandidateError{Mid: mid, LineIndex: lineIndex, Err: errors.New("sdpMLineIndex out of range")})
			return
		}

		idx := uint16(lineIndex)
		init := webrtc.ICECandidateInit{
			Candidate:     sdp,
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		}

		err := c.withPeer(ctx, func() error { return c.pc.AddICECandidate(init) })
		switch {
		case errors.Is(err, errDropped):
		case err != nil:
			c.report(&CandidateError{Mid: mid, LineIndex: lineIndex, Err: err})
		default:
			util.Stats.AddRemoteCandidate()
		}
	}})
}

// withPeer runs fn under the peer-connection lock unless ctx has ended.
func (c *Coordinator) withPeer(ctx context.Context, fn func() error) error {
	c.pcMu.Lock()
	defer c.pcMu.Unlock()
	if ctx.Err() != nil {
		return errDropped
	}
	return fn()
}

// releaseCandidates sends the held local candidates and lets later ones
// through. It runs on the events queue.
func (c *Coordinator) releaseCandidates() {
	if c.released {
		return
	}
	c.released = true
	held := c.candidates
	c.candidates = nil
	for _, candidate := range held {
		c.listener.OnICECandidate(candidate)
	}
}

func (c *Coordinator) report(err error) {
	util.LogWarning("%v", err)
	c.listener.OnError(err)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// StartCaptureLocalVideo attaches the local video and audio tracks and
// publishes the video track on the local-ready stream. Only the first
// successful call attaches anything; later calls return ErrAlreadyCapturing.
// If the audio track cannot be attached the video track is removed again.
func (c *Coordinator) StartCaptureLocalVideo() error {
	if c.local == nil {
		return ErrNoLocalMedia
	}

	c.pcMu.Lock()
	c.mu.Lock()
	switch {
	case c.state == Disposed:
		c.mu.Unlock()
		c.pcMu.Unlock()
		return ErrDisposed
	case c.capturing:
		c.mu.Unlock()
		c.pcMu.Unlock()
		return ErrAlreadyCapturing
	}
	c.capturing = true
	c.mu.Unlock()

	err := c.pc.AddTrack(c.local.Video)
	if err == nil {
		if err = c.pc.AddTrack(c.local.Audio); err != nil {
			if rmErr := c.pc.RemoveTrack(c.local.Video); rmErr != nil {
				util.LogWarning("remove local video track: %v", rmErr)
			}
		}
	}
	c.pcMu.Unlock()

	if err != nil {
		c.mu.Lock()
		c.capturing = false
		c.mu.Unlock()
		return &NegotiationError{Op: "add local track", Err: err}
	}

	c.mu.Lock()
	if c.state == Idle {
		c.state = LocalReady
	}
	c.mu.Unlock()

	util.LogDebug("local capture started: %dx%d@%d", c.local.Format.Width, c.local.Format.Height, c.local.Format.FPS)
	c.localVideo.Publish(c.local.Video)
	return nil
}

func (c *Coordinator) onRemoteTrack(track rtc.Track) {
	util.LogInfo("remote %s track arrived: %s", track.Kind(), track.ID())
	c.remoteTracks.Publish(track)

	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}

	c.mu.Lock()
	if c.state == Answered {
		c.state = Active
	}
	c.mu.Unlock()

	c.remoteVideo.Publish(track)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Dispose cancels all queued work, closes the peer connection, stops local
// capture and ends every media stream. Pending Offer/Answer completions are
// dropped. Calls after the first are no-ops.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.state == Disposed {
		c.mu.Unlock()
		return
	}
	c.state = Disposed
	c.mu.Unlock()

	c.cancel()
	c.ops.close()
	c.events.close()

	// Wait for an in-flight mutation before tearing the connection down.
	c.pcMu.Lock()
	if err := c.pc.Close(); err != nil {
		util.LogWarning("close peer connection: %v", err)
	}
	c.pcMu.Unlock()

	if c.local != nil {
		if err := c.local.Close(); err != nil {
			util.LogWarning("stop capture: %v", err)
		}
	}

	c.localVideo.Close()
	c.remoteVideo.Close()
	c.remoteTracks.Close()
	util.LogDebug("coordinator disposed")
}
