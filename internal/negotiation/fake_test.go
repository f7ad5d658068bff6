package negotiation

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/media"
	"github.com/1ureka/rtcall/internal/rtc"
)

var _ rtc.PeerConnection = (*fakePC)(nil)

var errBoom = errors.New("boom")

// fakePC is an in-memory PeerConnection. It records every call and flags
// any two mutations that overlap in time.
type fakePC struct {
	createOfferErr error
	setLocalErr    error
	setRemoteErr   error
	addAudioErr    error

	// createOfferGate, if set, blocks CreateOffer until it is closed.
	createOfferGate chan struct{}

	// createOfferStarted is closed when CreateOffer is first entered.
	createOfferStarted chan struct{}
	startedOnce        sync.Once

	busy    int32
	overlap atomic.Bool

	mu          sync.Mutex
	calls       []string
	tracks      []webrtc.TrackLocal
	removed     []webrtc.TrackLocal
	remoteSet   bool
	candidates  []webrtc.ICECandidateInit
	closeCount  int
	onTrack     func(rtc.Track)
	onNegotiate func()
	onCandidate func(webrtc.ICECandidateInit)
}

func newFakePC() *fakePC {
	return &fakePC{createOfferStarted: make(chan struct{})}
}

func (p *fakePC) enter(name string) func() {
	if atomic.AddInt32(&p.busy, 1) != 1 {
		p.overlap.Store(true)
	}
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
	// Widen the window an unserialized caller would hit.
	time.Sleep(time.Millisecond)
	return func() { atomic.AddInt32(&p.busy, -1) }
}

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	defer p.enter("CreateOffer")()
	p.startedOnce.Do(func() { close(p.createOfferStarted) })
	if p.createOfferGate != nil {
		<-p.createOfferGate
	}
	if p.createOfferErr != nil {
		return webrtc.SessionDescription{}, p.createOfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	defer p.enter("CreateAnswer")()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePC) SetLocalDescription(webrtc.SessionDescription) error {
	defer p.enter("SetLocalDescription")()
	return p.setLocalErr
}

func (p *fakePC) SetRemoteDescription(webrtc.SessionDescription) error {
	defer p.enter("SetRemoteDescription")()
	if p.setRemoteErr != nil {
		return p.setRemoteErr
	}
	p.mu.Lock()
	p.remoteSet = true
	p.mu.Unlock()
	return nil
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	defer p.enter("AddICECandidate")()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.remoteSet {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) AddTrack(track webrtc.TrackLocal) error {
	defer p.enter("AddTrack")()
	if track.Kind() == webrtc.RTPCodecTypeAudio && p.addAudioErr != nil {
		return p.addAudioErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePC) RemoveTrack(track webrtc.TrackLocal) error {
	defer p.enter("RemoveTrack")()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.tracks {
		if t == track {
			p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
			p.removed = append(p.removed, track)
			return nil
		}
	}
	return rtc.ErrUnknownTrack
}

func (p *fakePC) OnTrack(fn func(rtc.Track)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePC) OnNegotiationNeeded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNegotiate = fn
}

func (p *fakePC) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
	return nil
}

func (p *fakePC) callCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (p *fakePC) emitCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	fn(c)
}

func (p *fakePC) emitTrack(t rtc.Track) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

// fakeTrack is a remote track stand-in.
type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t fakeTrack) ID() string                { return t.id }
func (t fakeTrack) StreamID() string          { return "remote-stream" }
func (t fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

// recordingListener captures everything the coordinator emits.
type recordingListener struct {
	negotiations chan struct{}
	candidates   chan webrtc.ICECandidateInit
	errs         chan error
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		negotiations: make(chan struct{}, 16),
		candidates:   make(chan webrtc.ICECandidateInit, 16),
		errs:         make(chan error, 16),
	}
}

func (l *recordingListener) OnNegotiationNeeded()                     { l.negotiations <- struct{}{} }
func (l *recordingListener) OnICECandidate(c webrtc.ICECandidateInit) { l.candidates <- c }
func (l *recordingListener) OnError(err error)                        { l.errs <- err }

func (l *recordingListener) nextErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-l.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnError")
		return nil
	}
}

func (l *recordingListener) noErr(t *testing.T) {
	t.Helper()
	select {
	case err := <-l.errs:
		t.Fatalf("unexpected OnError: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

// stubCapturer starts and stops without producing samples.
type stubCapturer struct{ stops int }

func (*stubCapturer) Start(_, _ *webrtc.TrackLocalStaticSample, _ media.CaptureFormat) error {
	return nil
}

func (c *stubCapturer) Stop() error {
	c.stops++
	return nil
}

func newLocal(t *testing.T) (*media.Local, *stubCapturer) {
	t.Helper()
	capturer := &stubCapturer{}
	local, err := media.NewBuilder(media.SyntheticDevice, capturer).Build()
	if err != nil {
		t.Fatal(err)
	}
	return local, capturer
}

// waitResult reads the single outcome of an Offer/Answer. ok is false when
// the channel was closed without a value.
func waitResult(t *testing.T, ch <-chan error) (err error, ok bool) {
	t.Helper()
	select {
	case err, ok = <-ch:
		return err, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil, false
	}
}

func waitState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", c.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
