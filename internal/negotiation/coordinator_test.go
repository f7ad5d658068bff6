package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func TestDisposeTwice(t *testing.T) {
	pc := newFakePC()
	local, capturer := newLocal(t)
	c := New(context.Background(), pc, local, nil)

	sub := c.RemoteTracks()
	c.Dispose()
	c.Dispose()

	if c.State() != Disposed {
		t.Fatalf("state = %s, want disposed", c.State())
	}
	if pc.closeCount != 1 || capturer.stops != 1 {
		t.Fatalf("pc closed %d times, capture stopped %d times", pc.closeCount, capturer.stops)
	}
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("remote stream delivered a value after Dispose")
		}
	case <-time.After(time.Second):
		t.Fatal("remote stream not closed")
	}
	if err := c.StartCaptureLocalVideo(); !errors.Is(err, ErrDisposed) {
		t.Fatalf("StartCaptureLocalVideo after Dispose = %v, want ErrDisposed", err)
	}
}

func TestOfferSuccess(t *testing.T) {
	pc := newFakePC()
	local, _ := newLocal(t)
	c := New(context.Background(), pc, local, nil)
	defer c.Dispose()

	if err := c.StartCaptureLocalVideo(); err != nil {
		t.Fatal(err)
	}

	var got string
	err, ok := waitResult(t, c.Offer(func(sdp string) { got = sdp }))
	if !ok || err != nil {
		t.Fatalf("Offer result = %v (ok=%v)", err, ok)
	}
	if got != "offer-sdp" {
		t.Fatalf("completion sdp = %q", got)
	}
	if c.State() != Offered {
		t.Fatalf("state = %s, want offered", c.State())
	}
	if pc.callCount("CreateOffer") != 1 || pc.callCount("SetLocalDescription") != 1 {
		t.Fatalf("calls = %v", pc.calls)
	}
}

func TestOfferFailures(t *testing.T) {
	testCases := []struct {
		name   string
		setup  func(*fakePC)
		wantOp string
	}{
		{
			name:   "create fails",
			setup:  func(pc *fakePC) { pc.createOfferErr = errBoom },
			wantOp: "create offer",
		},
		{
			name:   "set local fails",
			setup:  func(pc *fakePC) { pc.setLocalErr = errBoom },
			wantOp: "set local offer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pc := newFakePC()
			tc.setup(pc)
			c := New(context.Background(), pc, nil, nil)
			defer c.Dispose()

			called := false
			err, ok := waitResult(t, c.Offer(func(string) { called = true }))
			if !ok {
				t.Fatal("result channel closed without a value")
			}

			var negErr *NegotiationError
			if !errors.As(err, &negErr) || negErr.Op != tc.wantOp || !errors.Is(err, errBoom) {
				t.Fatalf("error = %v, want %s failure", err, tc.wantOp)
			}
			if called {
				t.Fatal("completion invoked on failure")
			}
			if c.State() != Idle {
				t.Fatalf("state = %s, want idle restored", c.State())
			}
		})
	}
}

func TestAnswerFlow(t *testing.T) {
	pc := newFakePC()
	c := New(context.Background(), pc, nil, nil)
	defer c.Dispose()

	c.SetOffer("remote-offer")
	var got string
	err, ok := waitResult(t, c.Answer(func(sdp string) { got = sdp }))
	if !ok || err != nil {
		t.Fatalf("Answer result = %v (ok=%v)", err, ok)
	}
	if got != "answer-sdp" || c.State() != Answered {
		t.Fatalf("sdp = %q, state = %s", got, c.State())
	}
}

// TestSetAnswerThenRemoteTrack verifies that a remote video track after the
// answer is published exactly once on the video stream and activates the
// session, while a remote audio track only reaches the all-tracks stream.
func TestSetAnswerThenRemoteTrack(t *testing.T) {
	pc := newFakePC()
	c := New(context.Background(), pc, nil, nil)
	defer c.Dispose()

	sub := c.RemoteVideo()
	defer sub.Cancel()
	all := c.RemoteTracks()
	defer all.Cancel()

	if err, _ := waitResult(t, c.Offer(nil)); err != nil {
		t.Fatal(err)
	}
	c.SetAnswer("remote-answer")
	waitState(t, c, Answered)

	pc.emitTrack(fakeTrack{id: "a1", kind: webrtc.RTPCodecTypeAudio})
	time.Sleep(20 * time.Millisecond)
	if c.State() != Answered {
		t.Fatalf("state after audio track = %s, want answered", c.State())
	}
	pc.emitTrack(fakeTrack{id: "v1", kind: webrtc.RTPCodecTypeVideo})

	select {
	case tr := <-sub.C():
		if tr.ID() != "v1" {
			t.Fatalf("track = %s, want v1", tr.ID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote track not delivered")
	}
	select {
	case tr := <-sub.C():
		t.Fatalf("unexpected second track %s", tr.ID())
	case <-time.After(50 * time.Millisecond):
	}
	waitState(t, c, Active)

	for _, want := range []string{"a1", "v1"} {
		select {
		case tr := <-all.C():
			if tr.ID() != want {
				t.Fatalf("all-tracks stream got %s, want %s", tr.ID(), want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("track %s missing from all-tracks stream", want)
		}
	}
}

func TestSetAnswerFailureReported(t *testing.T) {
	pc := newFakePC()
	pc.setRemoteErr = errBoom
	l := newRecordingListener()
	c := New(context.Background(), pc, nil, l)
	defer c.Dispose()

	if err, _ := waitResult(t, c.Offer(nil)); err != nil {
		t.Fatal(err)
	}
	c.SetAnswer("bad")

	var negErr *NegotiationError
	if err := l.nextErr(t); !errors.As(err, &negErr) || negErr.Op != "set remote answer" {
		t.Fatalf("OnError = %v, want set remote answer failure", err)
	}
	if c.State() != Offered {
		t.Fatalf("state = %s, want offered", c.State())
	}
}

// TestEarlyCandidate verifies that a candidate arriving before any remote
// description is forwarded as-is and its rejection surfaces via OnError.
func TestEarlyCandidate(t *testing.T) {
	pc := newFakePC()
	l := newRecordingListener()
	c := New(context.Background(), pc, nil, l)
	defer c.Dispose()

	c.SetICECandidate("0", 0, "candidate:1 1 udp 2122260223 10.0.0.1 50000 typ host")

	var candErr *CandidateError
	err := l.nextErr(t)
	if !errors.As(err, &candErr) || candErr.Mid != "0" || candErr.LineIndex != 0 {
		t.Fatalf("OnError = %v, want CandidateError for mid 0", err)
	}
	if pc.callCount("AddICECandidate") != 1 {
		t.Fatal("candidate was not forwarded to the peer connection")
	}
}

func TestCandidateAfterRemoteDescription(t *testing.T) {
	pc := newFakePC()
	l := newRecordingListener()
	c := New(context.Background(), pc, nil, l)
	defer c.Dispose()

	c.SetOffer("remote-offer")
	c.SetICECandidate("audio", 1, "candidate:2")
	c.SetICECandidate("video", 70000, "candidate:3")

	var candErr *CandidateError
	if err := l.nextErr(t); !errors.As(err, &candErr) || candErr.LineIndex != 70000 {
		t.Fatalf("OnError = %v, want out-of-range CandidateError", err)
	}
	l.noErr(t)

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.candidates) != 1 || *pc.candidates[0].SDPMid != "audio" || *pc.candidates[0].SDPMLineIndex != 1 {
		t.Fatalf("candidates = %+v", pc.candidates)
	}
}

func TestCaptureTwice(t *testing.T) {
	pc := newFakePC()
	local, _ := newLocal(t)
	c := New(context.Background(), pc, local, nil)
	defer c.Dispose()

	sub := c.LocalVideo()
	defer sub.Cancel()

	if err := c.StartCaptureLocalVideo(); err != nil {
		t.Fatal(err)
	}
	if err := c.StartCaptureLocalVideo(); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("second capture = %v, want ErrAlreadyCapturing", err)
	}
	if len(pc.tracks) != 2 {
		t.Fatalf("tracks attached = %d, want 2", len(pc.tracks))
	}
	if c.State() != LocalReady {
		t.Fatalf("state = %s, want local-ready", c.State())
	}

	select {
	case tr := <-sub.C():
		if tr.ID() != local.Video.ID() {
			t.Fatalf("local-ready track = %s, want %s", tr.ID(), local.Video.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("local video not published")
	}
}

// TestCaptureRollsBackOnAudioFailure verifies that a failed audio attach
// leaves no video sender behind and allows another attempt.
func TestCaptureRollsBackOnAudioFailure(t *testing.T) {
	pc := newFakePC()
	pc.addAudioErr = errBoom
	local, _ := newLocal(t)
	c := New(context.Background(), pc, local, nil)
	defer c.Dispose()

	var negErr *NegotiationError
	if err := c.StartCaptureLocalVideo(); !errors.As(err, &negErr) || !errors.Is(err, errBoom) {
		t.Fatalf("StartCaptureLocalVideo() = %v, want NegotiationError wrapping boom", err)
	}

	pc.mu.Lock()
	tracks, removed := len(pc.tracks), len(pc.removed)
	pc.mu.Unlock()
	if tracks != 0 || removed != 1 {
		t.Fatalf("tracks attached = %d, removed = %d, want 0 and 1", tracks, removed)
	}
	if c.State() != Idle {
		t.Fatalf("state = %s, want idle", c.State())
	}

	pc.addAudioErr = nil
	if err := c.StartCaptureLocalVideo(); err != nil {
		t.Fatalf("retry after failure = %v", err)
	}
	if len(pc.tracks) != 2 {
		t.Fatalf("tracks attached after retry = %d, want 2", len(pc.tracks))
	}
}

func TestCaptureWithoutMedia(t *testing.T) {
	c := New(context.Background(), newFakePC(), nil, nil)
	defer c.Dispose()

	if err := c.StartCaptureLocalVideo(); !errors.Is(err, ErrNoLocalMedia) {
		t.Fatalf("error = %v, want ErrNoLocalMedia", err)
	}
}

// TestMutationsSerialized hammers the coordinator from many goroutines and
// checks that the peer connection never sees two mutations at once.
func TestMutationsSerialized(t *testing.T) {
	pc := newFakePC()
	local, _ := newLocal(t)
	c := New(context.Background(), pc, local, NopListener{})
	defer c.Dispose()

	c.SetOffer("remote-offer")

	var wg sync.WaitGroup
	results := make(chan (<-chan error), 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				results <- c.Offer(nil)
			case 1:
				c.SetICECandidate("0", 0, "candidate")
			case 2:
				c.SetAnswer("remote-answer")
			case 3:
				c.StartCaptureLocalVideo()
			}
		}(i)
	}
	wg.Wait()
	close(results)

	for ch := range results {
		waitResult(t, ch)
	}
	// FIFO: once this completes everything enqueued before it has run.
	waitResult(t, c.Answer(nil))

	if pc.overlap.Load() {
		t.Fatal("peer connection mutations overlapped")
	}
}

// TestDisposeDropsPendingOffer verifies that Dispose abandons both an
// in-flight and a queued Offer without invoking their completions.
func TestDisposeDropsPendingOffer(t *testing.T) {
	pc := newFakePC()
	pc.createOfferGate = make(chan struct{})
	c := New(context.Background(), pc, nil, nil)

	called := make(chan struct{}, 2)
	first := c.Offer(func(string) { called <- struct{}{} })
	<-pc.createOfferStarted
	second := c.Offer(func(string) { called <- struct{}{} })

	disposed := make(chan struct{})
	go func() {
		c.Dispose()
		close(disposed)
	}()

	if _, ok := waitResult(t, second); ok {
		t.Fatal("queued offer delivered a result after Dispose")
	}

	close(pc.createOfferGate)
	if _, ok := waitResult(t, first); ok {
		t.Fatal("in-flight offer delivered a result after Dispose")
	}
	<-disposed

	select {
	case <-called:
		t.Fatal("completion invoked after Dispose")
	default:
	}
	if pc.callCount("SetLocalDescription") != 0 {
		t.Fatal("local description applied after Dispose")
	}

	if _, ok := waitResult(t, c.Offer(nil)); ok {
		t.Fatal("offer after Dispose delivered a result")
	}
}

func TestOutboundEventsForwarded(t *testing.T) {
	pc := newFakePC()
	l := newRecordingListener()
	c := New(context.Background(), pc, nil, l)
	defer c.Dispose()

	if err, _ := waitResult(t, c.Offer(nil)); err != nil {
		t.Fatal(err)
	}

	mid := "0"
	pc.onNegotiate()
	pc.emitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:local", SDPMid: &mid})

	select {
	case <-l.negotiations:
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation-needed not forwarded")
	}
	select {
	case cand := <-l.candidates:
		if cand.Candidate != "candidate:local" {
			t.Fatalf("candidate = %q", cand.Candidate)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("local candidate not forwarded")
	}
}

// TestCandidatesFollowLocalDescription verifies that a candidate gathered
// while the offer completion is still running is sent after the offer.
func TestCandidatesFollowLocalDescription(t *testing.T) {
	pc := newFakePC()
	l := newRecordingListener()
	c := New(context.Background(), pc, nil, l)
	defer c.Dispose()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	mid := "0"
	result := c.Offer(func(string) {
		pc.emitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:early", SDPMid: &mid})
		time.Sleep(5 * time.Millisecond)
		record("offer")
	})

	select {
	case cand := <-l.candidates:
		record(cand.Candidate)
	case <-time.After(2 * time.Second):
		t.Fatal("held candidate never sent")
	}
	if err, _ := waitResult(t, result); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "offer" || order[1] != "candidate:early" {
		t.Fatalf("order = %v, want [offer candidate:early]", order)
	}
}

func TestContextCancelStopsWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pc := newFakePC()
	c := New(ctx, pc, nil, nil)
	defer c.Dispose()

	cancel()
	time.Sleep(20 * time.Millisecond)

	if _, ok := waitResult(t, c.Offer(nil)); ok {
		t.Fatal("offer ran after context cancellation")
	}
	if pc.callCount("CreateOffer") != 0 {
		t.Fatal("CreateOffer called after cancellation")
	}
}
