package signaling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

// Compile-time interface checks.
var (
	_ Socket = (*fakeSocket)(nil)
	_ Dialer = (*fakeDialer)(nil)
)

type frame struct {
	typ  int
	data []byte
}

// fakeSocket is an in-memory Socket. Frames pushed with deliver are
// returned by ReadMessage in order; writes are recorded.
type fakeSocket struct {
	mu       sync.Mutex
	sent     []frame
	controls []frame

	inbox     chan frame
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbox:   make(chan frame, 64),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	// Drain queued frames before reporting an error or closure.
	select {
	case f := <-s.inbox:
		return f.typ, f.data, nil
	default:
	}
	select {
	case f := <-s.inbox:
		return f.typ, f.data, nil
	case err := <-s.readErr:
		return 0, nil, err
	case <-s.closed:
		return 0, nil, net.ErrClosed
	}
}

func (s *fakeSocket) WriteMessage(typ int, data []byte) error {
	if s.isClosed() {
		return net.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame{typ: typ, data: append([]byte(nil), data...)})
	return nil
}

func (s *fakeSocket) WriteControl(typ int, data []byte, _ time.Time) error {
	if s.isClosed() {
		return net.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, frame{typ: typ, data: append([]byte(nil), data...)})
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) deliver(typ int, data string) {
	s.inbox <- frame{typ: typ, data: []byte(data)}
}

func (s *fakeSocket) fail(err error) {
	s.readErr <- err
}

func (s *fakeSocket) sentFrames() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.sent...)
}

func (s *fakeSocket) controlFrames() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.controls...)
}

// fakeDialer hands out a fresh fakeSocket per dial. When gate is non-nil,
// each dial blocks until gate is closed.
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	urls    []string
	sockets []*fakeSocket
	err     error
	gate    chan struct{}
	started chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{started: make(chan struct{}, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string, _ http.Header) (Socket, *http.Response, error) {
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, url)
	gate, err := d.gate, d.err
	d.mu.Unlock()

	d.started <- struct{}{}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, nil, err
	}

	s := newFakeSocket()
	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s, &http.Response{StatusCode: http.StatusSwitchingProtocols}, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

// event is one recorded Listener callback.
type event struct {
	kind   string // open, text, binary, closing, closed, failure
	text   string
	code   int
	reason string
	err    error
}

// recordingListener pushes every callback onto a buffered channel.
type recordingListener struct {
	events chan event
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan event, 256)}
}

func (l *recordingListener) OnOpen(*http.Response) { l.events <- event{kind: "open"} }
func (l *recordingListener) OnText(text string)    { l.events <- event{kind: "text", text: text} }
func (l *recordingListener) OnBinary(data []byte) {
	l.events <- event{kind: "binary", text: string(data)}
}
func (l *recordingListener) OnClosing(code int, reason string) {
	l.events <- event{kind: "closing", code: code, reason: reason}
}
func (l *recordingListener) OnClosed(code int, reason string) {
	l.events <- event{kind: "closed", code: code, reason: reason}
}
func (l *recordingListener) OnFailure(err error, _ *http.Response) {
	l.events <- event{kind: "failure", err: err}
}

// next waits for the next event and checks its kind.
func (l *recordingListener) next(t *testing.T, kind string) event {
	t.Helper()
	select {
	case ev := <-l.events:
		if ev.kind != kind {
			t.Fatalf("got event %q (%+v), want %q", ev.kind, ev, kind)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q event", kind)
	}
	return event{}
}

func waitStarted(t *testing.T, d *fakeDialer) {
	t.Helper()
	select {
	case <-d.started:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never started")
	}
}

var errBoom = errors.New("boom")
