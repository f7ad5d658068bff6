package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/rtcall/internal/util"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrame = 20 * time.Millisecond

// StaticDevice is a Device with a fixed format list.
type StaticDevice struct {
	DeviceName string
	List       []CaptureFormat
}

func (d StaticDevice) Name() string             { return d.DeviceName }
func (d StaticDevice) Formats() []CaptureFormat { return d.List }

// SyntheticDevice advertises the usual webcam modes.
var SyntheticDevice = StaticDevice{
	DeviceName: "synthetic",
	List: []CaptureFormat{
		{Width: 1280, Height: 720, FPS: 30},
		{Width: 720, Height: 480, FPS: 30},
		{Width: 480, Height: 360, FPS: 30},
	},
}

// SyntheticCapturer stands in for a camera and microphone: it writes a
// placeholder video frame at the format's frame rate and Opus silence every
// 20ms, enough for the remote side to receive RTP and raise its track
// events.
type SyntheticCapturer struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var errAlreadyStarted = errors.New("capturer already started")

// Start begins writing samples until Stop.
func (s *SyntheticCapturer) Start(video, audio *webrtc.TrackLocalStaticSample, format CaptureFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	frame := time.Second / time.Duration(format.FPS)
	placeholder := make([]byte, 64)

	s.wg.Add(2)
	go s.pump(ctx, video, frame, placeholder)
	go s.pump(ctx, audio, opusFrame, opusSilence)
	return nil
}

func (s *SyntheticCapturer) pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, every time.Duration, data []byte) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := track.WriteSample(pionmedia.Sample{Data: data, Duration: every}); err != nil {
				util.LogDebug("synthetic %s sample dropped: %v", track.Kind(), err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts sample writing and waits for the writers to exit.
func (s *SyntheticCapturer) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return nil
}
