// Package media builds the local audio/video tracks a call publishes.
//
// Construction follows a fixed order so every failure happens inside
// Build, never on first use:
//
//  1. Resolve a capture format from the device
//  2. Create the video and audio tracks
//  3. Start the capturer feeding them
package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// ErrNoMatchingResolution is returned by Build when the device offers none
// of the preferred widths.
var ErrNoMatchingResolution = errors.New("there is no matched resolution")

// PreferredWidths are the capture widths accepted, matched against the
// device's formats in device order.
var PreferredWidths = []int{720, 480, 360}

// DefaultFPS is used when the chosen format does not state a frame rate.
const DefaultFPS = 30

// CaptureFormat is one mode a capture device supports.
type CaptureFormat struct {
	Width  int
	Height int
	FPS    int
}

// Device describes a capture device.
type Device interface {
	Name() string
	Formats() []CaptureFormat
}

// Capturer feeds samples into the local tracks once started.
type Capturer interface {
	Start(video, audio *webrtc.TrackLocalStaticSample, format CaptureFormat) error
	Stop() error
}

// Builder assembles Local media from a device and a capturer.
type Builder struct {
	device   Device
	capturer Capturer
}

// NewBuilder creates a builder. Nothing is touched until Build.
func NewBuilder(device Device, capturer Capturer) *Builder {
	return &Builder{device: device, capturer: capturer}
}

// Build resolves the capture format, creates the tracks and starts the
// capturer, in that order.
func (b *Builder) Build() (*Local, error) {
	format, err := SelectFormat(b.device.Formats())
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", b.device.Name(), err)
	}

	streamID := "Stream" + uuid.NewString()

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"Video"+uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"Audio"+uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	if err := b.capturer.Start(video, audio, format); err != nil {
		return nil, fmt.Errorf("start capture %dx%d@%d: %w", format.Width, format.Height, format.FPS, err)
	}

	return &Local{
		Video:    video,
		Audio:    audio,
		Format:   format,
		capturer: b.capturer,
	}, nil
}

// SelectFormat returns the first format whose width is one of
// PreferredWidths, filling in DefaultFPS when the format has none.
func SelectFormat(formats []CaptureFormat) (CaptureFormat, error) {
	for _, f := range formats {
		for _, w := range PreferredWidths {
			if f.Width == w {
				if f.FPS <= 0 {
					f.FPS = DefaultFPS
				}
				return f, nil
			}
		}
	}
	return CaptureFormat{}, ErrNoMatchingResolution
}

// Local is the started local media of one call.
type Local struct {
	Video  *webrtc.TrackLocalStaticSample
	Audio  *webrtc.TrackLocalStaticSample
	Format CaptureFormat

	capturer  Capturer
	closeOnce sync.Once
	closeErr  error
}

// Close stops the capturer. Safe to call multiple times.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		if l.capturer != nil {
			l.closeErr = l.capturer.Stop()
		}
	})
	return l.closeErr
}
