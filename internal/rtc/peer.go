// Package rtc is the boundary to the media engine: a PeerConnection
// interface the negotiation layer drives, and its pion-backed
// implementation.
package rtc

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrUnknownTrack is returned by RemoveTrack for a track that was never
// added.
var ErrUnknownTrack = errors.New("track was not added")

// Track is the common view of a local or remote media track.
// *webrtc.TrackLocalStaticSample and *webrtc.TrackRemote both satisfy it.
type Track interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

var (
	_ Track = (*webrtc.TrackLocalStaticSample)(nil)
	_ Track = (*webrtc.TrackRemote)(nil)
)

// PeerConnection is the media-engine façade. Every method either fully
// applies or fails without partial state change; the implementation decides
// whether candidates added before a remote description are queued or
// rejected.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) error
	RemoveTrack(track webrtc.TrackLocal) error

	// OnTrack is invoked for every remote track that arrives.
	OnTrack(fn func(Track))
	// OnNegotiationNeeded is invoked when the session must be (re)negotiated.
	OnNegotiationNeeded(fn func())
	// OnICECandidate is invoked for every gathered local candidate. The
	// end-of-gathering marker is not reported.
	OnICECandidate(fn func(webrtc.ICECandidateInit))

	Close() error
}
