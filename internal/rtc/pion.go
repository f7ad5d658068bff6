package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/util"
)

// receiveKinds are the media kinds every offer asks to receive, whether or
// not a local track of that kind is attached.
var receiveKinds = []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}

// pionPeer wraps a single pion PeerConnection.
type pionPeer struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[webrtc.TrackLocal]*webrtc.RTPSender
}

var _ PeerConnection = (*pionPeer)(nil)

// NewPeerConnection creates a pion-backed PeerConnection using cfg's ICE
// servers and the default audio/video codecs.
func NewPeerConnection(cfg Config) (PeerConnection, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(cfg.configuration())
	if err != nil {
		return nil, err
	}

	p := &pionPeer{
		pc:      pc,
		senders: make(map[webrtc.TrackLocal]*webrtc.RTPSender),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		util.LogDebug("ICE connection state: %s", state.String())
	})

	return p, nil
}

// ---------------------------------------------------------------------------
// Descriptions & candidates
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer. Audio and video are always offered:
// a kind with no transceiver yet gets a recvonly one, which a later AddTrack
// of the same kind takes over.
func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	if err := p.ensureReceivers(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) ensureReceivers() error {
	have := make(map[webrtc.RTPCodecType]bool)
	for _, tr := range p.pc.GetTransceivers() {
		have[tr.Kind()] = true
	}
	for _, kind := range receiveKinds {
		if have[kind] {
			continue
		}
		_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return err
		}
		util.LogDebug("added recvonly %s transceiver", kind)
	}
	return nil
}

// CreateAnswer generates an SDP answer.
func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *pionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

// SetRemoteDescription applies the remote SDP.
func (p *pionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
// pion rejects candidates that arrive before a remote description.
func (p *pionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack attaches a local track and starts draining RTCP for it, which
// pion needs for interceptors such as NACK to work.
func (p *pionPeer) AddTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.senders[track] = sender
	p.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// RemoveTrack detaches a track previously added with AddTrack.
func (p *pionPeer) RemoveTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	sender, ok := p.senders[track]
	delete(p.senders, track)
	p.mu.Unlock()

	if !ok {
		return ErrUnknownTrack
	}
	return p.pc.RemoveTrack(sender)
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// OnTrack registers a callback for remote tracks.
func (p *pionPeer) OnTrack(fn func(Track)) {
	p.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogDebug("remote %s track arrived: %s", remote.Kind(), remote.ID())
		fn(remote)
	})
}

// OnNegotiationNeeded registers a callback for renegotiation requests.
func (p *pionPeer) OnNegotiationNeeded(fn func()) {
	p.pc.OnNegotiationNeeded(fn)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered.
func (p *pionPeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

// Close shuts down the PeerConnection and every transceiver it owns.
func (p *pionPeer) Close() error {
	return p.pc.Close()
}
