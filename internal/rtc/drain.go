package rtc

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/util"
)

// RTPReader is the read side of a remote track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

var _ RTPReader = (*webrtc.TrackRemote)(nil)

// Drain reads and discards RTP packets from track until it ends or ctx is
// cancelled, counting each one. It returns immediately for tracks that
// cannot be read (local tracks, fakes).
//
// pion's receive interceptors only run while the track is being read.
func Drain(ctx context.Context, track Track) {
	r, ok := track.(RTPReader)
	if !ok {
		return
	}

	for ctx.Err() == nil {
		if _, _, err := r.ReadRTP(); err != nil {
			util.LogDebug("remote %s track %s ended: %v", track.Kind(), track.ID(), err)
			return
		}
		util.Stats.AddPacket()
	}
}
