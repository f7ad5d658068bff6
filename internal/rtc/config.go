package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/util"
)

// DefaultICEServers are used when Config.ICEServers is empty. No TURN: the
// demo targets direct P2P connectivity.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config configures a new PeerConnection.
type Config struct {
	ICEServers []string
}

// newAPI builds a pion API with the default codecs registered and pion's
// internal logging routed through util.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	s := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)), nil
}

func (c Config) configuration() webrtc.Configuration {
	urls := c.ICEServers
	if len(urls) == 0 {
		urls = DefaultICEServers
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: urls},
		},
	}
}
