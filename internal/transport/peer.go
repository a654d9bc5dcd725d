package transport

import (
	"errors"
	"io"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sharelink/internal/util"
)

// DefaultSTUNServers are used when no STUN server is configured. No TURN: a
// link that cannot be established directly fails.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection gathering candidates against the
// given STUN servers. An empty list gathers host candidates only.
func newPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: stunServers},
		}
	}
	return webrtc.NewPeerConnection(config)
}

// drainRTCP reads and discards RTCP for an outbound track until the sender is
// stopped. Interceptors such as NACK only run while RTCP is being read.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				util.LogDebug("rtcp reader for %s stopped: %v", sender.Track().ID(), err)
			}
			return
		}
	}
}
