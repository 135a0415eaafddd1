package rtc

import (
	"github.com/dkeye/Rendezvous/internal/config"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

// ICEServers turns configured STUN/TURN entries into the shape browsers
// pass to RTCPeerConnection. Entries without URLs are skipped.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	return lo.FilterMap(servers, func(s config.ICEServer, _ int) (webrtc.ICEServer, bool) {
		if len(s.URLs) == 0 {
			return webrtc.ICEServer{}, false
		}
		out := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			out.Username = s.Username
			out.Credential = s.Credential
			out.CredentialType = webrtc.ICECredentialTypePassword
		}
		return out, true
	})
}
