package webrtc

import (
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	pion "github.com/pion/webrtc/v3"
)

const (
	mimeTypeH264 = "video/h264"

	payloadTypePCMU = 0
	payloadTypeOpus = 111
	payloadTypeVP8  = 96
	payloadTypeH264 = 125
)

// Config tunes the pion API shared by every peer connection of a client.
type Config struct {
	// ICEServers are used by every session in addition to the servers of the
	// local profile.
	ICEServers []media.ICEServer
	// When either bound is set, every peer connection shares one UDP port
	// picked from [UDPPortMin, UDPPortMax].
	UDPPortMin uint16
	UDPPortMax uint16
	// NAT1To1IPs are advertised as host candidates when set.
	NAT1To1IPs []string
}

var audioCodecs = []pion.RTPCodecParameters{
	{
		RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		PayloadType:        payloadTypeOpus,
	},
	{
		RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		PayloadType:        payloadTypePCMU,
	},
}

var videoRTCPFeedback = []pion.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

var videoCodecs = []pion.RTPCodecParameters{
	{
		RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000, RTCPFeedback: videoRTCPFeedback},
		PayloadType:        payloadTypeVP8,
	},
	{
		RTPCodecCapability: pion.RTPCodecCapability{MimeType: mimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", RTCPFeedback: videoRTCPFeedback},
		PayloadType:        payloadTypeH264,
	},
}

// capability is the codec local tracks of kind are sent with.
func capability(kind string) pion.RTPCodecCapability {
	if kind == media.KindVideo {
		return videoCodecs[0].RTPCodecCapability
	}
	return audioCodecs[0].RTPCodecCapability
}

func iceServers(lists ...[]media.ICEServer) []pion.ICEServer {
	var out []pion.ICEServer
	for _, list := range lists {
		for _, s := range list {
			server := pion.ICEServer{URLs: s.URLs, Username: s.Username}
			if s.Credential != "" {
				server.Credential = s.Credential
				server.CredentialType = pion.ICECredentialTypePassword
			}
			out = append(out, server)
		}
	}
	return out
}
