package mock

import (
	"time"

	"github.com/pixelbender/go-sdp/sdp"
)

var (
	host   = "127.0.0.1"
	Offer  *sdp.Session
	Answer *sdp.Session
)

func init() {
	Offer = newSession(4008)
	Answer = newSession(4010)
}

func newSession(port int) *sdp.Session {
	now := time.Now().UnixNano() / 1e6
	return &sdp.Session{
		Origin: &sdp.Origin{
			Username:       "-",
			Address:        host,
			SessionID:      now,
			SessionVersion: now,
		},
		Name:       "-",
		Timing:     &sdp.Timing{Start: time.Time{}, Stop: time.Time{}},
		Connection: &sdp.Connection{Address: host},
		Media: []*sdp.Media{
			{
				Connection: []*sdp.Connection{{Address: host}},
				Mode:       sdp.SendRecv,
				Type:       "audio",
				Port:       port,
				Proto:      "UDP/TLS/RTP/SAVPF",
				Format: []*sdp.Format{
					{Payload: 111, Name: "opus", ClockRate: 48000},
					{Payload: 0, Name: "PCMU", ClockRate: 8000},
				},
			},
		},
	}
}

// OfferSDP is the canned offer rendered as text.
func OfferSDP() string {
	return Offer.String()
}

// AnswerSDP is the canned answer rendered as text.
func AnswerSDP() string {
	return Answer.String()
}
