package media

import (
	"github.com/pion/sdp/v3"
)

// SDPInfo summarises what a session description negotiates.
type SDPInfo struct {
	HasAudio       bool
	HasVideo       bool
	HasDataChannel bool
}

// InspectSDP reports which media sections of raw are active. Sections with
// port 0 were rejected and do not count.
func InspectSDP(raw string) (SDPInfo, error) {
	var info SDPInfo
	desc := sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return info, err
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Port.Value == 0 {
			continue
		}
		switch md.MediaName.Media {
		case KindAudio:
			info.HasAudio = true
		case KindVideo:
			info.HasVideo = true
		case "application":
			info.HasDataChannel = true
		}
	}
	return info, nil
}
