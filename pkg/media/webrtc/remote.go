package webrtc

import (
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	pion "github.com/pion/webrtc/v3"
	"github.com/tevino/abool"
)

// RemoteTrack is a track received from the remote side. Its packets are read
// and dropped until Stop; Enabled is left to the application.
type RemoteTrack struct {
	track   *pion.TrackRemote
	enabled abool.AtomicBool
	stopped abool.AtomicBool
}

func newRemoteTrack(track *pion.TrackRemote) *RemoteTrack {
	t := &RemoteTrack{track: track}
	t.enabled.Set()
	return t
}

func (t *RemoteTrack) ID() string                { return t.track.ID() }
func (t *RemoteTrack) Kind() string              { return t.track.Kind().String() }
func (t *RemoteTrack) Enabled() bool             { return t.enabled.IsSet() }
func (t *RemoteTrack) SetEnabled(enabled bool)   { t.enabled.SetTo(enabled) }
func (t *RemoteTrack) Stop()                     { t.stopped.Set() }
func (t *RemoteTrack) Stopped() bool             { return t.stopped.IsSet() }
func (t *RemoteTrack) Remote() *pion.TrackRemote { return t.track }

// RemoteStream groups the remote tracks sharing a stream id.
type RemoteStream struct {
	id     string
	mu     sync.Mutex
	tracks []*RemoteTrack
}

func (s *RemoteStream) ID() string { return s.id }

func (s *RemoteStream) Tracks() []media.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]media.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *RemoteStream) Stop() {
	s.mu.Lock()
	tracks := s.tracks
	s.mu.Unlock()
	for _, t := range tracks {
		t.Stop()
	}
}

func (s *RemoteStream) add(t *RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

var _ media.Stream = (*RemoteStream)(nil)
