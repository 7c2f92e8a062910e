package mock

import (
	"context"
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/google/uuid"
)

// Track is a fake capture track that counts its stops.
type Track struct {
	mu      sync.Mutex
	id      string
	kind    string
	enabled bool
	stops   int
}

func NewTrack(kind string) *Track {
	return &Track{id: uuid.New().String(), kind: kind, enabled: true}
}

func (t *Track) ID() string   { return t.id }
func (t *Track) Kind() string { return t.kind }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

// Stops reports how many times Stop was called.
func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Stream is a fake local stream.
type Stream struct {
	mu     sync.Mutex
	id     string
	tracks []*Track
	stops  int
}

func NewStream(c media.Constraints) *Stream {
	s := &Stream{id: uuid.New().String()}
	if c.Audio {
		s.tracks = append(s.tracks, NewTrack(media.KindAudio))
	}
	if c.Video {
		s.tracks = append(s.tracks, NewTrack(media.KindVideo))
	}
	return s
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []media.Track {
	out := make([]media.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// FakeTracks returns the concrete tracks for assertions.
func (s *Stream) FakeTracks() []*Track {
	return s.tracks
}

func (s *Stream) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	for _, t := range s.tracks {
		t.Stop()
	}
}

func (s *Stream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Engine hands out fake streams. Set Err to fail every request, or Gate to
// hold requests until it is closed.
type Engine struct {
	mu      sync.Mutex
	Err     error
	Gate    chan struct{}
	calls   int
	streams []*Stream
}

func (e *Engine) GetUserMedia(ctx context.Context, c media.Constraints) (media.Stream, error) {
	e.mu.Lock()
	e.calls++
	gate, err := e.Gate, e.Err
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	s := NewStream(c)
	e.mu.Lock()
	e.streams = append(e.streams, s)
	e.mu.Unlock()
	return s, nil
}

// Calls is the number of GetUserMedia requests received.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Streams returns every stream created so far.
func (e *Engine) Streams() []*Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Stream(nil), e.streams...)
}
