package webrtc

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v3"
	"github.com/tevino/abool"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const (
	audioFrame   = 20 * time.Millisecond
	audioSamples = 960
)

// Track is a synthetic capture track. Audio tracks send Opus silence while
// enabled; video tracks are negotiated but send nothing.
type Track struct {
	rtp     *pion.TrackLocalStaticRTP
	kind    string
	enabled abool.AtomicBool
	stopped abool.AtomicBool
	done    chan struct{}
}

func newTrack(kind, streamID string) (*Track, error) {
	local, err := pion.NewTrackLocalStaticRTP(capability(kind), fmt.Sprintf("%s-%s", kind, uuid.New().String()), streamID)
	if err != nil {
		return nil, fmt.Errorf("webrtc: new %s track: %w", kind, err)
	}
	t := &Track{rtp: local, kind: kind, done: make(chan struct{})}
	t.enabled.Set()
	if kind == media.KindAudio {
		go t.generate()
	}
	return t, nil
}

func (t *Track) ID() string {
	return t.rtp.ID()
}

func (t *Track) Kind() string {
	return t.kind
}

func (t *Track) Enabled() bool {
	return t.enabled.IsSet()
}

func (t *Track) SetEnabled(enabled bool) {
	t.enabled.SetTo(enabled)
}

func (t *Track) Stop() {
	if t.stopped.SetToIf(false, true) {
		close(t.done)
	}
}

func (t *Track) Stopped() bool {
	return t.stopped.IsSet()
}

func (t *Track) generate() {
	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadTypeOpus,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		Payload: opusSilence,
	}
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		packet.SequenceNumber++
		packet.Timestamp += audioSamples
		if !t.enabled.IsSet() {
			continue
		}
		// Writes without a bound peer connection are dropped.
		_ = t.rtp.WriteRTP(packet)
	}
}

// Stream groups the tracks acquired for one set of constraints.
type Stream struct {
	id     string
	tracks []media.Track
	once   sync.Once
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Tracks() []media.Track {
	return append([]media.Track(nil), s.tracks...)
}

func (s *Stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.Stop()
		}
	})
}

// Engine is a media.Engine with no capture hardware behind it. Device ids in
// the constraints are ignored.
type Engine struct {
	// Delay simulates the time a user takes to grant access.
	Delay time.Duration
}

func (e *Engine) GetUserMedia(ctx context.Context, constraints media.Constraints) (media.Stream, error) {
	if constraints.IsZero() {
		return nil, media.ErrNoConstraints
	}
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", media.ErrPermission, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrPermission, err)
	}

	s := &Stream{id: uuid.New().String()}
	var kinds []string
	if constraints.Audio {
		kinds = append(kinds, media.KindAudio)
	}
	if constraints.Video {
		kinds = append(kinds, media.KindVideo)
	}
	for _, kind := range kinds {
		t, err := newTrack(kind, s.id)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("%w: %v", media.ErrDevice, err)
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

var (
	_ media.Engine = (*Engine)(nil)
	_ media.Stream = (*Stream)(nil)
	_ media.Track  = (*Track)(nil)
)
