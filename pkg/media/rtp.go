package media

import "context"

// Track kinds.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Track is one local capture track.
type Track interface {
	ID() string
	Kind() string
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

// Stream is a set of local tracks acquired with one set of constraints.
type Stream interface {
	ID() string
	Tracks() []Track
	// Stop stops every track of the stream.
	Stop()
}

// Constraints are the acquisition parameters of a stream. They are compared
// with == to decide whether an existing stream can be shared.
type Constraints struct {
	Audio         bool
	Video         bool
	AudioDeviceID string
	VideoDeviceID string
	Width         int
	Height        int
	FrameRate     int
}

func (c Constraints) IsZero() bool {
	return c == Constraints{}
}

// Engine acquires local media from the platform. GetUserMedia may block until
// the user grants access; it returns an error wrapping ErrPermission or
// ErrDevice on failure.
type Engine interface {
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, constraints Constraints) (Stream, error)

func (f EngineFunc) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	return f(ctx, constraints)
}

// TracksOfKind filters the tracks of s by kind.
func TracksOfKind(s Stream, kind string) []Track {
	if s == nil {
		return nil
	}
	var out []Track
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}
