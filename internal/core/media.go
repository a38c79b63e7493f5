package core

import (
	"context"
	"errors"
)

var (
	ErrNoCaptureDevice = errors.New("no capture device")
	ErrStreamEnded     = errors.New("stream ended")
)

type TrackKind int

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	if k == TrackVideo {
		return "video"
	}
	return "audio"
}

// Track is one local or remote media track.
// Disabling a track keeps it negotiated and sends silence or black frames.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	Stop()
	// OnEnded registers fn to run once when the source ends on its own,
	// e.g. the user closes the screen picker. Stop does not trigger it.
	OnEnded(fn func())
}

type Stream interface {
	ID() string
	Tracks() []Track
	Stop()
}

// Metered is implemented by streams that can report an audio magnitude
// on a 0..255 scale. live is false once the stream has been released.
type Metered interface {
	AudioLevel() (level float64, live bool)
}

// Constraints select what a capture request should produce.
type Constraints struct {
	Audio    bool
	Video    bool
	DeviceID string
	Width    int
	Height   int
}

// Capture acquires local media. Both calls may block on a permission
// prompt or device open and honour ctx.
type Capture interface {
	UserMedia(ctx context.Context, c Constraints) (Stream, error)
	DisplayMedia(ctx context.Context, c Constraints) (Stream, error)
}

func firstTrack(s Stream, kind TrackKind) Track {
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// AudioTrack returns the first audio track of s, or nil.
func AudioTrack(s Stream) Track { return firstTrack(s, TrackAudio) }

// VideoTrack returns the first video track of s, or nil.
func VideoTrack(s Stream) Track { return firstTrack(s, TrackVideo) }
