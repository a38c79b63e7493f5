// Package coretest provides recording fakes of the core ports for tests.
package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/core"
)

type Track struct {
	mu      sync.Mutex
	id      string
	kind    core.TrackKind
	enabled bool
	stopped bool
	onEnded []func()
}

func NewTrack(id string, kind core.TrackKind) *Track {
	return &Track{id: id, kind: kind, enabled: true}
}

func (t *Track) ID() string           { return t.id }
func (t *Track) Kind() core.TrackKind { return t.kind }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// End simulates the source ending on its own.
func (t *Track) End() {
	t.mu.Lock()
	fns := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Stream is a fake stream that also implements core.Metered.
type Stream struct {
	mu     sync.Mutex
	id     string
	tracks []core.Track
	level  float64
	live   bool
	stops  int
}

func NewStream(id string, tracks ...core.Track) *Stream {
	return &Stream{id: id, tracks: tracks, live: true}
}

// NewAVStream returns a stream with one audio and one video track.
func NewAVStream(id string) *Stream {
	return NewStream(id, NewTrack(id+"-audio", core.TrackAudio), NewTrack(id+"-video", core.TrackVideo))
}

func (s *Stream) ID() string           { return s.id }
func (s *Stream) Tracks() []core.Track { return s.tracks }

func (s *Stream) Stop() {
	s.mu.Lock()
	s.stops++
	s.live = false
	tracks := s.tracks
	s.mu.Unlock()
	for _, t := range tracks {
		t.Stop()
	}
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops > 0
}

func (s *Stream) SetLevel(level float64) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *Stream) AudioLevel() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.live
}

func (s *Stream) Video() *Track { return core.VideoTrack(s).(*Track) }
func (s *Stream) Audio() *Track { return core.AudioTrack(s).(*Track) }

type Capture struct {
	mu           sync.Mutex
	User         core.Stream
	Display      core.Stream
	UserErr      error
	DisplayErr   error
	UserCalls    int
	DisplayCalls int

	// DisplayGate, when set, holds DisplayMedia until it is closed.
	// DisplayEntered gets a value each time a call starts waiting.
	DisplayGate    chan struct{}
	DisplayEntered chan struct{}
}

func (c *Capture) UserMedia(_ context.Context, _ core.Constraints) (core.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UserCalls++
	if c.UserErr != nil {
		return nil, c.UserErr
	}
	return c.User, nil
}

func (c *Capture) DisplayMedia(ctx context.Context, _ core.Constraints) (core.Stream, error) {
	if c.DisplayGate != nil {
		if c.DisplayEntered != nil {
			c.DisplayEntered <- struct{}{}
		}
		select {
		case <-c.DisplayGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisplayCalls++
	if c.DisplayErr != nil {
		return nil, c.DisplayErr
	}
	return c.Display, nil
}
