// Package capture opens the local camera, microphone and screen
// through pion/mediadevices.
package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Meet/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	VideoBitRate int
	Width        int
	Height       int
}

func (o *Options) defaults() {
	if o.VideoBitRate <= 0 {
		o.VideoBitRate = 1_500_000
	}
	if o.Width <= 0 {
		o.Width = 640
	}
	if o.Height <= 0 {
		o.Height = 480
	}
}

// Device implements core.Capture. Its codec selector must also populate
// the media engine of the peer connections, see MediaSetup.
type Device struct {
	opts     Options
	selector *mediadevices.CodecSelector
}

var _ core.Capture = (*Device)(nil)

// MediaSetup registers the codecs the captured tracks are encoded with.
func (d *Device) MediaSetup(me *webrtc.MediaEngine) error {
	if d.selector == nil {
		return me.RegisterDefaultCodecs()
	}
	d.selector.Populate(me)
	return nil
}

// open runs a blocking mediadevices call without outliving ctx. A stream
// that arrives after ctx ended is closed.
func open(ctx context.Context, label string, fn func() (mediadevices.MediaStream, error)) (mediadevices.MediaStream, error) {
	type result struct {
		ms  mediadevices.MediaStream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ms, err := fn()
		ch <- result{ms, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", label, r.err)
		}
		return r.ms, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				closeAll(r.ms)
			}
		}()
		return nil, ctx.Err()
	}
}

func closeAll(ms mediadevices.MediaStream) {
	for _, t := range ms.GetTracks() {
		_ = t.Close()
	}
}

// stream wraps a MediaStream. It meters its audio track.
type stream struct {
	id     string
	tracks []core.Track
	level  atomic.Uint64
	live   atomic.Bool
	once   sync.Once
}

var (
	_ core.Stream  = (*stream)(nil)
	_ core.Metered = (*stream)(nil)
)

func wrap(id string, ms mediadevices.MediaStream) *stream {
	s := &stream{id: id}
	s.live.Store(true)
	for _, mt := range ms.GetTracks() {
		t := newTrack(mt)
		switch src := mt.(type) {
		case *mediadevices.AudioTrack:
			src.Transform(gateAudio(&t.enabled, s.setLevel))
		case *mediadevices.VideoTrack:
			src.Transform(gateVideo(&t.enabled))
		}
		s.tracks = append(s.tracks, t)
	}
	log.Info().Str("module", "capture").Str("stream", id).Int("tracks", len(s.tracks)).Msg("local stream opened")
	return s
}

func (s *stream) ID() string           { return s.id }
func (s *stream) Tracks() []core.Track { return s.tracks }

func (s *stream) Stop() {
	s.once.Do(func() {
		s.live.Store(false)
		for _, t := range s.tracks {
			t.Stop()
		}
		log.Info().Str("module", "capture").Str("stream", s.id).Msg("local stream stopped")
	})
}

func (s *stream) AudioLevel() (float64, bool) {
	return math.Float64frombits(s.level.Load()), s.live.Load()
}

func (s *stream) setLevel(v float64) { s.level.Store(math.Float64bits(v)) }

// track adapts a mediadevices.Track; it is also the pion TrackLocal.
type track struct {
	mt      mediadevices.Track
	enabled atomic.Bool

	mu      sync.Mutex
	onEnded []func()
	ended   bool
}

func newTrack(mt mediadevices.Track) *track {
	t := &track{mt: mt}
	t.enabled.Store(true)
	mt.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "capture").Str("track", mt.ID()).Msg("local track ended")
		}
		t.end()
	})
	return t
}

func (t *track) ID() string { return t.mt.ID() }

func (t *track) Kind() core.TrackKind {
	if t.mt.Kind() == webrtc.RTPCodecTypeAudio {
		return core.TrackAudio
	}
	return core.TrackVideo
}

func (t *track) Enabled() bool                 { return t.enabled.Load() }
func (t *track) SetEnabled(v bool)             { t.enabled.Store(v) }
func (t *track) TrackLocal() webrtc.TrackLocal { return t.mt }

func (t *track) Stop() {
	if err := t.mt.Close(); err != nil {
		log.Debug().Err(err).Str("module", "capture").Str("track", t.mt.ID()).Msg("close track")
	}
}

func (t *track) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *track) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// gateAudio reports the level of every chunk and replaces the chunk
// with silence while the track is disabled.
func gateAudio(enabled *atomic.Bool, report func(float64)) audio.TransformFunc {
	return func(r audio.Reader) audio.Reader {
		return audio.ReaderFunc(func() (wave.Audio, func(), error) {
			chunk, release, err := r.Read()
			if err != nil {
				return chunk, release, err
			}
			if !enabled.Load() {
				report(0)
				return silence(chunk), release, nil
			}
			report(chunkLevel(chunk))
			return chunk, release, nil
		})
	}
}

// chunkLevel is the RMS of the chunk scaled onto 0..255.
func chunkLevel(a wave.Audio) float64 {
	var sum float64
	var n int
	switch c := a.(type) {
	case *wave.Int16Interleaved:
		for _, v := range c.Data {
			f := float64(v) / 32768
			sum += f * f
		}
		n = len(c.Data)
	case *wave.Float32Interleaved:
		for _, v := range c.Data {
			sum += float64(v) * float64(v)
		}
		n = len(c.Data)
	}
	if n == 0 {
		return 0
	}
	return math.Min(255, math.Sqrt(sum/float64(n))*255)
}

func silence(a wave.Audio) wave.Audio {
	switch a.(type) {
	case *wave.Int16Interleaved:
		return wave.NewInt16Interleaved(a.ChunkInfo())
	case *wave.Float32Interleaved:
		return wave.NewFloat32Interleaved(a.ChunkInfo())
	}
	return a
}

// gateVideo sends black frames of the same size while the track is disabled.
func gateVideo(enabled *atomic.Bool) video.TransformFunc {
	return func(r video.Reader) video.Reader {
		var blank image.Image
		return video.ReaderFunc(func() (image.Image, func(), error) {
			img, release, err := r.Read()
			if err != nil || enabled.Load() {
				return img, release, err
			}
			if blank == nil || blank.Bounds() != img.Bounds() {
				blank = black(img.Bounds())
			}
			return blank, release, nil
		})
	}
}

func black(r image.Rectangle) image.Image {
	img := image.NewYCbCr(r, image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 16
	}
	for i := range img.Cb {
		img.Cb[i] = 128
		img.Cr[i] = 128
	}
	return img
}
