package rtc

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Meet/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// levelToMagnitude maps an RFC 6464 level (-dBov, 0 loudest) onto 0..255.
func levelToMagnitude(level uint8) float64 {
	return 255 * math.Pow(10, -float64(level)/20)
}

// remoteStream groups the tracks received from one participant and
// implements core.Metered from the audio level header extension.
type remoteStream struct {
	id string

	mu     sync.Mutex
	tracks []core.Track

	level atomic.Uint64
	live  atomic.Bool
}

var (
	_ core.Stream  = (*remoteStream)(nil)
	_ core.Metered = (*remoteStream)(nil)
)

func newRemoteStream(id string) *remoteStream {
	s := &remoteStream{id: id}
	s.live.Store(true)
	return s
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Tracks() []core.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Track(nil), s.tracks...)
}

// Stop stops consuming the remote media; the senders keep sending
// until the connection closes.
func (s *remoteStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
	s.live.Store(false)
}

func (s *remoteStream) AudioLevel() (float64, bool) {
	return math.Float64frombits(s.level.Load()), s.live.Load()
}

func (s *remoteStream) setLevel(v float64) {
	s.level.Store(math.Float64bits(v))
}

func (s *remoteStream) end() {
	s.live.Store(false)
	s.setLevel(0)
}

func (s *remoteStream) add(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) *remoteTrack {
	t := &remoteTrack{track: track, stream: s}
	t.enabled.Store(true)
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		for _, ext := range receiver.GetParameters().HeaderExtensions {
			if ext.URI == sdp.AudioLevelURI {
				t.levelExt = uint8(ext.ID)
			}
		}
	}
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
	return t
}

type remoteTrack struct {
	track    *webrtc.TrackRemote
	stream   *remoteStream
	levelExt uint8

	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded []func()
	ended   bool
}

func (t *remoteTrack) ID() string { return t.track.ID() }

func (t *remoteTrack) Kind() core.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		return core.TrackAudio
	}
	return core.TrackVideo
}

func (t *remoteTrack) Enabled() bool     { return t.enabled.Load() }
func (t *remoteTrack) SetEnabled(v bool) { t.enabled.Store(v) }
func (t *remoteTrack) Stop()             { t.stopped.Store(true) }

func (t *remoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// pump reads RTP until the track ends. Audio packets update the level.
func (t *remoteTrack) pump() {
	logger := log.With().Str("module", "rtc").Str("track_id", t.track.ID()).Logger()
	for {
		pkt, _, err := t.track.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			break
		}
		if t.levelExt == 0 || t.stopped.Load() {
			continue
		}
		t.meter(pkt)
	}

	if t.Kind() == core.TrackAudio {
		t.stream.end()
	}
	t.mu.Lock()
	t.ended = true
	fns := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (t *remoteTrack) meter(pkt *rtp.Packet) {
	payload := pkt.GetExtension(t.levelExt)
	if payload == nil {
		return
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(payload); err != nil {
		return
	}
	if !t.enabled.Load() {
		t.stream.setLevel(0)
		return
	}
	t.stream.setLevel(levelToMagnitude(ext.Level))
}

// requestKeyframe asks the sender for a fresh picture so rendering can start.
func (c *Connection) requestKeyframe(track *webrtc.TrackRemote) {
	err := c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
	if err != nil {
		c.logger.Warn().Err(err).Str("track_id", track.ID()).Msg("PLI not sent")
	}
}
