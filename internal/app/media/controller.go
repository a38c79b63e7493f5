package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/app/peer"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrAlreadySharing = errors.New("already sharing screen")

// Source selects which local video goes out on every link.
type Source int

const (
	SourceCamera Source = iota
	SourceScreen
)

func (s Source) String() string {
	if s == SourceScreen {
		return "screen"
	}
	return "camera"
}

type LinkSet interface {
	Connected() []*peer.Link
}

// State is a read-only snapshot of the local media.
type State struct {
	Selected     Source
	AudioEnabled bool
	VideoEnabled bool
	HasCamera    bool
}

// Controller owns local capture and the outgoing video selector.
// Apart from Preflight and AcquireScreen it is confined to the session loop.
type Controller struct {
	room        domain.Room
	username    string
	capture     core.Capture
	gateway     core.Gateway
	links       LinkSet
	roster      *core.Roster
	post        func(func())
	constraints core.Constraints

	camera   core.Stream
	screen   core.Stream
	selected Source
	audioOn  bool
	videoOn  bool

	// ScreenEnded runs on the loop after the capture source ended by itself.
	ScreenEnded func(Report, error)
}

type Options struct {
	Room        domain.Room
	Username    string
	Capture     core.Capture
	Gateway     core.Gateway
	Links       LinkSet
	Roster      *core.Roster
	Post        func(func())
	Constraints core.Constraints
}

func NewController(o Options) *Controller {
	c := o.Constraints
	if !c.Audio && !c.Video {
		c.Audio, c.Video = true, true
	}
	return &Controller{
		room:        o.Room,
		username:    o.Username,
		capture:     o.Capture,
		gateway:     o.Gateway,
		links:       o.Links,
		roster:      o.Roster,
		post:        o.Post,
		constraints: c,
	}
}

// Preflight opens camera and microphone. Safe to call off the loop.
func (c *Controller) Preflight(ctx context.Context) (core.Stream, error) {
	s, err := c.capture.UserMedia(ctx, c.constraints)
	if err != nil {
		return nil, fmt.Errorf("acquire camera: %w", err)
	}
	return s, nil
}

// AcquireScreen opens the display source. Safe to call off the loop.
func (c *Controller) AcquireScreen(ctx context.Context) (core.Stream, error) {
	s, err := c.capture.DisplayMedia(ctx, core.Constraints{Video: true})
	if err != nil {
		return nil, fmt.Errorf("acquire screen: %w", err)
	}
	if core.VideoTrack(s) == nil {
		s.Stop()
		return nil, fmt.Errorf("acquire screen: %w", core.ErrNoCaptureDevice)
	}
	return s, nil
}

// UseCamera installs the preflight result. A nil stream leaves the
// participant with audio and video disabled.
func (c *Controller) UseCamera(s core.Stream) {
	if c.camera != nil && c.camera != s {
		c.camera.Stop()
	}
	c.camera = s
	c.audioOn = core.AudioTrack(s) != nil
	c.videoOn = core.VideoTrack(s) != nil
	log.Info().Str("module", "media").Bool("audio", c.audioOn).Bool("video", c.videoOn).Msg("local media ready")
}

func (c *Controller) State() State {
	return State{
		Selected:     c.selected,
		AudioEnabled: c.audioOn,
		VideoEnabled: c.videoOn,
		HasCamera:    c.camera != nil,
	}
}

// Outgoing is the stream new links are created with. It always carries
// the microphone; the video is reconciled once the link connects.
func (c *Controller) Outgoing() core.Stream { return c.camera }

// OutgoingVideo is the video track every connected link should carry.
func (c *Controller) OutgoingVideo() (core.Track, core.Stream) {
	if c.selected == SourceScreen {
		return core.VideoTrack(c.screen), c.screen
	}
	return core.VideoTrack(c.camera), c.camera
}

func (c *Controller) ToggleAudio() (bool, error) {
	return c.toggle(domain.FlagAudio, core.AudioTrack(c.camera), &c.audioOn)
}

func (c *Controller) ToggleVideo() (bool, error) {
	return c.toggle(domain.FlagVideo, core.VideoTrack(c.camera), &c.videoOn)
}

// toggle flips the track in place, so no link needs renegotiation.
func (c *Controller) toggle(flag domain.MediaFlag, t core.Track, on *bool) (bool, error) {
	if t == nil {
		return *on, fmt.Errorf("toggle %s: %w", flag, core.ErrNoCaptureDevice)
	}
	*on = !*on
	t.SetEnabled(*on)
	c.roster.SetMediaFlag(c.room.LocalID, flag, *on)
	log.Info().Str("module", "media").Str("flag", flag.String()).Bool("enabled", *on).Msg("local toggle")
	if err := c.gateway.SendMediaState(c.room, flag, *on); err != nil {
		return *on, fmt.Errorf("announce %s: %w", flag, err)
	}
	return *on, nil
}

// StartScreenShare switches every connected link to the screen stream.
// Sharing starts once the capture succeeded, whatever the per-link outcome.
func (c *Controller) StartScreenShare(s core.Stream) (Report, error) {
	if c.selected == SourceScreen {
		s.Stop()
		return Report{}, ErrAlreadySharing
	}
	vt := core.VideoTrack(s)
	if vt == nil {
		s.Stop()
		return Report{}, fmt.Errorf("start screen share: %w", core.ErrNoCaptureDevice)
	}
	c.screen = s
	c.selected = SourceScreen
	vt.OnEnded(func() {
		c.post(func() {
			if c.screen != s {
				return
			}
			log.Info().Str("module", "media").Msg("screen capture ended by source")
			rep, err := c.StopScreenShare()
			if c.ScreenEnded != nil {
				c.ScreenEnded(rep, err)
			}
		})
	})

	rep := c.substitute(vt, s)
	c.roster.SetMediaFlag(c.room.LocalID, domain.FlagScreen, true)
	log.Info().Str("module", "media").Int("applied", len(rep.Applied)).Int("failed", len(rep.Failed)).Msg("screen share started")
	if err := c.gateway.SendScreenShare(c.room, c.username, true); err != nil {
		return rep, fmt.Errorf("announce screen share: %w", err)
	}
	return rep, nil
}

// StopScreenShare restores the camera on every connected link.
// It is a no-op when nothing is being shared.
func (c *Controller) StopScreenShare() (Report, error) {
	if c.selected != SourceScreen {
		return Report{}, nil
	}
	s := c.screen
	c.screen = nil
	c.selected = SourceCamera
	s.Stop()

	var rep Report
	if cam := core.VideoTrack(c.camera); cam != nil {
		rep = c.substitute(cam, c.camera)
	}
	c.roster.SetMediaFlag(c.room.LocalID, domain.FlagScreen, false)
	log.Info().Str("module", "media").Int("applied", len(rep.Applied)).Int("failed", len(rep.Failed)).Msg("screen share stopped")
	if err := c.gateway.SendScreenShare(c.room, c.username, false); err != nil {
		return rep, fmt.Errorf("announce screen share: %w", err)
	}
	return rep, nil
}

func (c *Controller) substitute(t core.Track, owner core.Stream) Report {
	rep := Report{}
	for _, l := range c.links.Connected() {
		if err := l.SendVideo(t, owner); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("peer", string(l.Remote)).Msg("track substitution failed")
			rep.fail(l.Remote, err)
			continue
		}
		rep.Applied = append(rep.Applied, l.Remote)
	}
	return rep
}

// Reconcile brings a freshly connected link in line with the selector.
func (c *Controller) Reconcile(l *peer.Link) error {
	t, owner := c.OutgoingVideo()
	if t == nil || l.Video() == t {
		return nil
	}
	return l.SendVideo(t, owner)
}

// Release stops every local track.
func (c *Controller) Release() {
	if c.screen != nil {
		c.screen.Stop()
		c.screen = nil
	}
	if c.camera != nil {
		c.camera.Stop()
		c.camera = nil
	}
	c.selected = SourceCamera
	c.audioOn, c.videoOn = false, false
}
