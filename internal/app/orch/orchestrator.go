package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/layout"
	"github.com/dkeye/Meet/internal/app/media"
	"github.com/dkeye/Meet/internal/app/peer"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotJoined     = errors.New("not joined")
	ErrAlreadyJoined = errors.New("already joined")
)

// Orchestrator is the session of the local participant in one room.
// Every unexported method runs on Loop; the exported commands in
// orchestrator_commands.go are safe from any goroutine.
type Orchestrator struct {
	Room     domain.Room
	Username string
	Gateway  core.Gateway
	Render   core.Renderer
	Policy   app.Policy
	Loop     *app.Loop

	Roster  *core.Roster
	Links   *peer.Links
	Media   *media.Controller
	Layout  *layout.Engine
	Sampler *layout.Sampler

	ctx    context.Context
	joined bool
	left   bool
}

type Params struct {
	Room           domain.Room
	Username       string
	Gateway        core.Gateway
	Conns          core.ConnFactory
	Capture        core.Capture
	Renderer       core.Renderer
	Policy         app.Policy
	Loop           *app.Loop
	ConnectTimeout time.Duration
	Sampling       layout.SamplerConfig
	Constraints    core.Constraints
}

// New wires the session components. ctx bounds the sampling tasks.
func New(ctx context.Context, p Params) *Orchestrator {
	o := &Orchestrator{
		Room:     p.Room,
		Username: p.Username,
		Gateway:  p.Gateway,
		Render:   p.Renderer,
		Policy:   p.Policy,
		Loop:     p.Loop,
		Roster:   core.NewRoster(),
		ctx:      ctx,
	}
	if o.Render == nil {
		o.Render = core.Renderers{}
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	if o.Loop == nil {
		o.Loop = app.NewLoop()
	}

	// The layout engine observes the roster before the orchestrator so
	// every render sees the recomputed arrangement.
	o.Layout = layout.NewEngine(o.Roster)
	o.Roster.Observe(o)

	o.Links = peer.NewLinks(p.Conns, o.post, o, p.ConnectTimeout)
	o.Sampler = layout.NewSampler(p.Sampling, func(id domain.UserID, src core.Metered, speaking bool) {
		o.post(func() { o.setSpeaking(id, src, speaking) })
	})
	o.Media = media.NewController(media.Options{
		Room:        p.Room,
		Username:    p.Username,
		Capture:     p.Capture,
		Gateway:     p.Gateway,
		Links:       o.Links,
		Roster:      o.Roster,
		Post:        o.post,
		Constraints: p.Constraints,
	})
	o.Media.ScreenEnded = o.onScreenShareResult
	return o
}

func (o *Orchestrator) post(fn func()) {
	if !o.Loop.Post(fn) {
		log.Debug().Str("module", "orch").Msg("loop closed, task dropped")
	}
}

func (o *Orchestrator) active() bool { return o.joined && !o.left }

// HandleGatewayEvent dispatches one gateway event. Runs on the loop.
func (o *Orchestrator) HandleGatewayEvent(ev core.GatewayEvent) {
	if !o.active() {
		log.Debug().Str("module", "orch").Type("event", ev).Msg("event outside the room ignored")
		return
	}
	switch e := ev.(type) {
	case core.RoomInfo:
		o.onRoomInfo(e)
	case core.UserJoined:
		o.onUserJoined(e)
	case core.UserLeft:
		o.onUserLeft(e)
	case core.SignalReceived:
		o.onSignal(e)
	case core.MediaStateChanged:
		o.onMediaState(e)
	case core.ScreenShareChanged:
		o.onScreenShare(e)
	case core.ChatReceived:
		name := e.Username
		if name == "" {
			name = o.displayName(e.From)
		}
		o.notify(core.NoticeChat, e.From, "%s: %s", name, e.Text)
	case core.GatewayError:
		o.notify(core.NoticeTransport, "", "signaling error: %s", e.Message)
	case core.Disconnected:
		o.notify(core.NoticeTransport, "", "signaling connection lost")
		log.Warn().Err(e.Err).Str("module", "orch").Msg("gateway disconnected")
	}
}

// View builds the snapshot handed to renderers.
func (o *Orchestrator) view() core.View {
	ps := o.Roster.All()
	pin := o.Layout.Spotlight()
	tiles := make([]core.Tile, 0, len(ps))
	for _, p := range ps {
		tiles = append(tiles, core.Tile{
			Participant: p,
			Speaking:    o.Layout.Speaking(p.ID),
			Placeholder: !p.VideoEnabled,
			Pinned:      p.ID == pin,
		})
	}
	return core.View{
		Room:        o.Room.Token,
		Self:        o.Room.LocalID,
		Joined:      o.active(),
		Count:       len(ps),
		Arrangement: o.Layout.Arrangement(),
		Tiles:       tiles,
	}
}

func (o *Orchestrator) render() {
	o.Render.Render(o.view())
}

func (o *Orchestrator) notify(kind core.NoticeKind, peer domain.UserID, format string, args ...any) {
	n := core.Notice{Kind: kind, Peer: peer, Text: fmt.Sprintf(format, args...), At: time.Now()}
	log.Info().Str("module", "orch").Str("kind", kind.String()).Str("peer", string(peer)).Msg(n.Text)
	o.Render.Notify(n)
}
