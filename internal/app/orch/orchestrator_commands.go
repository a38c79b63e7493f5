package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Meet/internal/app/media"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrEmptyMessage = errors.New("empty message")

// do runs fn on the loop and returns its error.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	var err error
	if doErr := o.Loop.Do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// OnGatewayEvent queues ev for the loop. The gateway adapter calls it
// from its read goroutine.
func (o *Orchestrator) OnGatewayEvent(ev core.GatewayEvent) {
	o.post(func() { o.HandleGatewayEvent(ev) })
}

// Dispatch handles ev on the loop and waits for it.
func (o *Orchestrator) Dispatch(ctx context.Context, ev core.GatewayEvent) error {
	return o.do(ctx, func() error {
		o.HandleGatewayEvent(ev)
		return nil
	})
}

// Sync waits until every task queued before it has run.
func (o *Orchestrator) Sync(ctx context.Context) error {
	return o.Loop.Do(ctx, func() {})
}

// Join runs the media preflight and enters the room. A failed preflight
// does not block entry; the participant joins with audio and video off.
func (o *Orchestrator) Join(ctx context.Context) error {
	stream, capErr := o.Media.Preflight(ctx)
	err := o.do(ctx, func() error { return o.join(stream, capErr) })
	if err != nil && stream != nil && errors.Is(err, ErrAlreadyJoined) {
		stream.Stop()
	}
	return err
}

func (o *Orchestrator) join(stream core.Stream, capErr error) error {
	if o.joined {
		return ErrAlreadyJoined
	}
	o.joined = true

	if capErr != nil {
		log.Warn().Err(capErr).Str("module", "orch").Msg("preflight failed, joining without media")
		o.notify(core.NoticeMedia, o.Room.LocalID, "camera and microphone unavailable")
		stream = nil
	}
	o.Media.UseCamera(stream)
	st := o.Media.State()
	o.Roster.Upsert(domain.Participant{
		ID:           o.Room.LocalID,
		DisplayName:  o.Username,
		AudioEnabled: st.AudioEnabled,
		VideoEnabled: st.VideoEnabled,
		Local:        true,
	})
	if m, ok := stream.(core.Metered); ok {
		o.Sampler.Start(o.ctx, o.Room.LocalID, m)
	}

	log.Info().Str("module", "orch").Str("room", string(o.Room.Token)).Str("user", string(o.Room.LocalID)).Msg("joining room")
	if err := o.Gateway.JoinRoom(o.Room, o.Username); err != nil {
		o.notify(core.NoticeTransport, "", "could not reach the signaling service")
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// Leave tears everything down in one loop task. It is idempotent.
func (o *Orchestrator) Leave(ctx context.Context) error {
	return o.do(ctx, func() error {
		o.leave()
		return nil
	})
}

func (o *Orchestrator) leave() {
	if !o.active() {
		return
	}
	o.left = true

	o.Links.CloseAll()
	o.Sampler.StopAll()
	o.Media.Release()
	if err := o.Gateway.LeaveRoom(o.Room); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("leave_room not delivered")
	}
	for _, p := range o.Roster.All() {
		o.Render.DetachStream(p.ID)
	}
	o.Roster.Reset()
	o.Layout.Reset()
	log.Info().Str("module", "orch").Str("room", string(o.Room.Token)).Msg("left room")
	o.render()
}

// Pin toggles the spotlight on id.
func (o *Orchestrator) Pin(ctx context.Context, id domain.UserID) (core.Arrangement, error) {
	var arr core.Arrangement
	err := o.do(ctx, func() error {
		if !o.active() {
			return ErrNotJoined
		}
		arr = o.Layout.Pin(id)
		o.render()
		return nil
	})
	return arr, err
}

func (o *Orchestrator) ToggleAudio(ctx context.Context) (bool, error) {
	return o.toggle(ctx, domain.FlagAudio, o.Media.ToggleAudio)
}

func (o *Orchestrator) ToggleVideo(ctx context.Context) (bool, error) {
	return o.toggle(ctx, domain.FlagVideo, o.Media.ToggleVideo)
}

func (o *Orchestrator) toggle(ctx context.Context, flag domain.MediaFlag, fn func() (bool, error)) (bool, error) {
	var on bool
	err := o.do(ctx, func() error {
		if !o.active() {
			return ErrNotJoined
		}
		var err error
		on, err = fn()
		o.afterToggle(flag, err)
		return err
	})
	return on, err
}

// StartScreenShare captures the display off the loop, then switches links.
func (o *Orchestrator) StartScreenShare(ctx context.Context) (media.Report, error) {
	err := o.do(ctx, func() error {
		if !o.active() {
			return ErrNotJoined
		}
		if o.Media.State().Selected == media.SourceScreen {
			return media.ErrAlreadySharing
		}
		return nil
	})
	if err != nil {
		return media.Report{}, err
	}

	stream, err := o.Media.AcquireScreen(ctx)
	if err != nil {
		_ = o.do(ctx, func() error {
			o.notify(core.NoticeMedia, o.Room.LocalID, "screen capture failed")
			return nil
		})
		return media.Report{}, err
	}

	var rep media.Report
	applied := make(chan struct{})
	err = o.do(ctx, func() error {
		defer close(applied)
		if !o.active() {
			stream.Stop()
			return ErrNotJoined
		}
		var err error
		rep, err = o.Media.StartScreenShare(stream)
		if errors.Is(err, media.ErrAlreadySharing) {
			return err
		}
		o.onScreenShareResult(rep, err)
		return err
	})
	select {
	case <-applied:
		return rep, err
	default:
		// Cancelled before the loop got to it; the task still owns the stream.
		return media.Report{}, err
	}
}

func (o *Orchestrator) StopScreenShare(ctx context.Context) (media.Report, error) {
	var rep media.Report
	err := o.do(ctx, func() error {
		if !o.active() {
			return ErrNotJoined
		}
		var err error
		rep, err = o.Media.StopScreenShare()
		o.onScreenShareResult(rep, err)
		return err
	})
	return rep, err
}

func (o *Orchestrator) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return o.do(ctx, func() error {
		if !o.active() {
			return ErrNotJoined
		}
		if err := o.Gateway.SendChat(o.Room, text); err != nil {
			return fmt.Errorf("send chat: %w", err)
		}
		return nil
	})
}

// View returns the current snapshot.
func (o *Orchestrator) View(ctx context.Context) (core.View, error) {
	var v core.View
	err := o.do(ctx, func() error {
		v = o.view()
		return nil
	})
	return v, err
}
