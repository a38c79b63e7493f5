package orch

import (
	"errors"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/peer"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onSignal(e core.SignalReceived) {
	logger := log.With().Str("module", "orch").Str("peer", string(e.From)).Str("kind", e.Signal.Kind().String()).Logger()
	if e.From == "" || o.isSelf(e.From) {
		logger.Debug().Msg("signal without remote sender dropped")
		return
	}
	if e.To != "" && !o.isSelf(e.To) {
		logger.Warn().Str("to", string(e.To)).Msg("signal for someone else dropped")
		return
	}

	l := o.Links.Get(e.From)
	if l == nil {
		if _, ok := e.Signal.(core.Offer); !ok {
			logger.Warn().Msg("signal for unknown link dropped")
			return
		}
		if !o.Roster.Has(e.From) {
			o.Roster.Upsert(domain.NewParticipant(e.From, ""))
		}
		if !o.openLink(e.From, false) {
			return
		}
		l = o.Links.Get(e.From)
	}

	if err := l.Deliver(e.Signal); err != nil {
		if errors.Is(err, peer.ErrUnexpectedSignal) || errors.Is(err, peer.ErrLinkClosed) {
			logger.Warn().Err(err).Str("state", l.State().String()).Msg("signal dropped")
			return
		}
		o.Fault(l, err)
	}
}

// Forward relays a locally produced signal to the remote participant.
func (o *Orchestrator) Forward(l *peer.Link, sig core.Signal) {
	if err := o.Gateway.SendSignal(l.Remote, o.Room.LocalID, sig); err != nil {
		o.Fault(l, peer.NewLinkError("send-"+sig.Kind().String(), l.Remote, err))
	}
}

func (o *Orchestrator) Connected(l *peer.Link) {
	if err := o.Media.Reconcile(l); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("peer", string(l.Remote)).Msg("reconcile outgoing video")
		o.notify(core.NoticeSubstitution, l.Remote, "could not switch video for %s", o.displayName(l.Remote))
	}
	o.render()
}

func (o *Orchestrator) Stream(l *peer.Link, s core.Stream) {
	log.Info().Str("module", "orch").Str("peer", string(l.Remote)).Str("stream", s.ID()).Msg("remote stream attached")
	o.Render.AttachStream(l.Remote, s)
	if m, ok := s.(core.Metered); ok {
		o.Sampler.Start(o.ctx, l.Remote, m)
	}
	o.render()
}

func (o *Orchestrator) Fault(l *peer.Link, err error) {
	action := o.Policy.OnFault(l.Remote, err)
	log.Warn().Err(err).Str("module", "orch").Str("peer", string(l.Remote)).Int("action", int(action)).Msg("link fault")
	if action != app.CloseLink {
		o.notify(core.NoticeTransport, l.Remote, "signaling to %s interrupted", o.displayName(l.Remote))
		return
	}
	o.notify(core.NoticeTransport, l.Remote, "connection to %s lost", o.displayName(l.Remote))
	o.dropLink(l)
}

func (o *Orchestrator) Closed(l *peer.Link) {
	log.Info().Str("module", "orch").Str("peer", string(l.Remote)).Msg("connection closed by remote")
	o.dropLink(l)
}

// dropLink removes the participant behind l; the roster hook closes the link.
// A later join recreates both.
func (o *Orchestrator) dropLink(l *peer.Link) {
	if o.Links.Get(l.Remote) != l {
		l.Close()
		return
	}
	if !o.Roster.Remove(l.Remote) {
		o.Links.Remove(l.Remote)
	}
}
