package orch

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// OnRosterChange keeps links, samplers and renderers in step with membership.
func (o *Orchestrator) OnRosterChange(ch core.RosterChange) {
	if ch.Kind == core.ParticipantRemoved && !ch.Participant.Local {
		id := ch.Participant.ID
		o.Links.Remove(id)
		o.Sampler.Stop(id)
		o.Render.DetachStream(id)
	}
	o.render()
}

func (o *Orchestrator) isSelf(id domain.UserID) bool { return id == o.Room.LocalID }

func (o *Orchestrator) onRoomInfo(e core.RoomInfo) {
	ps := make([]domain.Participant, 0, len(e.Members))
	for _, m := range e.Members {
		// is_you is computed for the newest joiner, so only the id is trusted.
		if o.isSelf(m.ID) {
			if self, ok := o.Roster.Local(); ok {
				ps = append(ps, self)
			}
			continue
		}
		p, ok := o.Roster.Get(m.ID)
		if !ok {
			p = domain.NewParticipant(m.ID, m.Username)
		}
		if m.Username != "" {
			p.DisplayName = m.Username
		}
		p.Role = m.Role
		if m.AudioEnabled != nil {
			p.AudioEnabled = *m.AudioEnabled
		}
		if m.VideoEnabled != nil {
			p.VideoEnabled = *m.VideoEnabled
		}
		if m.SharingScreen != nil {
			p.SharingScreen = *m.SharingScreen
		}
		ps = append(ps, p)
	}
	o.Roster.ApplySnapshot(ps)
	log.Info().Str("module", "orch").Int("members", o.Roster.Len()).Msg("room snapshot applied")

	if o.Layout.Spotlight() == "" {
		for _, p := range o.Roster.All() {
			if p.SharingScreen && !p.Local {
				o.Layout.ScreenShareStarted(p.ID)
				o.render()
				break
			}
		}
	}
	o.ensureLinks()
}

// ensureLinks opens a link to every remote participant that has none.
func (o *Orchestrator) ensureLinks() {
	for _, p := range o.Roster.All() {
		if p.Local || o.Links.Get(p.ID) != nil {
			continue
		}
		o.openLink(p.ID, domain.IsInitiator(o.Room.LocalID, p.ID))
	}
}

func (o *Orchestrator) openLink(id domain.UserID, initiator bool) bool {
	if _, err := o.Links.Open(id, initiator, o.Media.Outgoing()); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("peer", string(id)).Msg("open link")
		o.notify(core.NoticeTransport, id, "could not connect to %s", o.displayName(id))
		o.Roster.Remove(id)
		return false
	}
	return true
}

func (o *Orchestrator) onUserJoined(e core.UserJoined) {
	if o.isSelf(e.ID) {
		return
	}
	p, ok := o.Roster.Get(e.ID)
	if !ok {
		p = domain.NewParticipant(e.ID, e.Username)
	} else if e.Username != "" {
		p.DisplayName = e.Username
	}
	o.Roster.Upsert(p)
	if o.Links.Get(e.ID) == nil && !o.openLink(e.ID, domain.IsInitiator(o.Room.LocalID, e.ID)) {
		return
	}
	o.notify(core.NoticeJoined, e.ID, "%s joined", o.displayName(e.ID))
}

func (o *Orchestrator) onUserLeft(e core.UserLeft) {
	if o.isSelf(e.ID) {
		return
	}
	name := o.displayName(e.ID)
	if o.Roster.Remove(e.ID) {
		o.notify(core.NoticeLeft, e.ID, "%s left", name)
	}
}

func (o *Orchestrator) onMediaState(e core.MediaStateChanged) {
	if o.isSelf(e.ID) {
		return
	}
	if !o.Roster.SetMediaFlag(e.ID, e.Flag, e.Enabled) {
		log.Debug().Str("module", "orch").Str("peer", string(e.ID)).Msg("media state for unknown participant")
	}
}

func (o *Orchestrator) onScreenShare(e core.ScreenShareChanged) {
	if o.isSelf(e.ID) {
		return
	}
	if !o.Roster.Has(e.ID) {
		if !e.Started {
			log.Debug().Str("module", "orch").Str("peer", string(e.ID)).Msg("screen share stop from unknown participant")
			return
		}
		// The relay can deliver a share before the sharer's user_joined.
		o.Roster.Upsert(domain.NewParticipant(e.ID, e.Username))
		if !o.openLink(e.ID, domain.IsInitiator(o.Room.LocalID, e.ID)) {
			return
		}
	}
	o.Roster.SetMediaFlag(e.ID, domain.FlagScreen, e.Started)
	if e.Started {
		o.Layout.ScreenShareStarted(e.ID)
	} else {
		o.Layout.ScreenShareStopped(e.ID)
	}
	o.render()
}

func (o *Orchestrator) displayName(id domain.UserID) string {
	if p, ok := o.Roster.Get(id); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return string(id)
}
