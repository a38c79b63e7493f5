package orch

import (
	"github.com/dkeye/Meet/internal/app/media"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) setSpeaking(id domain.UserID, src core.Metered, speaking bool) {
	if cur, ok := o.Sampler.Source(id); !ok || cur != src {
		return
	}
	if o.Layout.SetSpeaking(id, speaking) {
		o.render()
	}
}

func (o *Orchestrator) onScreenShareResult(rep media.Report, err error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("screen share")
		o.notify(core.NoticeTransport, "", "screen share state could not be announced")
	}
	if rep.Partial() {
		o.notify(core.NoticeSubstitution, "", "screen share: %s", rep.String())
	}
	o.render()
}

func (o *Orchestrator) afterToggle(flag domain.MediaFlag, err error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("flag", flag.String()).Msg("toggle")
		o.notify(core.NoticeMedia, o.Room.LocalID, "%s toggle: %v", flag, err)
	}
	o.render()
}
