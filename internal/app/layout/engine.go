// Package layout derives the visual arrangement from roster and pin,
// and samples audio activity for the speaking indicator.
package layout

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Compute is the arrangement rule: a pin on a known participant puts
// them on stage with everyone else in the filmstrip, otherwise grid.
func Compute(ps []domain.Participant, pin domain.UserID) core.Arrangement {
	pinned := false
	if pin != "" {
		for _, p := range ps {
			if p.ID == pin {
				pinned = true
				break
			}
		}
	}
	tiles := make([]domain.UserID, 0, len(ps))
	for _, p := range ps {
		if pinned && p.ID == pin {
			continue
		}
		tiles = append(tiles, p.ID)
	}
	if !pinned {
		return core.Arrangement{Mode: core.ModeGrid, Tiles: tiles}
	}
	return core.Arrangement{Mode: core.ModeSpotlight, Stage: pin, Tiles: tiles}
}

// Engine keeps the pin and the current arrangement in step with the roster.
// It is confined to the session loop.
type Engine struct {
	roster   *core.Roster
	pin      domain.UserID
	current  core.Arrangement
	speaking map[domain.UserID]bool
}

// NewEngine registers the engine as a roster observer. Register it before
// anything that renders so renders see the recomputed arrangement.
func NewEngine(r *core.Roster) *Engine {
	e := &Engine{
		roster:   r,
		speaking: make(map[domain.UserID]bool),
	}
	r.Observe(e)
	e.recompute()
	return e
}

func (e *Engine) OnRosterChange(ch core.RosterChange) {
	if ch.Kind == core.ParticipantRemoved {
		id := ch.Participant.ID
		delete(e.speaking, id)
		if e.pin == id {
			e.pin = e.activeSharer()
			log.Debug().Str("module", "layout").Str("peer", string(id)).Str("pin", string(e.pin)).Msg("pinned participant left")
		}
	}
	e.recompute()
}

// activeSharer returns the first remote participant still sharing a screen.
func (e *Engine) activeSharer() domain.UserID {
	for _, p := range e.roster.All() {
		if p.SharingScreen && !p.Local {
			return p.ID
		}
	}
	return ""
}

func (e *Engine) recompute() core.Arrangement {
	e.current = Compute(e.roster.All(), e.pin)
	return e.current
}

// Pin toggles the spotlight on id. Pinning an unknown id does nothing.
func (e *Engine) Pin(id domain.UserID) core.Arrangement {
	switch {
	case e.pin == id:
		e.pin = ""
	case e.roster.Has(id):
		e.pin = id
	}
	return e.recompute()
}

// ScreenShareStarted spotlights the sharer, overriding any manual pin.
func (e *Engine) ScreenShareStarted(id domain.UserID) core.Arrangement {
	if e.roster.Has(id) {
		e.pin = id
	}
	return e.recompute()
}

// ScreenShareStopped clears the spotlight only if it is on the sharer.
func (e *Engine) ScreenShareStopped(id domain.UserID) core.Arrangement {
	if e.pin == id {
		e.pin = ""
	}
	return e.recompute()
}

func (e *Engine) Spotlight() domain.UserID       { return e.pin }
func (e *Engine) Arrangement() core.Arrangement  { return e.current }
func (e *Engine) Speaking(id domain.UserID) bool { return e.speaking[id] }

// SetSpeaking records the indicator for id and reports whether it changed.
func (e *Engine) SetSpeaking(id domain.UserID, v bool) bool {
	if e.speaking[id] == v {
		return false
	}
	if v {
		e.speaking[id] = true
	} else {
		delete(e.speaking, id)
	}
	return true
}

func (e *Engine) Reset() {
	e.pin = ""
	e.speaking = make(map[domain.UserID]bool)
	e.recompute()
}
