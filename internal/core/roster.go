package core

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type ChangeKind int

const (
	ParticipantAdded ChangeKind = iota
	ParticipantUpdated
	ParticipantRemoved
)

type RosterChange struct {
	Kind        ChangeKind
	Participant domain.Participant
}

type RosterObserver interface {
	OnRosterChange(ch RosterChange)
}

// Roster is the in-memory membership of the current room, kept in join order.
// It is confined to the session loop and holds no lock.
type Roster struct {
	order     []domain.UserID
	byID      map[domain.UserID]*domain.Participant
	observers []RosterObserver
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[domain.UserID]*domain.Participant)}
}

// Observe registers o. Observers are notified in registration order.
func (r *Roster) Observe(o RosterObserver) {
	r.observers = append(r.observers, o)
}

func (r *Roster) notify(kind ChangeKind, p domain.Participant) {
	for _, o := range r.observers {
		o.OnRosterChange(RosterChange{Kind: kind, Participant: p})
	}
}

// Upsert inserts p or updates the existing entry in place.
func (r *Roster) Upsert(p domain.Participant) {
	if cur, ok := r.byID[p.ID]; ok {
		if *cur == p {
			return
		}
		*cur = p
		log.Debug().Str("module", "core.roster").Str("peer", string(p.ID)).Msg("participant updated")
		r.notify(ParticipantUpdated, p)
		return
	}
	np := p
	r.byID[p.ID] = &np
	r.order = append(r.order, p.ID)
	log.Info().Str("module", "core.roster").Str("peer", string(p.ID)).Str("username", p.DisplayName).Msg("participant added")
	r.notify(ParticipantAdded, p)
}

// Remove deletes id. Removing an unknown id is a no-op.
func (r *Roster) Remove(id domain.UserID) bool {
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.roster").Str("peer", string(id)).Msg("participant removed")
	r.notify(ParticipantRemoved, *p)
	return true
}

// SetMediaFlag updates one flag. It reports false for an unknown id.
func (r *Roster) SetMediaFlag(id domain.UserID, flag domain.MediaFlag, v bool) bool {
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	if p.Flag(flag) == v {
		return true
	}
	p.SetFlag(flag, v)
	log.Debug().Str("module", "core.roster").Str("peer", string(id)).Str("flag", flag.String()).Bool("enabled", v).Msg("media flag")
	r.notify(ParticipantUpdated, *p)
	return true
}

// ApplySnapshot makes the roster match ps. The local participant survives
// a snapshot that omits it; everyone else absent from ps is removed.
func (r *Roster) ApplySnapshot(ps []domain.Participant) {
	keep := make(map[domain.UserID]struct{}, len(ps))
	for _, p := range ps {
		keep[p.ID] = struct{}{}
		r.Upsert(p)
	}
	for _, id := range append([]domain.UserID(nil), r.order...) {
		if _, ok := keep[id]; ok {
			continue
		}
		if r.byID[id].Local {
			continue
		}
		r.Remove(id)
	}
}

func (r *Roster) Get(id domain.UserID) (domain.Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (r *Roster) Has(id domain.UserID) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *Roster) Local() (domain.Participant, bool) {
	for _, id := range r.order {
		if p := r.byID[id]; p.Local {
			return *p, true
		}
	}
	return domain.Participant{}, false
}

// All returns a copy of every participant in join order.
func (r *Roster) All() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

func (r *Roster) Len() int { return len(r.order) }

// Reset drops everyone without notifying observers.
func (r *Roster) Reset() {
	r.order = nil
	r.byID = make(map[domain.UserID]*domain.Participant)
}
