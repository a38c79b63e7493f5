package layout

import (
	"testing"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func newRoster(ids ...domain.UserID) *core.Roster {
	r := core.NewRoster()
	for i, id := range ids {
		p := domain.NewParticipant(id, string(id))
		p.Local = i == 0
		r.Upsert(p)
	}
	return r
}

func assertGrid(t *testing.T, a core.Arrangement, n int) {
	t.Helper()
	if a.Mode != core.ModeGrid || a.Stage != "" || len(a.Tiles) != n {
		t.Fatalf("arrangement = %+v, want grid of %d", a, n)
	}
}

func assertSpotlight(t *testing.T, a core.Arrangement, stage domain.UserID) {
	t.Helper()
	if a.Mode != core.ModeSpotlight || a.Stage != stage {
		t.Fatalf("arrangement = %+v, want spotlight on %s", a, stage)
	}
	for _, id := range a.Tiles {
		if id == stage {
			t.Fatalf("stage %s also in filmstrip %v", stage, a.Tiles)
		}
	}
}

func TestComputeIsPure(t *testing.T) {
	ps := []domain.Participant{
		domain.NewParticipant("1", "a"),
		domain.NewParticipant("2", "b"),
		domain.NewParticipant("3", "c"),
	}
	assertGrid(t, Compute(ps, ""), 3)
	assertGrid(t, Compute(ps, "ghost"), 3)
	a := Compute(ps, "2")
	assertSpotlight(t, a, "2")
	if len(a.Tiles) != 2 || a.Tiles[0] != "1" || a.Tiles[1] != "3" {
		t.Fatalf("filmstrip = %v, want [1 3]", a.Tiles)
	}
}

func TestPinToggles(t *testing.T) {
	e := NewEngine(newRoster("1", "2", "3"))
	assertSpotlight(t, e.Pin("2"), "2")
	assertGrid(t, e.Pin("2"), 3)
	if e.Spotlight() != "" {
		t.Fatal("pin should be cleared")
	}
}

func TestPinMovesBetweenParticipants(t *testing.T) {
	e := NewEngine(newRoster("1", "2", "3"))
	e.Pin("2")
	assertSpotlight(t, e.Pin("3"), "3")
}

func TestPinUnknownIsIgnored(t *testing.T) {
	e := NewEngine(newRoster("1", "2"))
	assertGrid(t, e.Pin("ghost"), 2)
	if e.Spotlight() != "" {
		t.Fatal("dangling pin")
	}
}

func TestRemovingPinnedParticipantReturnsToGrid(t *testing.T) {
	r := newRoster("1", "2", "3")
	e := NewEngine(r)
	e.Pin("3")
	r.Remove("3")
	assertGrid(t, e.Arrangement(), 2)
	if e.Spotlight() != "" {
		t.Fatal("pin should be cleared on removal")
	}
}

func TestRemovingPinnedMovesToOtherSharer(t *testing.T) {
	r := newRoster("1", "2", "3")
	e := NewEngine(r)
	r.SetMediaFlag("2", domain.FlagScreen, true)
	r.SetMediaFlag("3", domain.FlagScreen, true)
	e.ScreenShareStarted("3")
	r.Remove("3")
	assertSpotlight(t, e.Arrangement(), "2")
}

func TestScreenShareOverridesPin(t *testing.T) {
	e := NewEngine(newRoster("1", "2", "3"))
	e.Pin("2")
	assertSpotlight(t, e.ScreenShareStarted("3"), "3")

	// A stop from someone else leaves the spotlight alone.
	assertSpotlight(t, e.ScreenShareStopped("2"), "3")
	assertGrid(t, e.ScreenShareStopped("3"), 3)
}

func TestScreenShareStoppedKeepsManualPin(t *testing.T) {
	e := NewEngine(newRoster("1", "2", "3"))
	e.ScreenShareStarted("3")
	e.Pin("2")
	assertSpotlight(t, e.ScreenShareStopped("3"), "2")
}

func TestArrangementFollowsRoster(t *testing.T) {
	r := newRoster("1")
	e := NewEngine(r)
	r.Upsert(domain.NewParticipant("2", "b"))
	assertGrid(t, e.Arrangement(), 2)
}

func TestSpeakingFlag(t *testing.T) {
	r := newRoster("1", "2")
	e := NewEngine(r)
	if !e.SetSpeaking("2", true) || e.SetSpeaking("2", true) {
		t.Fatal("SetSpeaking should report only changes")
	}
	if !e.Speaking("2") {
		t.Fatal("speaking flag not set")
	}
	r.Remove("2")
	if e.Speaking("2") {
		t.Fatal("speaking flag should be dropped with the participant")
	}
}
