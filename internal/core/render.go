package core

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

type LayoutMode int

const (
	ModeGrid LayoutMode = iota
	ModeSpotlight
)

func (m LayoutMode) String() string {
	if m == ModeSpotlight {
		return "spotlight"
	}
	return "grid"
}

func (m LayoutMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Arrangement is the visual arrangement derived from roster and pin.
// In grid mode Stage is empty and Tiles holds everyone; in spotlight
// mode Tiles is the filmstrip.
type Arrangement struct {
	Mode  LayoutMode      `json:"mode"`
	Stage domain.UserID   `json:"stage,omitempty"`
	Tiles []domain.UserID `json:"tiles"`
}

type Tile struct {
	domain.Participant
	Speaking    bool `json:"speaking"`
	Placeholder bool `json:"placeholder"`
	Pinned      bool `json:"pinned"`
}

// View is what the rendering collaborator draws after every mutation.
type View struct {
	Room        domain.RoomToken `json:"room"`
	Self        domain.UserID    `json:"self"`
	Joined      bool             `json:"joined"`
	Count       int              `json:"count"`
	Arrangement Arrangement      `json:"arrangement"`
	Tiles       []Tile           `json:"participants"`
}

func (v View) Tile(id domain.UserID) (Tile, bool) {
	for _, t := range v.Tiles {
		if t.ID == id {
			return t, true
		}
	}
	return Tile{}, false
}

type NoticeKind int

const (
	NoticeJoined NoticeKind = iota
	NoticeLeft
	NoticeTransport
	NoticeMedia
	NoticeSubstitution
	NoticeChat
)

var noticeNames = [...]string{"joined", "left", "transport", "media", "substitution", "chat"}

func (k NoticeKind) String() string {
	if int(k) < len(noticeNames) {
		return noticeNames[k]
	}
	return "unknown"
}

func (k NoticeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Notice is a non-fatal, user-facing message.
type Notice struct {
	Kind NoticeKind    `json:"kind"`
	Peer domain.UserID `json:"peer,omitempty"`
	Text string        `json:"text"`
	At   time.Time     `json:"at"`
}

type Renderer interface {
	AttachStream(id domain.UserID, s Stream)
	DetachStream(id domain.UserID)
	Render(v View)
	Notify(n Notice)
}

// Renderers fans out to several renderers in order.
type Renderers []Renderer

func (rs Renderers) AttachStream(id domain.UserID, s Stream) {
	for _, r := range rs {
		r.AttachStream(id, s)
	}
}

func (rs Renderers) DetachStream(id domain.UserID) {
	for _, r := range rs {
		r.DetachStream(id)
	}
}

func (rs Renderers) Render(v View) {
	for _, r := range rs {
		r.Render(v)
	}
}

func (rs Renderers) Notify(n Notice) {
	for _, r := range rs {
		r.Notify(n)
	}
}
