package coretest

import (
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Sent is one recorded outgoing gateway message.
type Sent struct {
	Type     string
	To, From domain.UserID
	Signal   core.Signal
	Flag     domain.MediaFlag
	Enabled  bool
	Username string
	Text     string
}

type Gateway struct {
	mu   sync.Mutex
	Err  error
	sent []Sent
	// Route, when set, receives every signal after it is recorded.
	Route func(to, from domain.UserID, sig core.Signal)
}

func (g *Gateway) record(s Sent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.sent = append(g.sent, s)
	return nil
}

func (g *Gateway) JoinRoom(room domain.Room, username string) error {
	return g.record(Sent{Type: "join_room", From: room.LocalID, Username: username})
}

func (g *Gateway) LeaveRoom(room domain.Room) error {
	return g.record(Sent{Type: "leave_room", From: room.LocalID})
}

func (g *Gateway) SendSignal(to, from domain.UserID, sig core.Signal) error {
	if err := g.record(Sent{Type: sig.Kind().String(), To: to, From: from, Signal: sig}); err != nil {
		return err
	}
	if g.Route != nil {
		g.Route(to, from, sig)
	}
	return nil
}

func (g *Gateway) SendMediaState(room domain.Room, flag domain.MediaFlag, enabled bool) error {
	typ := "toggle_audio"
	if flag == domain.FlagVideo {
		typ = "toggle_video"
	}
	return g.record(Sent{Type: typ, From: room.LocalID, Flag: flag, Enabled: enabled})
}

func (g *Gateway) SendScreenShare(room domain.Room, username string, started bool) error {
	typ := "screen_share_stopped"
	if started {
		typ = "screen_share_started"
	}
	return g.record(Sent{Type: typ, From: room.LocalID, Username: username, Enabled: started})
}

func (g *Gateway) SendChat(room domain.Room, message string) error {
	return g.record(Sent{Type: "chat_message", From: room.LocalID, Text: message})
}

func (g *Gateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), g.sent...)
}

// OfType returns recorded messages with the given wire type.
func (g *Gateway) OfType(typ string) []Sent {
	var out []Sent
	for _, s := range g.Sent() {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}
