package core

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// Gateway is the room-scoped signaling channel.
// Sends are fire-and-forget: an error means the message was not queued.
type Gateway interface {
	JoinRoom(room domain.Room, username string) error
	LeaveRoom(room domain.Room) error
	SendSignal(to, from domain.UserID, sig Signal) error
	SendMediaState(room domain.Room, flag domain.MediaFlag, enabled bool) error
	SendScreenShare(room domain.Room, username string, started bool) error
	SendChat(room domain.Room, message string) error
}

// GatewayEvent is everything the gateway delivers to the session.
type GatewayEvent interface {
	gatewayEvent()
}

// Member is one roster entry of a room snapshot. Nil flags were not
// announced and keep whatever the roster already knows.
type Member struct {
	ID            domain.UserID
	Username      string
	Role          string
	Self          bool // is_you, computed by the relay for the newest joiner
	AudioEnabled  *bool
	VideoEnabled  *bool
	SharingScreen *bool
}

type RoomInfo struct {
	Members []Member
}

type UserJoined struct {
	ID       domain.UserID
	Username string
}

type UserLeft struct {
	ID domain.UserID
}

type SignalReceived struct {
	From   domain.UserID
	To     domain.UserID
	Signal Signal
}

type MediaStateChanged struct {
	ID      domain.UserID
	Flag    domain.MediaFlag
	Enabled bool
}

type ScreenShareChanged struct {
	ID       domain.UserID
	Username string
	Started  bool
}

type ChatReceived struct {
	From     domain.UserID
	Username string
	Text     string
	At       time.Time
}

// GatewayError carries an error message pushed by the relay service.
type GatewayError struct {
	Message string
}

// Disconnected is delivered once when the gateway transport goes away.
type Disconnected struct {
	Err error
}

func (RoomInfo) gatewayEvent()           {}
func (UserJoined) gatewayEvent()         {}
func (UserLeft) gatewayEvent()           {}
func (SignalReceived) gatewayEvent()     {}
func (MediaStateChanged) gatewayEvent()  {}
func (ScreenShareChanged) gatewayEvent() {}
func (ChatReceived) gatewayEvent()       {}
func (GatewayError) gatewayEvent()       {}
func (Disconnected) gatewayEvent()       {}
