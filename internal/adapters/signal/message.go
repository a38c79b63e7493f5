package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
)

var ErrMalformed = errors.New("malformed message")

// Message is the flat wire envelope. Which fields are set depends on Type.
type Message struct {
	Type         string       `json:"type"`
	RoomToken    string       `json:"room_token,omitempty"`
	UserID       wireID       `json:"user_id,omitempty"`
	Username     string       `json:"username,omitempty"`
	To           wireID       `json:"to,omitempty"`
	From         wireID       `json:"from,omitempty"`
	Offer        *description `json:"offer,omitempty"`
	Answer       *description `json:"answer,omitempty"`
	Candidate    *candidate   `json:"candidate,omitempty"`
	IsMuted      *bool        `json:"is_muted,omitempty"`
	IsOff        *bool        `json:"is_off,omitempty"`
	Message      string       `json:"message,omitempty"`
	Timestamp    string       `json:"timestamp,omitempty"`
	Room         *roomDTO     `json:"room,omitempty"`
	Participants []memberDTO  `json:"participants,omitempty"`
}

func encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

// Decode turns one inbound frame into a gateway event. It returns
// (nil, nil) for types the session does not consume.
func Decode(data []byte) (core.GatewayEvent, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	switch m.Type {
	case "room_info", "user_joined", "user_left",
		"user_audio_changed", "user_video_changed",
		"screen_share_started", "screen_share_stopped",
		"new_chat_message", "error":
		return decodeRoom(m)
	case "offer", "answer", "ice_candidate":
		return decodeSignal(m)
	}
	return nil, nil
}
