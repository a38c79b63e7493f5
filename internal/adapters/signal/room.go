package signal

import (
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// isoNoZone is how the relay formats naive UTC timestamps.
const isoNoZone = "2006-01-02T15:04:05.999999"

func (c *Client) JoinRoom(room domain.Room, username string) error {
	return c.sendMessage(Message{
		Type:      "join_room",
		RoomToken: string(room.Token),
		UserID:    wireID(room.LocalID),
		Username:  username,
	})
}

func (c *Client) LeaveRoom(room domain.Room) error {
	if c.limiter != nil {
		c.limiter.Forget(room.Token)
	}
	return c.sendMessage(Message{
		Type:      "leave_room",
		RoomToken: string(room.Token),
		UserID:    wireID(room.LocalID),
	})
}

// SendMediaState announces a local toggle. The wire carries the negated
// flag: is_muted for audio, is_off for video.
func (c *Client) SendMediaState(room domain.Room, flag domain.MediaFlag, enabled bool) error {
	m := Message{RoomToken: string(room.Token), UserID: wireID(room.LocalID)}
	off := !enabled
	switch flag {
	case domain.FlagAudio:
		m.Type, m.IsMuted = "toggle_audio", &off
	case domain.FlagVideo:
		m.Type, m.IsOff = "toggle_video", &off
	default:
		return fmt.Errorf("media state %s: not a toggle", flag)
	}
	return c.sendMessage(m)
}

func (c *Client) SendScreenShare(room domain.Room, username string, started bool) error {
	typ := "screen_share_stopped"
	if started {
		typ = "screen_share_started"
	}
	return c.sendMessage(Message{
		Type:      typ,
		RoomToken: string(room.Token),
		UserID:    wireID(room.LocalID),
		Username:  username,
	})
}

// SendChat is rate limited per room; a refused message is not queued
// and the error is a *RetryError.
func (c *Client) SendChat(room domain.Room, message string) error {
	if c.limiter != nil {
		if wait, ok := c.limiter.Reserve(room.Token); !ok {
			return &RetryError{After: wait}
		}
	}
	return c.sendMessage(Message{
		Type:      "chat_message",
		RoomToken: string(room.Token),
		UserID:    wireID(room.LocalID),
		Message:   message,
	})
}

func decodeRoom(m Message) (core.GatewayEvent, error) {
	if m.Type == "error" {
		return core.GatewayError{Message: m.Message}, nil
	}
	if m.Type == "room_info" {
		info := core.RoomInfo{Members: make([]core.Member, 0, len(m.Participants))}
		for _, p := range m.Participants {
			mem, err := p.member()
			if err != nil {
				return nil, fmt.Errorf("room_info: %w", err)
			}
			info.Members = append(info.Members, mem)
		}
		return info, nil
	}

	id, err := m.UserID.user()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Type, err)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s without user_id", ErrMalformed, m.Type)
	}
	switch m.Type {
	case "user_joined":
		return core.UserJoined{ID: id, Username: m.Username}, nil
	case "user_left":
		return core.UserLeft{ID: id}, nil
	case "user_audio_changed":
		if m.IsMuted == nil {
			return nil, fmt.Errorf("%w: %s without is_muted", ErrMalformed, m.Type)
		}
		return core.MediaStateChanged{ID: id, Flag: domain.FlagAudio, Enabled: !*m.IsMuted}, nil
	case "user_video_changed":
		if m.IsOff == nil {
			return nil, fmt.Errorf("%w: %s without is_off", ErrMalformed, m.Type)
		}
		return core.MediaStateChanged{ID: id, Flag: domain.FlagVideo, Enabled: !*m.IsOff}, nil
	case "screen_share_started", "screen_share_stopped":
		return core.ScreenShareChanged{ID: id, Username: m.Username, Started: m.Type == "screen_share_started"}, nil
	case "new_chat_message":
		return core.ChatReceived{From: id, Username: m.Username, Text: m.Message, At: parseTime(m.Timestamp)}, nil
	}
	return nil, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(isoNoZone, s); err == nil {
		return t.UTC()
	}
	return time.Now()
}
