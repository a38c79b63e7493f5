package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// wireID accepts ids sent either as JSON strings or as numbers.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = wireID(n.String())
	return nil
}

func (id wireID) user() (domain.UserID, error) {
	uid := domain.UserID(id)
	if err := domain.ValidateUserID(uid); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return uid, nil
}

type roomDTO struct {
	ID    any    `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Token string `json:"token,omitempty"`
}

type memberDTO struct {
	ID            wireID `json:"id"`
	Username      string `json:"username"`
	Role          string `json:"role,omitempty"`
	IsYou         bool   `json:"is_you"`
	AudioEnabled  *bool  `json:"audio_enabled,omitempty"`
	VideoEnabled  *bool  `json:"video_enabled,omitempty"`
	SharingScreen *bool  `json:"sharing_screen,omitempty"`
}

func (d memberDTO) member() (core.Member, error) {
	id, err := d.ID.user()
	if err != nil {
		return core.Member{}, err
	}
	if id == "" {
		return core.Member{}, fmt.Errorf("%w: participant without id", ErrMalformed)
	}
	return core.Member{
		ID:            id,
		Username:      d.Username,
		Role:          d.Role,
		Self:          d.IsYou,
		AudioEnabled:  d.AudioEnabled,
		VideoEnabled:  d.VideoEnabled,
		SharingScreen: d.SharingScreen,
	}, nil
}
