// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

// UserID is opaque and totally ordered by byte-wise comparison.
type UserID string

// NewUserID returns a random id for a client that was not given one.
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

func ValidateUserID(id UserID) error {
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

func ValidateUsername(username string) error {
	if len(strings.TrimSpace(username)) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

// IsInitiator reports whether local opens the connection to remote.
// Both sides evaluate the same comparison, so exactly one of them offers.
func IsInitiator(local, remote UserID) bool {
	return strings.Compare(string(local), string(remote)) < 0
}
