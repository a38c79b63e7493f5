package peer

import (
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrConnectTimeout   = errors.New("connect timeout")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrLinkClosed       = errors.New("link closed")
	ErrNoOutgoingVideo  = errors.New("no outgoing video track")
)

// LinkError wraps a failure on one peer link with the operation that failed.
type LinkError struct {
	Op   string
	Peer domain.UserID
	Err  error
}

func (e *LinkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Op, e.Peer)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func NewLinkError(op string, peer domain.UserID, err error) *LinkError {
	return &LinkError{Op: op, Peer: peer, Err: err}
}
