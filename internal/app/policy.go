package app

import (
	"errors"

	"github.com/dkeye/Meet/internal/domain"
)

type FaultAction int

const (
	NoAction FaultAction = iota
	// CloseLink tears the link down and drops the participant until it rejoins.
	CloseLink
)

// Policy decides what a transport fault on one peer link leads to.
type Policy interface {
	OnFault(peer domain.UserID, err error) FaultAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnFault(domain.UserID, error) FaultAction {
	return CloseLink
}

// TolerantPolicy keeps links whose fault matches one of Transient.
type TolerantPolicy struct {
	Transient []error
}

func (p TolerantPolicy) OnFault(_ domain.UserID, err error) FaultAction {
	for _, t := range p.Transient {
		if errors.Is(err, t) {
			return NoAction
		}
	}
	return CloseLink
}
