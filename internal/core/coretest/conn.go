package coretest

import (
	"sync"

	"github.com/dkeye/Meet/internal/core"
)

type Replacement struct {
	Old, Next core.Track
	Owner     core.Stream
}

type Conn struct {
	mu        sync.Mutex
	Initiator bool
	Outgoing  core.Stream
	Signals   []core.Signal
	Replaced  []Replacement
	Added     []core.Track
	// ReplaceErr and AddErr fail the respective operation when set.
	ReplaceErr error
	AddErr     error
	SignalErr  error
	destroyed  bool
	emit       func(core.LinkEvent)
	auto       bool
}

func (c *Conn) Emit(ev core.LinkEvent) { c.emit(ev) }

func (c *Conn) Signal(sig core.Signal) error {
	c.mu.Lock()
	if c.SignalErr != nil {
		c.mu.Unlock()
		return c.SignalErr
	}
	c.Signals = append(c.Signals, sig)
	auto := c.auto
	c.mu.Unlock()
	if !auto {
		return nil
	}
	switch sig.(type) {
	case core.Offer:
		c.emit(core.Answer{SDP: "answer"})
		c.emit(core.Connected{})
	case core.Answer:
		c.emit(core.Connected{})
	}
	return nil
}

func (c *Conn) ReplaceTrack(old, next core.Track, owner core.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReplaceErr != nil {
		return c.ReplaceErr
	}
	c.Replaced = append(c.Replaced, Replacement{Old: old, Next: next, Owner: owner})
	return nil
}

func (c *Conn) AddTrack(t core.Track, _ core.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AddErr != nil {
		return c.AddErr
	}
	c.Added = append(c.Added, t)
	return nil
}

func (c *Conn) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
}

func (c *Conn) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Conn) Received() []core.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Signal(nil), c.Signals...)
}

// ConnFactory hands out Conns. With Auto set, each Conn negotiates by
// itself: an initiator emits an offer on creation, an offer is answered
// and connected, an answer connects.
type ConnFactory struct {
	mu    sync.Mutex
	Auto  bool
	Err   error
	Conns []*Conn
}

func (f *ConnFactory) Create(initiator bool, outgoing core.Stream, emit func(core.LinkEvent)) (core.Conn, error) {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return nil, f.Err
	}
	c := &Conn{Initiator: initiator, Outgoing: outgoing, emit: emit, auto: f.Auto}
	f.Conns = append(f.Conns, c)
	f.mu.Unlock()
	if c.auto && initiator {
		emit(core.Offer{SDP: "offer"})
	}
	return c, nil
}

func (f *ConnFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Conns)
}
