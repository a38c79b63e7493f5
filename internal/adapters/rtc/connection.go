package rtc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Meet/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrICEFailed     = errors.New("ice failed")
	ErrUnknownTrack  = errors.New("track is not sent on this connection")
	ErrNotLocalTrack = errors.New("track cannot be sent by pion")
	ErrClosed        = errors.New("connection closed")
)

// LocalTrack is a core.Track that pion can put on the wire.
type LocalTrack interface {
	core.Track
	TrackLocal() webrtc.TrackLocal
}

// Connection adapts a PeerConnection to core.Conn. Negotiation steps run
// in order on one worker goroutine so Signal never blocks the caller.
type Connection struct {
	pc        *webrtc.PeerConnection
	initiator bool
	emit      func(core.LinkEvent)
	logger    zerolog.Logger

	ops  chan func() error
	quit chan struct{}

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender
	remote  *remoteStream

	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ core.Conn = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, initiator bool, emit func(core.LinkEvent)) *Connection {
	return &Connection{
		pc:        pc,
		initiator: initiator,
		emit:      emit,
		logger:    log.With().Str("module", "rtc").Bool("initiator", initiator).Logger(),
		ops:       make(chan func() error, 64),
		quit:      make(chan struct{}),
		senders:   make(map[string]*webrtc.RTPSender),
	}
}

// report forwards ev unless the connection was destroyed locally.
func (c *Connection) report(ev core.LinkEvent) {
	if c.closed.Load() {
		return
	}
	c.emit(ev)
}

// attach adds the outgoing tracks. Kinds with no local track get a
// receive-only transceiver so the remote media still has an m-line.
func (c *Connection) attach(outgoing core.Stream) error {
	have := map[webrtc.RTPCodecType]bool{}
	if outgoing != nil {
		for _, t := range outgoing.Tracks() {
			lt, ok := t.(LocalTrack)
			if !ok {
				return fmt.Errorf("attach %s: %w", t.ID(), ErrNotLocalTrack)
			}
			if err := c.addSender(lt); err != nil {
				return err
			}
			have[lt.TrackLocal().Kind()] = true
		}
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("recvonly %s: %w", kind, err)
		}
	}
	return nil
}

func (c *Connection) addSender(lt LocalTrack) error {
	sender, err := c.pc.AddTrack(lt.TrackLocal())
	if err != nil {
		return fmt.Errorf("add track %s: %w", lt.ID(), err)
	}
	c.mu.Lock()
	c.senders[lt.ID()] = sender
	c.mu.Unlock()
	go drainRTCP(sender)
	return nil
}

// drainRTCP keeps the interceptors fed; pion stalls senders otherwise.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connection) start() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		c.report(core.IceCandidate{
			Candidate:        ci.Candidate,
			SDPMid:           ci.SDPMid,
			SDPMLineIndex:    ci.SDPMLineIndex,
			UsernameFragment: ci.UsernameFragment,
		})
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.connected.Store(true)
			c.report(core.Connected{})
		case webrtc.PeerConnectionStateFailed:
			c.report(core.Faulted{Err: ErrICEFailed})
		case webrtc.PeerConnectionStateClosed:
			c.report(core.Closed{})
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.onTrack(track, receiver)
	})

	// Tracks added after the first exchange need a new offer.
	c.pc.OnNegotiationNeeded(func() {
		if c.connected.Load() {
			c.enqueue(c.offer)
		}
	})

	go c.work()
	if c.initiator {
		c.enqueue(c.offer)
	}
}

func (c *Connection) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	c.mu.Lock()
	first := c.remote == nil
	if first {
		c.remote = newRemoteStream(track.StreamID())
	}
	rs := c.remote
	c.mu.Unlock()

	rt := rs.add(track, receiver)
	if first {
		c.report(core.StreamAttached{Stream: rs})
	}
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		c.requestKeyframe(track)
	}
	go rt.pump()
}

func (c *Connection) work() {
	for {
		select {
		case <-c.quit:
			return
		case op := <-c.ops:
			if err := op(); err != nil && !c.closed.Load() {
				c.logger.Error().Err(err).Msg("negotiation step failed")
				c.report(core.Faulted{Err: err})
			}
		}
	}
}

func (c *Connection) enqueue(op func() error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.ops <- op:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

func (c *Connection) offer() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	c.report(core.Offer{SDP: offer.SDP})
	return nil
}

func (c *Connection) answer(sdp string) error {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	c.report(core.Answer{SDP: answer.SDP})
	return nil
}

// Signal applies a remote signal in arrival order.
func (c *Connection) Signal(sig core.Signal) error {
	switch s := sig.(type) {
	case core.Offer:
		return c.enqueue(func() error { return c.answer(s.SDP) })
	case core.Answer:
		return c.enqueue(func() error {
			if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: s.SDP}); err != nil {
				return fmt.Errorf("set remote answer: %w", err)
			}
			return nil
		})
	case core.IceCandidate:
		ci := webrtc.ICECandidateInit{
			Candidate:        s.Candidate,
			SDPMid:           s.SDPMid,
			SDPMLineIndex:    s.SDPMLineIndex,
			UsernameFragment: s.UsernameFragment,
		}
		return c.enqueue(func() error {
			if err := c.pc.AddICECandidate(ci); err != nil {
				return fmt.Errorf("add ice candidate: %w", err)
			}
			return nil
		})
	}
	return fmt.Errorf("signal %T: unsupported", sig)
}

// ReplaceTrack swaps the media behind the sender of old without renegotiation.
func (c *Connection) ReplaceTrack(old, next core.Track, _ core.Stream) error {
	if c.closed.Load() {
		return ErrClosed
	}
	lt, ok := next.(LocalTrack)
	if !ok {
		return fmt.Errorf("replace with %s: %w", next.ID(), ErrNotLocalTrack)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sender, ok := c.senders[old.ID()]
	if !ok {
		return fmt.Errorf("replace %s: %w", old.ID(), ErrUnknownTrack)
	}
	if err := sender.ReplaceTrack(lt.TrackLocal()); err != nil {
		return fmt.Errorf("replace %s: %w", old.ID(), err)
	}
	delete(c.senders, old.ID())
	c.senders[next.ID()] = sender
	c.logger.Info().Str("old", old.ID()).Str("new", next.ID()).Msg("track replaced")
	return nil
}

// AddTrack sends t on a new sender. Once connected this renegotiates.
func (c *Connection) AddTrack(t core.Track, _ core.Stream) error {
	if c.closed.Load() {
		return ErrClosed
	}
	lt, ok := t.(LocalTrack)
	if !ok {
		return fmt.Errorf("add %s: %w", t.ID(), ErrNotLocalTrack)
	}
	return c.addSender(lt)
}

// Destroy closes the PeerConnection. No event is reported afterwards.
func (c *Connection) Destroy() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		if err := c.pc.Close(); err != nil {
			c.logger.Error().Err(err).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
		c.mu.Lock()
		rs := c.remote
		c.mu.Unlock()
		if rs != nil {
			rs.end()
		}
	})
}
