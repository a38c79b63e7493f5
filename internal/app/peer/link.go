package peer

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hooks receive link outcomes. They run on the session loop.
type Hooks interface {
	Forward(l *Link, sig core.Signal)
	Connected(l *Link)
	Stream(l *Link, s core.Stream)
	Fault(l *Link, err error)
	Closed(l *Link)
}

// Link is the connection state machine towards one remote participant.
//
//	initiator: New -> Offering -> Connected -> Closed
//	responder: New -> AwaitingOffer -> Answering -> Connected -> Closed
//
// Closed is terminal. A Link is confined to the session loop.
type Link struct {
	Remote    domain.UserID
	Initiator bool

	state     State
	conn      core.Conn
	hooks     Hooks
	described bool
	pending   []core.Signal
	owner     core.Stream
	video     core.Track
	timer     *time.Timer
	logger    zerolog.Logger
}

func newLink(remote domain.UserID, initiator bool, outgoing core.Stream, hooks Hooks) *Link {
	return &Link{
		Remote:    remote,
		Initiator: initiator,
		hooks:     hooks,
		owner:     outgoing,
		video:     core.VideoTrack(outgoing),
		logger: log.With().
			Str("module", "peer").
			Str("peer", string(remote)).
			Bool("initiator", initiator).
			Logger(),
	}
}

// start creates the connection primitive. Its events are posted back
// onto the loop and land in Handle.
func (l *Link) start(factory core.ConnFactory, post func(func())) error {
	conn, err := factory.Create(l.Initiator, l.owner, func(ev core.LinkEvent) {
		post(func() { l.Handle(ev) })
	})
	if err != nil {
		l.state = StateClosed
		return NewLinkError("create", l.Remote, err)
	}
	l.conn = conn
	if l.Initiator {
		l.state = StateOffering
	} else {
		l.state = StateAwaitingOffer
	}
	l.logger.Debug().Str("state", l.state.String()).Msg("link started")
	return nil
}

func (l *Link) State() State      { return l.state }
func (l *Link) Conn() core.Conn   { return l.conn }
func (l *Link) Video() core.Track { return l.video }
func (l *Link) Pending() int      { return len(l.pending) }

// Handle dispatches an event reported by the connection primitive.
func (l *Link) Handle(ev core.LinkEvent) {
	if l.state == StateClosed {
		l.logger.Debug().Type("event", ev).Msg("event on closed link ignored")
		return
	}
	switch e := ev.(type) {
	case core.Offer, core.Answer, core.IceCandidate:
		l.hooks.Forward(l, e.(core.Signal))
	case core.Connected:
		if l.state == StateConnected {
			return
		}
		l.state = StateConnected
		l.stopTimer()
		l.logger.Info().Msg("link connected")
		l.hooks.Connected(l)
	case core.StreamAttached:
		l.hooks.Stream(l, e.Stream)
	case core.Closed:
		l.hooks.Closed(l)
	case core.Faulted:
		l.hooks.Fault(l, NewLinkError("connection", l.Remote, e.Err))
	}
}

// Deliver feeds a signal received from the remote participant.
// Candidates that arrive before any remote description are queued.
func (l *Link) Deliver(sig core.Signal) error {
	if l.state == StateClosed {
		return ErrLinkClosed
	}
	switch s := sig.(type) {
	case core.Offer:
		switch {
		case l.state == StateConnected:
		case !l.Initiator && l.state == StateAwaitingOffer:
			l.state = StateAnswering
		default:
			return NewLinkError("offer", l.Remote, ErrUnexpectedSignal)
		}
		return l.describe(s)
	case core.Answer:
		if l.state != StateConnected && !(l.Initiator && l.state == StateOffering) {
			return NewLinkError("answer", l.Remote, ErrUnexpectedSignal)
		}
		return l.describe(s)
	case core.IceCandidate:
		if !l.described {
			l.pending = append(l.pending, s)
			return nil
		}
		if err := l.conn.Signal(s); err != nil {
			return NewLinkError("candidate", l.Remote, err)
		}
	}
	return nil
}

func (l *Link) describe(sig core.Signal) error {
	if err := l.conn.Signal(sig); err != nil {
		return NewLinkError(sig.Kind().String(), l.Remote, err)
	}
	l.described = true
	queued := l.pending
	l.pending = nil
	for _, c := range queued {
		if err := l.conn.Signal(c); err != nil {
			return NewLinkError("candidate", l.Remote, err)
		}
	}
	if len(queued) > 0 {
		l.logger.Debug().Int("count", len(queued)).Msg("flushed queued candidates")
	}
	return nil
}

// SendVideo puts t on the wire in place of the current outgoing video,
// adding a sender when the link has none yet.
func (l *Link) SendVideo(t core.Track, owner core.Stream) error {
	if l.state == StateClosed {
		return ErrLinkClosed
	}
	if t == nil {
		return NewLinkError("send-video", l.Remote, ErrNoOutgoingVideo)
	}
	if l.video == t {
		return nil
	}
	if l.owner != nil {
		owner = l.owner
	}
	if l.video != nil {
		if err := l.conn.ReplaceTrack(l.video, t, owner); err != nil {
			return NewLinkError("replace-track", l.Remote, err)
		}
	} else {
		if err := l.conn.AddTrack(t, owner); err != nil {
			return NewLinkError("add-track", l.Remote, err)
		}
		if l.owner == nil {
			l.owner = owner
		}
	}
	l.video = t
	return nil
}

func (l *Link) armTimeout(d time.Duration, post func(func()), fire func(*Link)) {
	l.timer = time.AfterFunc(d, func() {
		post(func() {
			if l.state == StateClosed || l.state == StateConnected {
				return
			}
			l.logger.Warn().Dur("timeout", d).Str("state", l.state.String()).Msg("link did not connect in time")
			fire(l)
		})
	})
}

func (l *Link) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// shutdown moves the link to Closed and hands back the connection
// still to be destroyed, or nil if the link was already closed.
func (l *Link) shutdown() core.Conn {
	if l.state == StateClosed {
		return nil
	}
	l.state = StateClosed
	l.stopTimer()
	l.pending = nil
	l.logger.Info().Msg("link closed")
	return l.conn
}

// Close is idempotent.
func (l *Link) Close() {
	if conn := l.shutdown(); conn != nil {
		conn.Destroy()
	}
}
