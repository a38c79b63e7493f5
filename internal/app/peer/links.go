package peer

import (
	"slices"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Links owns every PeerLink of the session, at most one per remote id.
type Links struct {
	factory core.ConnFactory
	post    func(func())
	hooks   Hooks
	timeout time.Duration
	byID    map[domain.UserID]*Link
}

// NewLinks returns an empty set. post schedules work on the session loop.
// A zero timeout disables the connect deadline.
func NewLinks(factory core.ConnFactory, post func(func()), hooks Hooks, timeout time.Duration) *Links {
	return &Links{
		factory: factory,
		post:    post,
		hooks:   hooks,
		timeout: timeout,
		byID:    make(map[domain.UserID]*Link),
	}
}

// Open returns the link for remote, creating and starting it if needed.
func (ls *Links) Open(remote domain.UserID, initiator bool, outgoing core.Stream) (*Link, error) {
	if l, ok := ls.byID[remote]; ok {
		return l, nil
	}
	l := newLink(remote, initiator, outgoing, ls.hooks)
	if err := l.start(ls.factory, ls.post); err != nil {
		return nil, err
	}
	ls.byID[remote] = l
	if ls.timeout > 0 {
		l.armTimeout(ls.timeout, ls.post, func(l *Link) {
			ls.hooks.Fault(l, NewLinkError("connect", l.Remote, ErrConnectTimeout))
		})
	}
	log.Info().Str("module", "peer").Str("peer", string(remote)).Bool("initiator", initiator).Msg("link opened")
	return l, nil
}

func (ls *Links) Get(id domain.UserID) *Link {
	return ls.byID[id]
}

// Remove closes and forgets the link for id. It returns nil if there was none.
func (ls *Links) Remove(id domain.UserID) *Link {
	l, ok := ls.byID[id]
	if !ok {
		return nil
	}
	delete(ls.byID, id)
	l.Close()
	return l
}

// All returns every link ordered by remote id.
func (ls *Links) All() []*Link {
	out := make([]*Link, 0, len(ls.byID))
	for _, l := range ls.byID {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *Link) int { return strings.Compare(string(a.Remote), string(b.Remote)) })
	return out
}

// Connected returns the links in StateConnected ordered by remote id.
func (ls *Links) Connected() []*Link {
	var out []*Link
	for _, l := range ls.All() {
		if l.state == StateConnected {
			out = append(out, l)
		}
	}
	return out
}

func (ls *Links) Len() int { return len(ls.byID) }

// CloseAll closes every link and waits until all connections are destroyed.
func (ls *Links) CloseAll() {
	var wg conc.WaitGroup
	for id, l := range ls.byID {
		delete(ls.byID, id)
		if conn := l.shutdown(); conn != nil {
			wg.Go(conn.Destroy)
		}
	}
	wg.Wait()
}
