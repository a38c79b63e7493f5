package http

import (
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const defaultNoticeBacklog = 64

// Entry is a notice with its position in the board's sequence.
type Entry struct {
	Seq uint64 `json:"seq"`
	core.Notice
}

// StreamInfo describes a stream attached to a tile.
type StreamInfo struct {
	Participant domain.UserID `json:"participant"`
	Stream      string        `json:"stream"`
	Audio       bool          `json:"audio"`
	Video       bool          `json:"video"`
}

// Board is a core.Renderer that keeps the latest view, the attached
// streams and a bounded backlog of notices for the control API.
type Board struct {
	mu      sync.RWMutex
	view    core.View
	renders uint64
	streams map[domain.UserID]core.Stream

	notices []Entry // ring, oldest at head
	head    int
	size    int
	seq     uint64
}

var _ core.Renderer = (*Board)(nil)

// NewBoard keeps up to backlog notices; zero uses the default.
func NewBoard(backlog int) *Board {
	if backlog <= 0 {
		backlog = defaultNoticeBacklog
	}
	return &Board{
		streams: make(map[domain.UserID]core.Stream),
		notices: make([]Entry, backlog),
	}
}

func (b *Board) AttachStream(id domain.UserID, s core.Stream) {
	b.mu.Lock()
	b.streams[id] = s
	b.mu.Unlock()
}

func (b *Board) DetachStream(id domain.UserID) {
	b.mu.Lock()
	delete(b.streams, id)
	b.mu.Unlock()
}

func (b *Board) Render(v core.View) {
	b.mu.Lock()
	b.view = v
	b.renders++
	b.mu.Unlock()
}

func (b *Board) Notify(n core.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	e := Entry{Seq: b.seq, Notice: n}
	if b.size < len(b.notices) {
		b.notices[(b.head+b.size)%len(b.notices)] = e
		b.size++
		return
	}
	b.notices[b.head] = e
	b.head = (b.head + 1) % len(b.notices)
}

// View returns the last rendered view and how many renders happened.
func (b *Board) View() (core.View, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.view, b.renders
}

// Notices returns retained notices with Seq greater than after, oldest first.
func (b *Board) Notices(after uint64) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, b.size)
	for i := 0; i < b.size; i++ {
		e := b.notices[(b.head+i)%len(b.notices)]
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

func (b *Board) Streams() []StreamInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StreamInfo, 0, len(b.streams))
	for id, s := range b.streams {
		out = append(out, StreamInfo{
			Participant: id,
			Stream:      s.ID(),
			Audio:       core.AudioTrack(s) != nil,
			Video:       core.VideoTrack(s) != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}
