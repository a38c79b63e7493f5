package signal

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// RetryError refuses a chat message and says when the next one fits.
type RetryError struct {
	After time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%v, retry in %s", ErrRateLimited, e.After.Round(time.Millisecond))
}

func (e *RetryError) Unwrap() error { return ErrRateLimited }

// ChatLimiter allows at most limit messages per room in any sliding
// window of interval.
type ChatLimiter struct {
	mu       sync.Mutex
	sent     map[domain.RoomToken][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewChatLimiter(limit int, interval time.Duration) *ChatLimiter {
	return &ChatLimiter{
		sent:     make(map[domain.RoomToken][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Reserve records a send in room, or returns how long until the
// oldest send in the window expires.
func (l *ChatLimiter) Reserve(room domain.RoomToken) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.interval)
	kept := l.sent[room][:0]
	for _, t := range l.sent[room] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.sent[room] = kept
		return kept[0].Sub(cutoff), false
	}
	l.sent[room] = append(kept, now)
	return 0, true
}

// Forget drops the history of room, as after leaving it.
func (l *ChatLimiter) Forget(room domain.RoomToken) {
	l.mu.Lock()
	delete(l.sent, room)
	l.mu.Unlock()
}
