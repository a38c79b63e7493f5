package signal

import (
	"errors"
	"testing"
	"time"
)

func TestChatLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewChatLimiter(2, 10*time.Second)
	l.now = func() time.Time { return now }

	for i := range 2 {
		if _, ok := l.Reserve("standup"); !ok {
			t.Fatalf("send %d refused", i)
		}
		now = now.Add(time.Second)
	}
	wait, ok := l.Reserve("standup")
	if ok {
		t.Fatal("third send inside the window should be refused")
	}
	// The first send was at 12:00:00 and now is 12:00:02.
	if wait != 8*time.Second {
		t.Fatalf("wait = %v, want 8s", wait)
	}
	if _, ok := l.Reserve("retro"); !ok {
		t.Fatal("rooms are limited independently")
	}

	now = now.Add(8*time.Second - time.Millisecond)
	if _, ok := l.Reserve("standup"); ok {
		t.Fatal("window has not slid yet")
	}
	now = now.Add(time.Millisecond)
	if _, ok := l.Reserve("standup"); !ok {
		t.Fatal("oldest send should have expired")
	}

	l.Forget("standup")
	if _, ok := l.Reserve("standup"); !ok {
		t.Fatal("forgotten room starts fresh")
	}
}

func TestRetryErrorIsRateLimited(t *testing.T) {
	var err error = &RetryError{After: 1500 * time.Millisecond}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RetryError should match ErrRateLimited")
	}
	if err.Error() != "rate limited, retry in 1.5s" {
		t.Fatalf("message = %q", err.Error())
	}
}
