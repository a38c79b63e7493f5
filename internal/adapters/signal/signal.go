// Package signal is the websocket gateway to the room relay service.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
	ErrRateLimited  = errors.New("rate limited")
)

type Options struct {
	URL          string
	Header       http.Header
	SendBuffer   int
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	// ChatLimit messages per ChatInterval; zero disables the limiter.
	ChatLimit    int
	ChatInterval time.Duration
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = defaultPingPeriod
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteWait
	}
}

// Client implements core.Gateway over one websocket connection.
// Sends never block: a full queue fails with ErrBackpressure.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	opts    Options
	limiter *ChatLimiter

	mu      sync.RWMutex
	closed  bool
	running bool
}

var _ core.Gateway = (*Client)(nil)

// Dial connects to the relay. The returned client is idle until Run.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	log.Info().Str("module", "signal").Str("url", opts.URL).Msg("connected to relay")
	return NewClient(ws, opts), nil
}

// NewClient wraps an established connection.
func NewClient(ws *websocket.Conn, opts Options) *Client {
	opts.defaults()
	c := &Client{
		conn: ws,
		send: make(chan []byte, opts.SendBuffer),
		opts: opts,
	}
	if opts.ChatLimit > 0 && opts.ChatInterval > 0 {
		c.limiter = NewChatLimiter(opts.ChatLimit, opts.ChatInterval)
	}
	return c
}

func (c *Client) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Client) sendMessage(m Message) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	if err := c.TrySend(data); err != nil {
		return fmt.Errorf("send %s: %w", m.Type, err)
	}
	return nil
}

// Close stops accepting frames. A running write pump flushes what is
// queued, sends a close frame and closes the socket. Close is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if !c.running {
		_ = c.conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
