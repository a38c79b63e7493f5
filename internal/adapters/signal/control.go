package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPingPeriod = 54 * time.Second
	defaultReadLimit  = 64 * 1024
	defaultSendBuffer = 32
)

// pongWait leaves the relay a tenth of a ping period to answer.
func (c *Client) pongWait() time.Duration {
	return c.opts.PingPeriod * 10 / 9
}

func (c *Client) armKeepalive() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})
}

func (c *Client) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
}

func (c *Client) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout)); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("close frame not sent")
	}
	_ = c.conn.Close()
}
