package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Run pumps frames until ctx ends or the connection drops. Decoded
// events go to handle from the read goroutine; a drop that was not
// requested is reported once as core.Disconnected.
func (c *Client) Run(ctx context.Context, handle func(core.GatewayEvent)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.running = true
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump(ctx)
	}()

	err := c.readPump(handle)
	requested := c.isClosed()
	_ = c.conn.Close()
	c.Close()
	<-writeDone

	if ctx.Err() != nil || requested || isNormalClose(err) {
		return nil
	}
	handle(core.Disconnected{Err: err})
	return err
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				c.writeClose()
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}

func (c *Client) readPump(handle func(core.GatewayEvent)) error {
	c.conn.SetReadLimit(c.opts.ReadLimit)
	c.armKeepalive()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return err
		}
		ev, err := Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("inbound frame dropped")
			continue
		}
		if ev == nil {
			continue
		}
		handle(ev)
	}
}

func isNormalClose(err error) bool {
	return err == nil ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
