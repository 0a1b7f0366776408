package core

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Conn struct {
	id               string
	conn             *websocket.Conn
	context          context.Context
	writeStream      chan *Event
	closeOnce        sync.Once
	dispatch         func(context.Context, *Event)
	notifyDisconnect func()
	pongWait         time.Duration
	writeWait        time.Duration
	readLimit        int64
	logger           *zap.Logger
}

// trySend enqueues e without blocking and reports whether there was room for it.
// The caller must guarantee the stream has not been closed.
func (c *Conn) trySend(e *Event) bool {
	select {
	case c.writeStream <- e:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.writeStream)
	})
}

func (c *Conn) readLoop() {
	c.logger.Debug("read loop started")
	defer func() {
		c.notifyDisconnect()
		c.conn.Close()
		c.logger.Debug("read loop stopped")
	}()

	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug("expected close", zap.Error(err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Warn("unexpected close", zap.Error(err))
				return
			}
			c.logger.Debug("NextReader", zap.Error(err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Warn("unexpected message format", zap.Int("format", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Warn("dropped frame", zap.Error(err))
			continue
		}
		event.ConnID = c.id

		c.logger.Debug(event.String())

		c.dispatch(c.context, &event)
	}
}

func (c *Conn) writeLoop() {
	c.logger.Debug("write loop started")
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Debug("getting next writer", zap.Error(err))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error("encode", zap.Error(err))
			}
			if err := w.Close(); err != nil {
				c.logger.Debug("flushing frame", zap.Error(err))
				return
			}
		case <-c.context.Done():
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("writing ping", zap.Error(err))
				return
			}
		}
	}
}
