package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/middleware"
)

const (
	chatWriteWait    = 10 * time.Second
	chatPongWait     = 60 * time.Second
	chatPingPeriod   = 30 * time.Second
	chatMaxFrameSize = 64 * 1024

	// CloseUnauthenticated is sent when a socket never presents a valid credential.
	CloseUnauthenticated = 4401
)

// ChatConn is the part of a websocket connection the realtime transport drives.
type ChatConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type chatClient struct {
	id       string
	conn     ChatConn
	send     chan []byte
	service  *chatService
	identity middleware.Identity
	ctx      context.Context
	closed   chan struct{}
	once     sync.Once

	// writerDone is closed when the writer goroutine has stopped touching conn.
	writerDone chan struct{}

	// current is the last joined room; only the reader goroutine touches it.
	current uint
}

func (c *chatClient) owner() uint {
	return c.identity.UserID
}

func (c *chatClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// deliver enqueues without blocking. It reports false when the queue is full.
func (c *chatClient) deliver(out outbound) bool {
	if c.isClosed() {
		return true
	}
	select {
	case c.send <- out.payload:
		return true
	default:
		return false
	}
}

func (c *chatClient) disconnect() {
	c.close()
}

func (c *chatClient) emit(event dto.RealtimeEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.service.logger.Warn().Err(err).Msg("failed to encode realtime event")
		return
	}
	if !c.deliver(outbound{event: event, payload: payload}) {
		c.service.logger.Warn().Str("conn_id", c.id).Msg("disconnecting chat client with full queue")
		c.close()
	}
}

func (c *chatClient) emitError(code, message string) {
	c.emit(dto.RealtimeEvent{Type: dto.EventError, Error: &dto.RealtimeError{Code: code, Message: message}})
}

// writeDirect bypasses the queue; it is only used before the writer goroutine starts.
func (c *chatClient) writeDirect(event dto.RealtimeEvent) {
	event.SentAt = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *chatClient) reject(code int, reason string) {
	c.writeDirect(dto.RealtimeEvent{Type: dto.EventError, Error: &dto.RealtimeError{Code: "unauthenticated", Message: reason}})
	_ = c.conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.close()
}

func (c *chatClient) reader() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(chatPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(chatPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.service.logger.Debug().Err(err).Str("conn_id", c.id).Msg("chat read loop ended")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(chatPongWait))

		c.service.handleFrame(c, data)
		if c.isClosed() {
			return
		}
	}
}

func (c *chatClient) writer() {
	ticker := time.NewTicker(chatPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		close(c.writerDone)
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.service.logger.Debug().Err(err).Str("conn_id", c.id).Msg("chat write loop terminated")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.service.logger.Debug().Err(err).Str("conn_id", c.id).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.remove(c)
		_ = c.conn.Close()
	})
}
