// Package websocket is the client side of the realtime channel: one socket
// per active conversation view, scoped to at most one room at a time.
package websocket

import (
	"bytes"
	"context"
	"sync"
	"time"

	"matchmate-chat/internal/events"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
)

var newline = []byte{'\n'}

// Conn is one live socket. Writes go through writePump; reads are decoded
// by readPump and forwarded to the owning Manager's event channel.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	out  chan<- events.Event
	log  *zap.Logger
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn, out chan<- events.Event, log *zap.Logger) *Conn {
	c := &Conn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		out:  out,
		log:  log,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Alive reports whether the socket is still open.
func (c *Conn) Alive() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.quit:
		return false
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send queues a client frame.
func (c *Conn) Send(ctx context.Context, ev events.Event) error {
	data, err := events.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.quit:
		return matchmate_errors.ErrNotConnected
	case <-c.done:
		return matchmate_errors.ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.quit:
		return matchmate_errors.ErrNotConnected
	case <-c.done:
		return matchmate_errors.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued frames, sends a close frame and waits for the write
// side to finish. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.quit)
	})
	select {
	case <-c.done:
	case <-time.After(writeWait):
		_ = c.ws.Close()
	}
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket unexpected close", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		// The server may batch several frames into one message.
		for _, frame := range bytes.Split(message, newline) {
			frame = bytes.TrimSpace(frame)
			if len(frame) == 0 {
				continue
			}
			ev, err := events.Decode(frame)
			if err != nil {
				c.log.Debug("dropping undecodable frame", zap.Error(err))
				continue
			}
			select {
			case c.out <- ev:
			case <-c.quit:
				return
			}
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			c.flush()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
