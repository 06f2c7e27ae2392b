package relay

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"matchmate-chat/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

var newline = []byte{'\n'}

// JoinHook runs after a client joined room, off the hub goroutine.
type JoinHook func(ctx context.Context, userID, room string)

// Client is one relay websocket connection.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       string
	clientID     string
	rooms        map[string]struct{}
	limiter      *rate.Limiter
	authorizer   *Authorizer
	onJoin       JoinHook
	connectedAt  time.Time
	lastActivity atomic.Int64
	logger       *connLogger

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, clientID string, limiter *rate.Limiter, authorizer *Authorizer, onJoin JoinHook) *Client {
	now := time.Now()
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		userID:      userID,
		clientID:    clientID,
		rooms:       make(map[string]struct{}),
		limiter:     limiter,
		authorizer:  authorizer,
		onJoin:      onJoin,
		connectedAt: now,
		logger:      hub.logger,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

// enqueue queues payload without blocking. It reports false when the
// buffer is full or the client is closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity.Store(time.Now().UnixNano())
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			break
		}
		c.lastActivity.Store(time.Now().UnixNano())

		for _, frame := range bytes.Split(message, newline) {
			frame = bytes.TrimSpace(frame)
			if len(frame) == 0 {
				continue
			}
			c.handleFrame(frame)
		}
	}
}

func (c *Client) handleFrame(frame []byte) {
	ev, err := events.Decode(frame)
	if err != nil {
		c.hub.metrics.framesDropped.WithLabelValues("malformed").Inc()
		c.logger.Warn("malformed frame", c.userID, c.clientID, zap.Error(err))
		return
	}

	if !c.limiter.Allow() {
		c.hub.metrics.framesDropped.WithLabelValues("rate_limited").Inc()
		c.logger.Warn("rate limit exceeded", c.userID, c.clientID, zap.String("msg_type", ev.Type))
		c.reply(errorFrame(ev.ChatID, "rate limit exceeded", "RATE_LIMITED"))
		return
	}

	switch ev.Type {
	case events.TypeJoin:
		c.handleJoin(ev.ChatID)
	case events.TypeLeave:
		if ev.ChatID != "" {
			c.hub.Leave(c, ev.ChatID)
		}
	case events.TypePing:
		c.reply(events.Event{Type: events.TypePong, OccurredAt: time.Now().UTC()})
	default:
		c.hub.metrics.framesDropped.WithLabelValues("unknown_type").Inc()
		c.logger.Warn("unknown message type", c.userID, c.clientID, zap.String("msg_type", ev.Type))
	}
}

func (c *Client) handleJoin(room string) {
	if !c.authorizer.CanJoin(c.userID, room) {
		c.logger.Warn("join denied", c.userID, c.clientID, zap.String("chat_id", room))
		c.reply(errorFrame(room, "not a participant of this chat", "FORBIDDEN"))
		return
	}
	c.hub.Join(c, room)
	if c.onJoin != nil {
		c.onJoin(context.Background(), c.userID, room)
	}
}

func (c *Client) reply(ev events.Event) {
	data, err := events.Encode(ev)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		c.hub.metrics.framesDropped.WithLabelValues("buffer_full").Inc()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Queued frames share one websocket message, one per line.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write(newline)
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(time.Unix(0, c.lastActivity.Load())) > pongWait*2 {
				c.logger.Info("client idle timeout", c.userID, c.clientID)
				return
			}
		}
	}
}

func errorFrame(chatID, message, code string) events.Event {
	return events.MustNew(events.TypeError, chatID, events.ErrorPayload{Message: message, Code: code})
}
