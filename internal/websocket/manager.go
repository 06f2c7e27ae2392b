package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"matchmate-chat/internal/events"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventBuffer      = 256
	defaultKeepalive = 25 * time.Second
)

// Manager owns at most one Conn and the single room it is joined to.
type Manager struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger
	events chan events.Event

	mu   sync.Mutex
	conn *Conn
	room string
}

type Option func(*Manager)

func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(wsURL string, opts ...Option) *Manager {
	m := &Manager{
		url:    wsURL,
		dialer: websocket.DefaultDialer,
		log:    zap.NewNop(),
		events: make(chan events.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events delivers server frames from whichever socket is live. The channel
// is never closed; consumers stop reading when they are done.
func (m *Manager) Events() <-chan events.Event {
	return m.events
}

// Connect opens the socket, or returns the live one if already connected.
func (m *Manager) Connect(ctx context.Context, token string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn.Alive() {
		return m.conn, nil
	}

	target, err := url.Parse(m.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := m.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, matchmate_errors.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", matchmate_errors.ErrNotConnected, err)
	}

	m.conn = newConn(ws, m.events, m.log)
	m.room = ""
	m.log.Debug("websocket connected", zap.String("url", m.url))
	return m.conn, nil
}

// JoinRoom moves presence to chatID, leaving the previous room first.
// Joining the current room again is a no-op.
func (m *Manager) JoinRoom(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.conn.Alive() {
		return matchmate_errors.ErrNotConnected
	}
	if m.room == chatID {
		return nil
	}
	if m.room != "" {
		if err := m.conn.Send(ctx, events.Event{Type: events.TypeLeave, ChatID: m.room}); err != nil {
			return fmt.Errorf("leave %s: %w", m.room, err)
		}
		m.room = ""
	}
	if err := m.conn.Send(ctx, events.Event{Type: events.TypeJoin, ChatID: chatID}); err != nil {
		return fmt.Errorf("join %s: %w", chatID, err)
	}
	m.room = chatID
	return nil
}

func (m *Manager) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// Ping sends an application-level ping; the server answers with pong.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if !conn.Alive() {
		return matchmate_errors.ErrNotConnected
	}
	return conn.Send(ctx, events.Event{Type: events.TypePing})
}

// Keepalive pings the live socket every interval until ctx is done. Pings
// that fail while disconnected are logged and retried on the next tick.
func (m *Manager) Keepalive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultKeepalive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Ping(ctx); err != nil {
				m.log.Debug("keepalive ping failed", zap.Error(err))
			}
		}
	}
}

// Teardown leaves the current room, closes the socket and forgets both.
// Safe before Connect and after a previous Teardown.
func (m *Manager) Teardown() {
	m.mu.Lock()
	conn, room := m.conn, m.room
	m.conn, m.room = nil, ""
	m.mu.Unlock()

	if conn == nil {
		return
	}
	if room != "" && conn.Alive() {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		_ = conn.Send(ctx, events.Event{Type: events.TypeLeave, ChatID: room})
		cancel()
	}
	conn.Close()
	m.log.Debug("websocket torn down")
}
