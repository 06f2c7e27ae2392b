package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"matchmate-chat/internal/events"

	"go.uber.org/zap"
)

const maxConnectionsPerUser = 10

// PresenceTracker shares who is online across relay instances.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type membership struct {
	client *Client
	room   string
	join   bool
	done   chan struct{}
}

type delivery struct {
	channel string
	payload []byte
}

// Hub maintains the set of active clients, their rooms, and delivers
// published frames. All mutation happens on the Run goroutine.
type Hub struct {
	clients    map[string]map[string]*Client
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	members    chan membership
	deliver    chan delivery
	presence   PresenceTracker
	metrics    *Metrics
	logger     *connLogger
	mu         sync.RWMutex
	stopped    chan struct{}
}

type HubOption func(*Hub)

func WithPresence(p PresenceTracker) HubOption {
	return func(h *Hub) {
		h.presence = p
	}
}

func WithHubMetrics(m *Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		h.logger = newConnLogger(l)
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]map[string]*Client),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		members:    make(chan membership),
		deliver:    make(chan delivery, 256),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = newConnLogger(nil)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	return h
}

// Run processes registrations and deliveries until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case client := <-h.register:
			h.handleRegister(ctx, client)

		case client := <-h.unregister:
			h.handleUnregister(ctx, client)

		case m := <-h.members:
			h.handleMembership(m)

		case d := <-h.deliver:
			h.handleDelivery(d)

		case <-ctx.Done():
			return nil
		}
	}
}

// Register hands client to the hub and starts its pumps.
func (h *Hub) Register(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
	case <-ctx.Done():
	}
	return false
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Join adds client to room. It returns once the membership is visible to
// deliveries.
func (h *Hub) Join(client *Client, room string) {
	h.membership(client, room, true)
}

func (h *Hub) Leave(client *Client, room string) {
	h.membership(client, room, false)
}

func (h *Hub) membership(client *Client, room string, join bool) {
	m := membership{client: client, room: room, join: join, done: make(chan struct{})}
	select {
	case h.members <- m:
	case <-h.stopped:
		return
	}
	select {
	case <-m.done:
	case <-h.stopped:
	}
}

// Publish implements events.Publisher for single-instance fan-out.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	select {
	case h.deliver <- delivery{channel: channel, payload: payload}:
		return nil
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsOnline reports whether userID has a socket here or, with a presence
// tracker, on any instance.
func (h *Hub) IsOnline(ctx context.Context, userID string) bool {
	h.mu.RLock()
	local := len(h.clients[userID]) > 0
	h.mu.RUnlock()
	if local || h.presence == nil {
		return local
	}
	online, err := h.presence.IsOnline(ctx, userID)
	if err != nil {
		h.logger.Error("presence lookup failed", userID, "", err)
		return false
	}
	return online
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) handleRegister(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[string]*Client)
	}

	if len(h.clients[client.userID]) >= maxConnectionsPerUser {
		h.logger.Warn("max connections per user reached", client.userID, client.clientID)
		for id, c := range h.clients[client.userID] {
			h.removeClient(c)
			delete(h.clients[client.userID], id)
			h.metrics.connections.Dec()
			if h.presence != nil {
				_ = h.presence.SetOffline(ctx, c.userID)
			}
			break
		}
	}

	h.clients[client.userID][client.clientID] = client
	h.metrics.connections.Inc()

	if h.presence != nil {
		if err := h.presence.SetOnline(ctx, client.userID); err != nil {
			h.logger.Error("presence update failed", client.userID, client.clientID, err)
		}
	}

	h.logger.Info("client connected", client.userID, client.clientID)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) handleUnregister(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := userClients[client.clientID]; !ok {
		return
	}

	delete(userClients, client.clientID)
	h.removeClient(client)
	if len(userClients) == 0 {
		delete(h.clients, client.userID)
	}
	h.metrics.connections.Dec()

	if h.presence != nil {
		if err := h.presence.SetOffline(ctx, client.userID); err != nil {
			h.logger.Error("presence update failed", client.userID, client.clientID, err)
		}
	}

	h.logger.Info("client disconnected", client.userID, client.clientID,
		zap.Duration("connected_for", time.Since(client.connectedAt)))
}

func (h *Hub) handleMembership(m membership) {
	defer close(m.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	if m.join {
		if h.rooms[m.room] == nil {
			h.rooms[m.room] = make(map[*Client]struct{})
		}
		h.rooms[m.room][m.client] = struct{}{}
		m.client.rooms[m.room] = struct{}{}
		return
	}

	delete(m.client.rooms, m.room)
	if members, ok := h.rooms[m.room]; ok {
		delete(members, m.client)
		if len(members) == 0 {
			delete(h.rooms, m.room)
		}
	}
}

// removeClient drops client from every room and closes it. Callers hold mu.
func (h *Hub) removeClient(client *Client) {
	for room := range client.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.rooms = make(map[string]struct{})
	client.close()
}

func (h *Hub) handleDelivery(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, ok := events.RoomFromChannel(d.channel); ok {
		for client := range h.rooms[room] {
			h.send(client, d.payload)
		}
		return
	}

	if userID, ok := strings.CutPrefix(d.channel, events.ChannelPrefixUser); ok {
		for _, client := range h.clients[userID] {
			h.send(client, d.payload)
		}
	}
}

func (h *Hub) send(client *Client, payload []byte) {
	if !client.enqueue(payload) {
		h.metrics.framesDropped.WithLabelValues("buffer_full").Inc()
		h.logger.Warn("client send buffer full", client.userID, client.clientID)
	}
}

func (h *Hub) shutdown() {
	close(h.stopped)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for _, client := range userClients {
			h.removeClient(client)
			h.metrics.connections.Dec()
		}
	}
	h.clients = make(map[string]map[string]*Client)
	h.rooms = make(map[string]map[*Client]struct{})
}
