package relay

import (
	"net/http"

	"matchmate-chat/internal/auth"
	"matchmate-chat/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler authenticates and upgrades /ws requests.
type WebSocketHandler struct {
	hub        *Hub
	secret     []byte
	limiters   *middleware.LimiterPool
	authorizer *Authorizer
	onJoin     JoinHook
	logger     *connLogger
}

func NewWebSocketHandler(hub *Hub, secret []byte, limiters *middleware.LimiterPool, authorizer *Authorizer, onJoin JoinHook) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		secret:     secret,
		limiters:   limiters,
		authorizer: authorizer,
		onJoin:     onJoin,
		logger:     hub.logger,
	}
}

// Handle upgrades HTTP to WebSocket
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := h.extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := auth.Parse(h.secret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := claims.UserID()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", userID, "", err)
		return
	}

	clientID := uuid.New().String()
	client := NewClient(h.hub, conn, userID, clientID, h.limiters.Get("ws:"+userID), h.authorizer, h.onJoin)
	if !h.hub.Register(c.Request.Context(), client) {
		conn.Close()
	}
}

func (h *WebSocketHandler) extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return auth.BearerToken(c.GetHeader("Authorization"))
}
