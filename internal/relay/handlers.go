package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"matchmate-chat/internal/auth"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/events"
	"matchmate-chat/internal/middleware"
	"matchmate-chat/internal/transport/httpdto"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MediaStore persists uploaded media and returns the URL clients load.
type MediaStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type onlineChecker interface {
	IsOnline(ctx context.Context, userID string) bool
}

// ChatHandler serves the chat REST API. Every mutation is answered over
// HTTP and announced to the room through the fanout.
type ChatHandler struct {
	store    *Store
	fanout   *Fanout
	presence onlineChecker
	media    MediaStore
	log      *zap.Logger
}

func NewChatHandler(store *Store, fanout *Fanout, hub *Hub, media MediaStore, log *zap.Logger) *ChatHandler {
	return &ChatHandler{store: store, fanout: fanout, presence: hub, media: media, log: log}
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.store.Conversation(currentUser(c), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conv))
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	count := h.store.Unread(currentUser(c))
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UnreadCountResponse{Count: count}))
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := currentUser(c)
	chatID := c.Param("chatId")

	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrInvalidInput, err))
		return
	}

	msg, err := h.store.AddMessage(chatID, userID, req.MessageType, req.Text, req.MediaURL, req.ClientID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.announceMessage(c.Request.Context(), chatID, msg)

	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{
		Accepted: true,
		ClientID: req.ClientID,
	}))
}

func (h *ChatHandler) UploadMedia(c *gin.Context) {
	userID := currentUser(c)
	chatID := c.Param("chatId")

	if err := h.store.CheckSendable(chatID, userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, httpdto.MaxUploadSize+(1<<20))
	fileHeader, err := c.FormFile(httpdto.UploadFieldFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(matchmate_errors.ErrTooLarge)
			return
		}
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrNotUploaded, err))
		return
	}
	if fileHeader.Size > httpdto.MaxUploadSize {
		_ = c.Error(matchmate_errors.ErrTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrNotUploaded, err))
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrNotUploaded, err))
		return
	}
	if len(data) == 0 {
		_ = c.Error(matchmate_errors.ErrNotUploaded)
		return
	}

	msgType := chat.MessageType(c.PostForm(httpdto.UploadFieldMessageType))
	detected := mimetype.Detect(data)
	if !mediaMatches(msgType, detected) {
		_ = c.Error(fmt.Errorf("%w: %s content for a %q message", matchmate_errors.ErrInvalidInput, detected.String(), msgType))
		return
	}

	key := chatID + "/" + uuid.New().String() + detected.Extension()
	url, err := h.media.Put(c.Request.Context(), key, detected.String(), data)
	if err != nil {
		h.log.Error("media store failed", zap.String("key", key), zap.Error(err))
		_ = c.Error(fmt.Errorf("store media: %w", matchmate_errors.ErrServiceUnavailable))
		return
	}

	clientID := c.PostForm(httpdto.UploadFieldClientID)
	msg, err := h.store.AddMessage(chatID, userID, msgType, "", &url, clientID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.announceMessage(c.Request.Context(), chatID, msg)

	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.UploadResponse{
		Accepted: true,
		MediaURL: url,
		ClientID: clientID,
	}))
}

func (h *ChatHandler) MarkSeen(c *gin.Context) {
	userID := currentUser(c)
	chatID := c.Param("chatId")

	ids, err := h.store.MarkSeen(chatID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ctx := c.Request.Context()
	if len(ids) > 0 {
		h.publishRoom(ctx, events.MustNew(events.TypeMessagesSeen, chatID, events.MessagesSeenPayload{
			SeenBy:     userID,
			MessageIDs: ids,
		}))
	}
	h.pushUnread(ctx, userID)

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"marked": len(ids)}))
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID := currentUser(c)
	chatID := c.Param("chatId")
	messageID := c.Param("messageId")

	var req httpdto.DeleteMessageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrInvalidInput, err))
		return
	}
	if err := h.store.Delete(chatID, userID, messageID, req.Type); err != nil {
		_ = c.Error(err)
		return
	}

	if req.Type == chat.DeleteForEveryone {
		h.publishRoom(c.Request.Context(), events.MustNew(events.TypeMessageDeleted, chatID, events.MessageDeletedPayload{
			MessageID:  messageID,
			DeleteType: chat.DeleteForEveryone,
		}))
	}
	h.pushUnread(c.Request.Context(), userID)

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message_id": messageID, "delete_type": req.Type}))
}

func (h *ChatHandler) React(c *gin.Context) {
	userID := currentUser(c)
	chatID := c.Param("chatId")
	messageID := c.Param("messageId")

	var req httpdto.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrInvalidInput, err))
		return
	}
	reactions, err := h.store.React(chatID, userID, messageID, req.Emoji)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.publishRoom(c.Request.Context(), events.MustNew(events.TypeReactionUpdated, chatID, events.ReactionUpdatedPayload{
		MessageID: messageID,
		Reactions: reactions,
	}))

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReactResponse{MessageID: messageID, Reactions: reactions}))
}

func (h *ChatHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

func (h *ChatHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *ChatHandler) setBlocked(c *gin.Context, blocked bool) {
	userID := currentUser(c)
	chatID := c.Param("chatId")

	conv, err := h.store.SetBlocked(chatID, userID, blocked)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if blocked {
		h.publishRoom(c.Request.Context(), events.MustNew(events.TypeChatBlocked, chatID, events.ChatBlockedPayload{BlockedBy: userID}))
	} else {
		h.publishRoom(c.Request.Context(), events.MustNew(events.TypeChatUnblocked, chatID, events.ChatUnblockedPayload{UnblockedBy: userID}))
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BlockResponse{
		ChatID:          conv.ChatID,
		IsBlockedByMe:   conv.IsBlockedByMe,
		IsBlockedByThem: conv.IsBlockedByThem,
	}))
}

// DeliverPending marks the room's backlog delivered to a user that just
// joined it.
func (h *ChatHandler) DeliverPending(ctx context.Context, userID, chatID string) {
	ids, err := h.store.MarkDelivered(chatID, userID)
	if err != nil {
		h.log.Warn("deliver pending failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	if len(ids) > 0 {
		h.publishRoom(ctx, events.MustNew(events.TypeMessageDelivered, chatID, events.MessageDeliveredPayload{
			DeliveredTo: userID,
			MessageIDs:  ids,
		}))
	}
}

// announceMessage echoes msg to the room, then reports delivery when the
// counterpart is connected and refreshes its unread count.
func (h *ChatHandler) announceMessage(ctx context.Context, chatID string, msg chat.Message) {
	h.publishRoom(ctx, events.MustNew(events.TypeMessage, chatID, events.MessagePayload{Message: msg}))

	counterpart, err := h.store.Counterpart(chatID, msg.Sender)
	if err != nil {
		return
	}
	if h.presence.IsOnline(ctx, counterpart) {
		if ids, err := h.store.MarkDelivered(chatID, counterpart); err == nil && len(ids) > 0 {
			h.publishRoom(ctx, events.MustNew(events.TypeMessageDelivered, chatID, events.MessageDeliveredPayload{
				DeliveredTo: counterpart,
				MessageIDs:  ids,
			}))
		}
	}
	h.pushUnread(ctx, counterpart)
}

func (h *ChatHandler) pushUnread(ctx context.Context, userID string) {
	ev := events.MustNew(events.TypeUnreadCount, "", events.UnreadCountPayload{Count: h.store.Unread(userID)})
	if err := h.fanout.User(ctx, userID, ev); err != nil {
		h.log.Warn("unread push failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *ChatHandler) publishRoom(ctx context.Context, ev events.Event) {
	if err := h.fanout.Room(ctx, ev); err != nil {
		h.log.Warn("publish failed", zap.String("type", ev.Type), zap.String("chat_id", ev.ChatID), zap.Error(err))
	}
}

func mediaMatches(msgType chat.MessageType, detected *mimetype.MIME) bool {
	switch msgType {
	case chat.MessageTypeImage:
		return strings.HasPrefix(detected.String(), "image/")
	case chat.MessageTypeVideo:
		return strings.HasPrefix(detected.String(), "video/")
	}
	return false
}

// AuthHandler issues tokens for local testing. It must not be mounted in
// front of real users.
type AuthHandler struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthHandler(secret []byte, ttl time.Duration) *AuthHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthHandler{secret: secret, ttl: ttl}
}

func (h *AuthHandler) DevToken(c *gin.Context) {
	var req httpdto.DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", matchmate_errors.ErrInvalidInput, err))
		return
	}
	if strings.Contains(req.UserID, ":") {
		_ = c.Error(fmt.Errorf("%w: user id may not contain ':'", matchmate_errors.ErrInvalidInput))
		return
	}

	token, expiresAt, err := auth.Issue(h.secret, req.UserID, h.ttl)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DevTokenResponse{
		UserID:      req.UserID,
		AccessToken: token,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}))
}

func currentUser(c *gin.Context) string {
	userID, _ := middleware.UserIDFromContext(c.Request.Context())
	return userID
}
