package httpdto

import "matchmate-chat/internal/domain/chat"

// SendMessageRequest is used for POST /api/chats/:chatId/messages
type SendMessageRequest struct {
	Text        string           `json:"text"`
	MediaURL    *string          `json:"media_url,omitempty"`
	MessageType chat.MessageType `json:"message_type" binding:"required"`
	ClientID    string           `json:"client_id,omitempty"`
}

// SendMessageResponse acknowledges a queued send. The confirmed message
// arrives over the realtime channel.
type SendMessageResponse struct {
	Accepted bool   `json:"accepted"`
	ClientID string `json:"client_id,omitempty"`
}

// ReactRequest is used for POST /api/chats/:chatId/messages/:messageId/reactions
type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ReactResponse carries the authoritative reaction list.
type ReactResponse struct {
	MessageID string          `json:"message_id"`
	Reactions []chat.Reaction `json:"reactions"`
}

// DeleteMessageRequest holds query parameters for DELETE /api/chats/:chatId/messages/:messageId
type DeleteMessageRequest struct {
	Type chat.DeleteType `form:"type" binding:"required"`
}
