package events

import "matchmate-chat/internal/domain/chat"

// Realtime frame types pushed by the server to a chat room.
const (
	TypeMessage          = "message"
	TypeMessageDeleted   = "messageDeleted"
	TypeReactionUpdated  = "reactionUpdated"
	TypeChatBlocked      = "chatBlocked"
	TypeChatUnblocked    = "chatUnblocked"
	TypeMessagesSeen     = "messagesSeen"
	TypeMessageDelivered = "messageDelivered"
	TypeUnreadCount      = "unreadCount"
	TypePong             = "pong"
	TypeError            = "error"
)

// Frame types sent by the client.
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypePing  = "ping"
)

// Redis channel prefixes used by the relay for cross-instance fan-out.
const (
	ChannelPrefixChat = "channel:chat:"
	ChannelPrefixUser = "channel:user:"
)

// MessagePayload is the body of a "message" frame. ClientID is echoed back
// by the server when the sender supplied one; it may be missing.
type MessagePayload struct {
	chat.Message
}

type MessageDeletedPayload struct {
	MessageID  string          `json:"message_id"`
	DeleteType chat.DeleteType `json:"delete_type"`
}

type ReactionUpdatedPayload struct {
	MessageID string          `json:"message_id"`
	Reactions []chat.Reaction `json:"reactions"`
}

type ChatBlockedPayload struct {
	BlockedBy string `json:"blocked_by"`
}

// ChatUnblockedPayload may be empty; an empty UnblockedBy clears both flags.
type ChatUnblockedPayload struct {
	UnblockedBy string `json:"unblocked_by,omitempty"`
}

// MessagesSeenPayload marks MessageIDs (or, when empty, every message of the
// room not authored by SeenBy) as seen by SeenBy.
type MessagesSeenPayload struct {
	SeenBy     string   `json:"seen_by"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

type MessageDeliveredPayload struct {
	DeliveredTo string   `json:"delivered_to"`
	MessageIDs  []string `json:"message_ids,omitempty"`
}

type UnreadCountPayload struct {
	Count int `json:"count"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
