package session

import (
	"context"
	"time"

	"matchmate-chat/internal/api"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/events"
	"matchmate-chat/internal/transport/httpdto"
	"matchmate-chat/internal/websocket"
)

// API is the subset of the REST client a session calls.
type API interface {
	FetchConversation(ctx context.Context, userID string) (chat.Conversation, error)
	SendMessage(ctx context.Context, chatID string, req httpdto.SendMessageRequest) error
	Upload(ctx context.Context, chatID string, u api.Upload) (httpdto.UploadResponse, error)
	MarkSeen(ctx context.Context, chatID string) error
	DeleteMessage(ctx context.Context, chatID, messageID string, deleteType chat.DeleteType) error
	React(ctx context.Context, chatID, messageID, emoji string) ([]chat.Reaction, error)
	Block(ctx context.Context, chatID string) (httpdto.BlockResponse, error)
	Unblock(ctx context.Context, chatID string) (httpdto.BlockResponse, error)
}

// Realtime is the connection manager a session owns for its lifetime.
type Realtime interface {
	Connect(ctx context.Context, token string) (*websocket.Conn, error)
	JoinRoom(ctx context.Context, chatID string) error
	Events() <-chan events.Event
	Teardown()
}

// UnreadSink receives unread counts pushed over the realtime channel.
type UnreadSink interface {
	Push(count int)
}

type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateNotFound State = "not_found"
	StateFailed   State = "failed"
	StateClosed   State = "closed"
)

// Snapshot is an immutable copy of the session state handed to subscribers.
type Snapshot struct {
	State           State
	ChatID          string
	Counterpart     string
	Messages        []chat.Message
	Pending         int
	IsBlockedByMe   bool
	IsBlockedByThem bool
	Visible         bool
	NewMessage      bool
	Overlay         Overlay
}

func (s Snapshot) Blocked() bool {
	return s.IsBlockedByMe || s.IsBlockedByThem
}

type NoticeKind string

const (
	NoticeSendFailed   NoticeKind = "send_failed"
	NoticeUploadFailed NoticeKind = "upload_failed"
	NoticeDeleteFailed NoticeKind = "delete_failed"
	NoticeReactFailed  NoticeKind = "react_failed"
	NoticeBlockFailed  NoticeKind = "block_failed"
	NoticeServerError  NoticeKind = "server_error"
)

// Notice is a transient, user-facing error. Failed sends stay in the list
// as LOCAL_PENDING; the notice only informs.
type Notice struct {
	Kind   NoticeKind
	ChatID string
	Key    string
	Err    error
	At     time.Time
}

func (n Notice) Error() string {
	if n.Err == nil {
		return string(n.Kind)
	}
	return string(n.Kind) + ": " + n.Err.Error()
}
