package httpdto

// UnreadCountResponse is returned by GET /api/chats/unread-count
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// BlockResponse is returned by the block and unblock endpoints.
type BlockResponse struct {
	ChatID          string `json:"chat_id"`
	IsBlockedByMe   bool   `json:"is_blocked_by_me"`
	IsBlockedByThem bool   `json:"is_blocked_by_them"`
}
