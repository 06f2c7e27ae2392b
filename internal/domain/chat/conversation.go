package chat

import (
	"sort"
	"strings"
)

// Conversation is the two-party chat as returned by the conversation fetch.
type Conversation struct {
	ChatID          string    `json:"chat_id"`
	Users           []string  `json:"users"`
	Messages        []Message `json:"messages"`
	IsBlockedByMe   bool      `json:"is_blocked_by_me"`
	IsBlockedByThem bool      `json:"is_blocked_by_them"`
}

func (c Conversation) Blocked() bool {
	return c.IsBlockedByMe || c.IsBlockedByThem
}

// Counterpart returns the participant that is not self.
func (c Conversation) Counterpart(self string) string {
	for _, u := range c.Users {
		if u != self {
			return u
		}
	}
	return ""
}

// DirectChatID builds the stable id of a pairing regardless of argument order.
func DirectChatID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return directPrefix + strings.Join(pair, ":")
}

const directPrefix = "dm:"

// Participants is the inverse of DirectChatID.
func Participants(chatID string) (string, string, bool) {
	rest, ok := strings.CutPrefix(chatID, directPrefix)
	if !ok {
		return "", "", false
	}
	a, b, ok := strings.Cut(rest, ":")
	if !ok || a == "" || b == "" || strings.Contains(b, ":") {
		return "", "", false
	}
	return a, b, true
}

// HasParticipant reports whether userID is one of the two users of chatID.
func HasParticipant(chatID, userID string) bool {
	a, b, ok := Participants(chatID)
	return ok && userID != "" && (userID == a || userID == b)
}
