package relay

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"matchmate-chat/internal/domain/chat"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/google/uuid"
)

type conversation struct {
	id       string
	users    [2]string
	messages []chat.Message
	hidden   map[string]map[string]struct{}
	blocked  map[string]bool
}

func (c *conversation) other(userID string) string {
	if c.users[0] == userID {
		return c.users[1]
	}
	return c.users[0]
}

func (c *conversation) isBlocked() bool {
	for _, on := range c.blocked {
		if on {
			return true
		}
	}
	return false
}

func (c *conversation) isHidden(userID, messageID string) bool {
	_, ok := c.hidden[userID][messageID]
	return ok
}

func (c *conversation) index(messageID string) int {
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// Store is the relay's in-memory chat state. It lives as long as the
// process.
type Store struct {
	mu    sync.Mutex
	convs map[string]*conversation
	now   func() time.Time
	newID func() string
}

func NewStore() *Store {
	return &Store{
		convs: make(map[string]*conversation),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Conversation returns the direct chat between self and other, creating it
// on first use.
func (s *Store) Conversation(self, other string) (chat.Conversation, error) {
	if self == "" || other == "" || self == other || strings.Contains(other, ":") {
		return chat.Conversation{}, fmt.Errorf("%w: counterpart %q", matchmate_errors.ErrInvalidInput, other)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chat.DirectChatID(self, other), self)
	if err != nil {
		return chat.Conversation{}, err
	}
	return s.view(conv, self), nil
}

// Counterpart returns the other participant of chatID.
func (s *Store) Counterpart(chatID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, userID)
	if err != nil {
		return "", err
	}
	return conv.other(userID), nil
}

// CheckSendable fails with ErrBlocked when either side blocked the chat.
func (s *Store) CheckSendable(chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, userID)
	if err != nil {
		return err
	}
	if conv.isBlocked() {
		return matchmate_errors.ErrBlocked
	}
	return nil
}

// AddMessage stores a message from sender and returns it with its server id.
// clientID is kept so the echo can be correlated.
func (s *Store) AddMessage(chatID, sender string, msgType chat.MessageType, text string, mediaURL *string, clientID string) (chat.Message, error) {
	if msgType == "" {
		msgType = chat.MessageTypeText
	}
	if !msgType.Valid() {
		return chat.Message{}, fmt.Errorf("%w: message type %q", matchmate_errors.ErrInvalidInput, msgType)
	}
	if msgType == chat.MessageTypeText && strings.TrimSpace(text) == "" {
		return chat.Message{}, fmt.Errorf("%w: empty text", matchmate_errors.ErrInvalidInput)
	}
	if msgType != chat.MessageTypeText && (mediaURL == nil || *mediaURL == "") {
		return chat.Message{}, fmt.Errorf("%w: %s without media url", matchmate_errors.ErrInvalidInput, msgType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, sender)
	if err != nil {
		return chat.Message{}, err
	}
	if conv.isBlocked() {
		return chat.Message{}, matchmate_errors.ErrBlocked
	}

	msg := chat.Message{
		ID:       s.newID(),
		ClientID: clientID,
		Sender:   sender,
		Type:     msgType,
		Text:     text,
		MediaURL: mediaURL,
		SentAt:   s.now(),
	}
	conv.messages = append(conv.messages, msg)
	return msg.Clone(), nil
}

// MarkDelivered records delivery to userID of every message the other side
// sent and returns the ids that changed.
func (s *Store) MarkDelivered(chatID, userID string) ([]string, error) {
	return s.mark(chatID, userID, func(m *chat.Message) *[]string { return &m.DeliveredTo })
}

// MarkSeen is MarkDelivered for SeenBy. Seen messages count as delivered.
func (s *Store) MarkSeen(chatID, userID string) ([]string, error) {
	return s.mark(chatID, userID, func(m *chat.Message) *[]string {
		m.DeliveredTo = chat.MergeSet(m.DeliveredTo, []string{userID})
		return &m.SeenBy
	})
}

func (s *Store) mark(chatID, userID string, field func(*chat.Message) *[]string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, userID)
	if err != nil {
		return nil, err
	}

	var changed []string
	for i := range conv.messages {
		m := &conv.messages[i]
		if m.Sender == userID || m.DeletedForEveryone {
			continue
		}
		set := field(m)
		before := len(*set)
		*set = chat.MergeSet(*set, []string{userID})
		if len(*set) != before {
			changed = append(changed, m.ID)
		}
	}
	return changed, nil
}

// Unread counts messages addressed to userID that it has not seen.
func (s *Store) Unread(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, conv := range s.convs {
		if conv.users[0] != userID && conv.users[1] != userID {
			continue
		}
		for _, m := range conv.messages {
			if m.Sender == userID || m.DeletedForEveryone || conv.isHidden(userID, m.ID) {
				continue
			}
			if !contains(m.SeenBy, userID) {
				count++
			}
		}
	}
	return count
}

// Delete hides messageID from userID (forMe) or tombstones it for both
// sides (forEveryone, sender only).
func (s *Store) Delete(chatID, userID, messageID string, deleteType chat.DeleteType) error {
	if !deleteType.Valid() {
		return fmt.Errorf("%w: delete type %q", matchmate_errors.ErrInvalidInput, deleteType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, userID)
	if err != nil {
		return err
	}
	idx := conv.index(messageID)
	if idx < 0 || conv.isHidden(userID, messageID) {
		return fmt.Errorf("message %s: %w", messageID, matchmate_errors.ErrNotFound)
	}

	if deleteType == chat.DeleteForMe {
		if conv.hidden[userID] == nil {
			conv.hidden[userID] = make(map[string]struct{})
		}
		conv.hidden[userID][messageID] = struct{}{}
		return nil
	}

	if conv.messages[idx].Sender != userID {
		return fmt.Errorf("only the sender can delete for everyone: %w", matchmate_errors.ErrForbidden)
	}
	conv.messages[idx].Tombstone()
	return nil
}

// React toggles userID's reaction on messageID. A user holds at most one
// reaction; the same emoji again removes it. Returns the full list.
func (s *Store) React(chatID, userID, messageID, emoji string) ([]chat.Reaction, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, fmt.Errorf("%w: empty emoji", matchmate_errors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, userID)
	if err != nil {
		return nil, err
	}
	idx := conv.index(messageID)
	if idx < 0 || conv.isHidden(userID, messageID) {
		return nil, fmt.Errorf("message %s: %w", messageID, matchmate_errors.ErrNotFound)
	}
	m := &conv.messages[idx]
	if m.DeletedForEveryone {
		return nil, fmt.Errorf("%w: message was deleted", matchmate_errors.ErrInvalidInput)
	}

	reactions := make([]chat.Reaction, 0, len(m.Reactions)+1)
	toggledOff := false
	for _, r := range m.Reactions {
		if r.By == userID {
			toggledOff = r.Emoji == emoji
			continue
		}
		reactions = append(reactions, r)
	}
	if !toggledOff {
		reactions = append(reactions, chat.Reaction{Emoji: emoji, By: userID})
	}
	m.Reactions = reactions
	return append([]chat.Reaction(nil), reactions...), nil
}

// SetBlocked sets whether userID blocks the chat and returns the chat as
// userID sees it.
func (s *Store) SetBlocked(chatID, userID string, blocked bool) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.lookup(chatID, userID)
	if err != nil {
		return chat.Conversation{}, err
	}
	conv.blocked[userID] = blocked
	return s.view(conv, userID), nil
}

// lookup returns chatID for a participant, creating it if needed. Callers
// hold mu.
func (s *Store) lookup(chatID, userID string) (*conversation, error) {
	a, b, ok := chat.Participants(chatID)
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, matchmate_errors.ErrNotFound)
	}
	if userID != a && userID != b {
		return nil, fmt.Errorf("chat %s: %w", chatID, matchmate_errors.ErrForbidden)
	}
	conv, ok := s.convs[chatID]
	if !ok {
		conv = &conversation{
			id:      chatID,
			users:   [2]string{a, b},
			hidden:  make(map[string]map[string]struct{}),
			blocked: make(map[string]bool),
		}
		s.convs[chatID] = conv
	}
	return conv, nil
}

func (s *Store) view(conv *conversation, userID string) chat.Conversation {
	out := chat.Conversation{
		ChatID:          conv.id,
		Users:           []string{conv.users[0], conv.users[1]},
		Messages:        make([]chat.Message, 0, len(conv.messages)),
		IsBlockedByMe:   conv.blocked[userID],
		IsBlockedByThem: conv.blocked[conv.other(userID)],
	}
	for _, m := range conv.messages {
		if conv.isHidden(userID, m.ID) {
			continue
		}
		out.Messages = append(out.Messages, m.Clone())
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
