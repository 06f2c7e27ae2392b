package chat

import (
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo:
		return true
	}
	return false
}

type DeleteType string

const (
	DeleteForMe       DeleteType = "forMe"
	DeleteForEveryone DeleteType = "forEveryone"
)

func (t DeleteType) Valid() bool {
	return t == DeleteForMe || t == DeleteForEveryone
}

// MessageStatus is derived from a message's fields, never stored.
type MessageStatus string

const (
	StatusLocalPending       MessageStatus = "LOCAL_PENDING"
	StatusConfirmed          MessageStatus = "CONFIRMED"
	StatusDeletedForEveryone MessageStatus = "DELETED_FOR_EVERYONE"
)

type Reaction struct {
	Emoji string `json:"emoji"`
	By    string `json:"by"`
}

// Message is a single entry of a conversation as seen by the client.
type Message struct {
	ID                 string      `json:"id,omitempty"`
	ClientID           string      `json:"client_id,omitempty"`
	Sender             string      `json:"sender"`
	FromSelf           bool        `json:"-"`
	Type               MessageType `json:"message_type"`
	Text               string      `json:"text"`
	MediaURL           *string     `json:"media_url"`
	SentAt             time.Time   `json:"sent_at"`
	Reactions          []Reaction  `json:"reactions,omitempty"`
	DeliveredTo        []string    `json:"delivered_to,omitempty"`
	SeenBy             []string    `json:"seen_by,omitempty"`
	DeletedForEveryone bool        `json:"deleted_for_everyone"`
}

func (m Message) Status() MessageStatus {
	switch {
	case m.DeletedForEveryone:
		return StatusDeletedForEveryone
	case m.ID == "":
		return StatusLocalPending
	default:
		return StatusConfirmed
	}
}

func (m Message) IsPending() bool {
	return m.ID == ""
}

// Key identifies a message for UI purposes: the server id once known,
// otherwise the client correlation token.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ClientID
}

// Tombstone clears the payload and flags the message as deleted for everyone.
func (m *Message) Tombstone() {
	m.DeletedForEveryone = true
	m.Text = ""
	m.MediaURL = nil
	m.Reactions = nil
}

// Clone returns a deep copy so snapshots handed to subscribers never alias
// engine state.
func (m Message) Clone() Message {
	out := m
	if m.MediaURL != nil {
		u := *m.MediaURL
		out.MediaURL = &u
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.DeliveredTo != nil {
		out.DeliveredTo = append([]string(nil), m.DeliveredTo...)
	}
	if m.SeenBy != nil {
		out.SeenBy = append([]string(nil), m.SeenBy...)
	}
	return out
}

// MergeSet returns base with every element of add that is not already present.
// Order of base is preserved; it never removes anything.
func MergeSet(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, v := range base {
		seen[v] = struct{}{}
	}
	for _, v := range add {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		base = append(base, v)
	}
	return base
}

func StringPtr(s string) *string {
	return &s
}
