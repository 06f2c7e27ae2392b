package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/session"
)

// transcript prints snapshot changes as lines. An entry is printed again
// only when what the user sees of it changed.
type transcript struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
	blocked bool
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out, printed: make(map[string]string)}
}

func (t *transcript) Render(snap session.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range snap.Messages {
		line := formatMessage(m)
		// A confirmed echo replaces its placeholder under a new key.
		if m.ClientID != "" && m.ID != "" {
			if prev, ok := t.printed[m.ClientID]; ok {
				delete(t.printed, m.ClientID)
				t.printed[m.ID] = prev
			}
		}
		if t.printed[m.Key()] == line {
			continue
		}
		t.printed[m.Key()] = line
		fmt.Fprintln(t.out, line)
	}

	if blocked := snap.Blocked(); blocked != t.blocked {
		t.blocked = blocked
		switch {
		case snap.IsBlockedByMe:
			fmt.Fprintln(t.out, "-- you blocked this conversation")
		case snap.IsBlockedByThem:
			fmt.Fprintln(t.out, "-- this conversation is blocked")
		default:
			fmt.Fprintln(t.out, "-- conversation unblocked")
		}
	}
}

func (t *transcript) Notice(n session.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "!! %s\n", n.Error())
}

func (t *transcript) Printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func formatMessage(m chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s ", m.SentAt.Local().Format("15:04"), shortKey(m.Key()))
	if m.FromSelf {
		b.WriteString("me: ")
	} else {
		b.WriteString(m.Sender + ": ")
	}

	switch {
	case m.DeletedForEveryone:
		b.WriteString("(message deleted)")
	case m.Type == chat.MessageTypeText:
		b.WriteString(m.Text)
	case m.MediaURL != nil:
		fmt.Fprintf(&b, "<%s %s>", m.Type, *m.MediaURL)
	default:
		fmt.Fprintf(&b, "<%s>", m.Type)
	}

	if len(m.Reactions) > 0 && !m.DeletedForEveryone {
		emojis := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			emojis = append(emojis, r.Emoji)
		}
		b.WriteString(" " + strings.Join(emojis, ""))
	}

	if m.FromSelf && !m.DeletedForEveryone {
		b.WriteString(" " + receipt(m))
	}
	return b.String()
}

func receipt(m chat.Message) string {
	switch {
	case m.IsPending():
		return "…"
	case len(m.SeenBy) > 0:
		return "seen"
	case len(m.DeliveredTo) > 0:
		return "delivered"
	}
	return "sent"
}

// shortKey abbreviates ids for display; commands accept the prefix too.
func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
