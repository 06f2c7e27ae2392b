package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/session"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 0, 0, time.Local)

	pending := chat.Message{ClientID: "c1", FromSelf: true, Sender: "alice", Type: chat.MessageTypeText, Text: "hi", SentAt: at}
	assert.Equal(t, "[15:04] c1 me: hi …", formatMessage(pending))

	seen := pending
	seen.ID = "0123456789"
	seen.SeenBy = []string{"bob"}
	assert.Equal(t, "[15:04] 01234567 me: hi seen", formatMessage(seen))

	peer := chat.Message{ID: "m2", Sender: "bob", Type: chat.MessageTypeImage, MediaURL: chat.StringPtr("http://x/p.jpg"), SentAt: at,
		Reactions: []chat.Reaction{{Emoji: "🔥", By: "alice"}}}
	assert.Equal(t, "[15:04] m2 bob: <image http://x/p.jpg> 🔥", formatMessage(peer))

	peer.Tombstone()
	assert.Equal(t, "[15:04] m2 bob: (message deleted)", formatMessage(peer))
}

func TestTranscript_PrintsOnlyChanges(t *testing.T) {
	var out bytes.Buffer
	tr := newTranscript(&out)
	at := time.Now()

	pending := chat.Message{ClientID: "c1", FromSelf: true, Sender: "alice", Type: chat.MessageTypeText, Text: "hi", SentAt: at}
	tr.Render(session.Snapshot{Messages: []chat.Message{pending}})
	tr.Render(session.Snapshot{Messages: []chat.Message{pending}})
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	confirmed := pending
	confirmed.ID = "m1"
	tr.Render(session.Snapshot{Messages: []chat.Message{confirmed}})
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "m1 me: hi sent")

	tr.Render(session.Snapshot{Messages: []chat.Message{confirmed}, IsBlockedByThem: true})
	assert.Contains(t, out.String(), "-- this conversation is blocked")
}
