package relay

import (
	"fmt"
	"testing"

	"matchmate-chat/internal/domain/chat"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := NewStore()
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return s
}

func TestStore_ConversationIsSharedAndCreatedOnce(t *testing.T) {
	s := newTestStore()

	conv, err := s.Conversation("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "dm:alice:bob", conv.ChatID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Users)
	assert.Empty(t, conv.Messages)

	_, err = s.AddMessage(conv.ChatID, "alice", chat.MessageTypeText, "hi", nil, "c1")
	require.NoError(t, err)

	other, err := s.Conversation("bob", "alice")
	require.NoError(t, err)
	require.Len(t, other.Messages, 1)
	assert.Equal(t, "c1", other.Messages[0].ClientID)

	_, err = s.Conversation("alice", "alice")
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)
}

func TestStore_AddMessageValidation(t *testing.T) {
	s := newTestStore()

	_, err := s.AddMessage("dm:alice:bob", "alice", chat.MessageTypeText, "  ", nil, "")
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)

	_, err = s.AddMessage("dm:alice:bob", "alice", chat.MessageTypeImage, "", nil, "")
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)

	_, err = s.AddMessage("dm:alice:bob", "carol", chat.MessageTypeText, "hi", nil, "")
	assert.ErrorIs(t, err, matchmate_errors.ErrForbidden)

	_, err = s.AddMessage("room-1", "alice", chat.MessageTypeText, "hi", nil, "")
	assert.ErrorIs(t, err, matchmate_errors.ErrNotFound)

	msg, err := s.AddMessage("dm:alice:bob", "alice", "", "hi", nil, "")
	require.NoError(t, err)
	assert.Equal(t, chat.MessageTypeText, msg.Type)
	assert.Equal(t, "m1", msg.ID)
	assert.False(t, msg.SentAt.IsZero())
}

func TestStore_BlockStopsSends(t *testing.T) {
	s := newTestStore()

	conv, err := s.SetBlocked("dm:alice:bob", "bob", true)
	require.NoError(t, err)
	assert.True(t, conv.IsBlockedByMe)

	view, err := s.Conversation("alice", "bob")
	require.NoError(t, err)
	assert.True(t, view.IsBlockedByThem)
	assert.False(t, view.IsBlockedByMe)

	_, err = s.AddMessage("dm:alice:bob", "alice", chat.MessageTypeText, "hi", nil, "")
	assert.ErrorIs(t, err, matchmate_errors.ErrBlocked)
	assert.ErrorIs(t, s.CheckSendable("dm:alice:bob", "bob"), matchmate_errors.ErrBlocked)

	_, err = s.SetBlocked("dm:alice:bob", "bob", false)
	require.NoError(t, err)
	assert.NoError(t, s.CheckSendable("dm:alice:bob", "alice"))
}

func TestStore_SeenDeliveredAndUnread(t *testing.T) {
	s := newTestStore()
	for _, text := range []string{"one", "two"} {
		_, err := s.AddMessage("dm:alice:bob", "alice", chat.MessageTypeText, text, nil, "")
		require.NoError(t, err)
	}
	_, err := s.AddMessage("dm:alice:bob", "bob", chat.MessageTypeText, "reply", nil, "")
	require.NoError(t, err)

	assert.Equal(t, 2, s.Unread("bob"))
	assert.Equal(t, 1, s.Unread("alice"))

	ids, err := s.MarkDelivered("dm:alice:bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	ids, err = s.MarkDelivered("dm:alice:bob", "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.MarkSeen("dm:alice:bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
	assert.Equal(t, 0, s.Unread("bob"))

	ids, err = s.MarkSeen("dm:alice:bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids)

	conv, err := s.Conversation("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, conv.Messages[0].SeenBy)
	assert.Equal(t, []string{"alice"}, conv.Messages[2].DeliveredTo)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore()
	msg, err := s.AddMessage("dm:alice:bob", "alice", chat.MessageTypeText, "oops", nil, "")
	require.NoError(t, err)

	err = s.Delete("dm:alice:bob", "bob", msg.ID, chat.DeleteForEveryone)
	assert.ErrorIs(t, err, matchmate_errors.ErrForbidden)

	require.NoError(t, s.Delete("dm:alice:bob", "bob", msg.ID, chat.DeleteForMe))
	bobView, err := s.Conversation("bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, bobView.Messages)
	assert.Equal(t, 0, s.Unread("bob"))

	err = s.Delete("dm:alice:bob", "bob", msg.ID, chat.DeleteForMe)
	assert.ErrorIs(t, err, matchmate_errors.ErrNotFound)

	require.NoError(t, s.Delete("dm:alice:bob", "alice", msg.ID, chat.DeleteForEveryone))
	aliceView, err := s.Conversation("alice", "bob")
	require.NoError(t, err)
	require.Len(t, aliceView.Messages, 1)
	assert.True(t, aliceView.Messages[0].DeletedForEveryone)
	assert.Empty(t, aliceView.Messages[0].Text)

	err = s.Delete("dm:alice:bob", "alice", msg.ID, "everyone")
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)
}

func TestStore_ReactToggles(t *testing.T) {
	s := newTestStore()
	msg, err := s.AddMessage("dm:alice:bob", "alice", chat.MessageTypeText, "hi", nil, "")
	require.NoError(t, err)

	reactions, err := s.React("dm:alice:bob", "bob", msg.ID, "❤️")
	require.NoError(t, err)
	assert.Equal(t, []chat.Reaction{{Emoji: "❤️", By: "bob"}}, reactions)

	reactions, err = s.React("dm:alice:bob", "alice", msg.ID, "😂")
	require.NoError(t, err)
	assert.Len(t, reactions, 2)

	reactions, err = s.React("dm:alice:bob", "bob", msg.ID, "👍")
	require.NoError(t, err)
	assert.ElementsMatch(t, []chat.Reaction{{Emoji: "😂", By: "alice"}, {Emoji: "👍", By: "bob"}}, reactions)

	reactions, err = s.React("dm:alice:bob", "bob", msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, []chat.Reaction{{Emoji: "😂", By: "alice"}}, reactions)

	_, err = s.React("dm:alice:bob", "bob", "missing", "👍")
	assert.ErrorIs(t, err, matchmate_errors.ErrNotFound)

	require.NoError(t, s.Delete("dm:alice:bob", "alice", msg.ID, chat.DeleteForEveryone))
	_, err = s.React("dm:alice:bob", "bob", msg.ID, "👍")
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)
}
