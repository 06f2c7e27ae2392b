package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatus(t *testing.T) {
	m := Message{ClientID: "c1", Text: "hi"}
	assert.Equal(t, StatusLocalPending, m.Status())
	assert.Equal(t, "c1", m.Key())

	m.ID = "m1"
	assert.Equal(t, StatusConfirmed, m.Status())
	assert.Equal(t, "m1", m.Key())

	m.Tombstone()
	assert.Equal(t, StatusDeletedForEveryone, m.Status())
	assert.Empty(t, m.Text)
	assert.Nil(t, m.MediaURL)
}

func TestMergeSet_NeverShrinks(t *testing.T) {
	base := []string{"a", "b"}
	out := MergeSet(base, []string{"b", "c", ""})
	assert.Equal(t, []string{"a", "b", "c"}, out)

	out = MergeSet(out, nil)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestClone_DoesNotAlias(t *testing.T) {
	m := Message{MediaURL: StringPtr("u"), SeenBy: []string{"a"}, Reactions: []Reaction{{Emoji: "x", By: "a"}}}
	c := m.Clone()
	*c.MediaURL = "changed"
	c.SeenBy[0] = "z"
	c.Reactions[0].Emoji = "y"

	assert.Equal(t, "u", *m.MediaURL)
	assert.Equal(t, "a", m.SeenBy[0])
	assert.Equal(t, "x", m.Reactions[0].Emoji)
}

func TestDirectChatID_OrderIndependent(t *testing.T) {
	assert.Equal(t, DirectChatID("bob", "alice"), DirectChatID("alice", "bob"))
	assert.Equal(t, "dm:alice:bob", DirectChatID("bob", "alice"))
}

func TestParticipants(t *testing.T) {
	a, b, ok := Participants(DirectChatID("bob", "alice"))
	assert.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	assert.True(t, HasParticipant("dm:alice:bob", "bob"))
	assert.False(t, HasParticipant("dm:alice:bob", "carol"))

	for _, bad := range []string{"", "dm:", "dm:alice", "group:alice:bob", "dm:a:b:c", "dm::b"} {
		_, _, ok := Participants(bad)
		assert.False(t, ok, bad)
	}
}
