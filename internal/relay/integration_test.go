package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"matchmate-chat/internal/api"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/session"
	"matchmate-chat/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (r *testRelay) openSession(userID, counterpart string) *session.Session {
	r.t.Helper()
	token := r.token(userID)
	client := api.NewClient(r.http.URL, token)
	rt := websocket.NewManager("ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws")

	s, err := session.New(session.Config{Token: token}, client, rt)
	require.NoError(r.t, err)
	r.t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(r.t, s.Open(ctx, counterpart))
	return s
}

func waitSnapshot(t *testing.T, s *session.Session, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	var last session.Snapshot
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot(context.Background())
		if err != nil {
			return false
		}
		last = snap
		return cond(snap)
	}, 3*time.Second, 20*time.Millisecond)
	return last
}

func TestSessionsOverRelay(t *testing.T) {
	r := newTestRelay(t)
	room := chat.DirectChatID("alice", "bob")

	alice := r.openSession("alice", "bob")
	bob := r.openSession("bob", "alice")
	require.Eventually(t, func() bool { return r.srv.Hub().RoomSize(room) == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	sent, err := alice.SendText(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusLocalPending, sent.Status())

	snap := waitSnapshot(t, alice, func(s session.Snapshot) bool {
		return len(s.Messages) == 1 && s.Messages[0].ID != ""
	})
	confirmed := snap.Messages[0]
	assert.Equal(t, sent.ClientID, confirmed.ClientID)
	assert.True(t, confirmed.FromSelf)
	assert.Equal(t, 0, snap.Pending)

	peer := waitSnapshot(t, bob, func(s session.Snapshot) bool { return len(s.Messages) == 1 })
	assert.Equal(t, confirmed.ID, peer.Messages[0].ID)
	assert.False(t, peer.Messages[0].FromSelf)

	require.NoError(t, bob.React(ctx, confirmed.ID, "🔥"))
	waitSnapshot(t, alice, func(s session.Snapshot) bool {
		return len(s.Messages) == 1 && len(s.Messages[0].Reactions) == 1 && s.Messages[0].Reactions[0].By == "bob"
	})

	require.NoError(t, alice.Delete(ctx, confirmed.ID, chat.DeleteForEveryone))
	waitSnapshot(t, bob, func(s session.Snapshot) bool {
		return len(s.Messages) == 1 && s.Messages[0].DeletedForEveryone && len(s.Messages[0].Reactions) == 0
	})

	require.NoError(t, bob.Block(ctx))
	blocked := waitSnapshot(t, alice, func(s session.Snapshot) bool { return s.IsBlockedByThem })
	assert.True(t, blocked.Blocked())

	_, err = alice.SendText(ctx, "still there?")
	assert.Error(t, err)
}
