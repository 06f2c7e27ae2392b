package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchmate-chat/config"
	"matchmate-chat/internal/auth"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/events"
	"matchmate-chat/internal/transport/httpdto"
	"matchmate-chat/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "relay-test-secret"

type testRelay struct {
	t      *testing.T
	srv    *Server
	http   *httptest.Server
	cancel context.CancelFunc
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	cfg := &config.Config{
		AppMode: TestMode,
		Relay: config.RelayConfig{
			Port:      "0",
			JWTSecret: testSecret,
			TokenTTL:  time.Hour,
			RPS:       1000,
			Burst:     1000,
		},
	}
	ts := httptest.NewUnstartedServer(nil)
	cfg.Relay.PublicURL = "http://" + ts.Listener.Addr().String()
	srv := New(cfg, logger.NewNop())
	ts.Config.Handler = srv.Handler()
	ts.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Hub().Run(ctx)

	r := &testRelay{t: t, srv: srv, http: ts, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return r
}

func (r *testRelay) token(userID string) string {
	token, _, err := auth.Issue([]byte(testSecret), userID, time.Hour)
	require.NoError(r.t, err)
	return token
}

func (r *testRelay) do(userID, method, path string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(r.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, r.http.URL+path, reader)
	require.NoError(r.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+r.token(userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(r.t, err)
	r.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out httpdto.Response[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success, out.Error)
	return out.Data
}

type socket struct {
	t    *testing.T
	conn *websocket.Conn
}

func (r *testRelay) dial(userID string) *socket {
	url := "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws?token=" + r.token(userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(r.t, err)
	r.t.Cleanup(func() { conn.Close() })
	return &socket{t: r.t, conn: conn}
}

func (s *socket) send(ev events.Event) {
	data, err := events.Encode(ev)
	require.NoError(s.t, err)
	require.NoError(s.t, s.conn.WriteMessage(websocket.TextMessage, data))
}

// next returns the first frame of type eventType, skipping others.
func (s *socket) next(eventType string) events.Event {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(s.t, s.conn.SetReadDeadline(deadline))
		_, data, err := s.conn.ReadMessage()
		require.NoError(s.t, err, "waiting for %s", eventType)
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			ev, err := events.Decode(line)
			require.NoError(s.t, err)
			if ev.Type == eventType {
				return ev
			}
		}
	}
}

func (r *testRelay) join(s *socket, room string, members int) {
	s.send(events.Event{Type: events.TypeJoin, ChatID: room})
	require.Eventually(r.t, func() bool { return r.srv.Hub().RoomSize(room) == members }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_RequiresAuth(t *testing.T) {
	r := newTestRelay(t)

	resp := r.do("", http.MethodGet, "/api/chats/with/bob", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.http.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRelay_DevTokenAndConversation(t *testing.T) {
	r := newTestRelay(t)

	resp := r.do("", http.MethodPost, "/api/dev/token", httpdto.DevTokenRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	issued := decodeData[httpdto.DevTokenResponse](t, resp)
	claims, err := auth.Parse([]byte(testSecret), issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID())

	resp = r.do("alice", http.MethodGet, "/api/chats/with/bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv := decodeData[chat.Conversation](t, resp)
	assert.Equal(t, "dm:alice:bob", conv.ChatID)

	resp = r.do("alice", http.MethodGet, "/api/chats/with/alice", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelay_MessageEchoDeliveryAndUnread(t *testing.T) {
	r := newTestRelay(t)
	room := chat.DirectChatID("alice", "bob")

	alice := r.dial("alice")
	bob := r.dial("bob")
	r.join(alice, room, 1)
	r.join(bob, room, 2)

	resp := r.do("alice", http.MethodPost, "/api/chats/"+room+"/messages", httpdto.SendMessageRequest{
		Text:        "hello",
		MessageType: chat.MessageTypeText,
		ClientID:    "c1",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	echo := alice.next(events.TypeMessage)
	var payload events.MessagePayload
	require.NoError(t, echo.Into(&payload))
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, "c1", payload.ClientID)
	assert.Equal(t, "alice", payload.Sender)
	assert.Equal(t, room, echo.ChatID)

	delivered := alice.next(events.TypeMessageDelivered)
	var dp events.MessageDeliveredPayload
	require.NoError(t, delivered.Into(&dp))
	assert.Equal(t, "bob", dp.DeliveredTo)
	assert.Equal(t, []string{payload.ID}, dp.MessageIDs)

	unread := bob.next(events.TypeUnreadCount)
	var up events.UnreadCountPayload
	require.NoError(t, unread.Into(&up))
	assert.Equal(t, 1, up.Count)

	resp = r.do("bob", http.MethodPost, "/api/chats/"+room+"/seen", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seen := alice.next(events.TypeMessagesSeen)
	var sp events.MessagesSeenPayload
	require.NoError(t, seen.Into(&sp))
	assert.Equal(t, "bob", sp.SeenBy)

	resp = r.do("bob", http.MethodGet, "/api/chats/unread-count", nil)
	assert.Equal(t, 0, decodeData[httpdto.UnreadCountResponse](t, resp).Count)
}

func TestRelay_JoinDeliversBacklog(t *testing.T) {
	r := newTestRelay(t)
	room := chat.DirectChatID("alice", "bob")

	alice := r.dial("alice")
	r.join(alice, room, 1)

	resp := r.do("alice", http.MethodPost, "/api/chats/"+room+"/messages", httpdto.SendMessageRequest{Text: "are you there", MessageType: chat.MessageTypeText})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	alice.next(events.TypeMessage)

	bob := r.dial("bob")
	r.join(bob, room, 2)

	delivered := alice.next(events.TypeMessageDelivered)
	var dp events.MessageDeliveredPayload
	require.NoError(t, delivered.Into(&dp))
	assert.Equal(t, "bob", dp.DeliveredTo)
}

func TestRelay_JoinForeignRoomDenied(t *testing.T) {
	r := newTestRelay(t)

	carol := r.dial("carol")
	carol.send(events.Event{Type: events.TypeJoin, ChatID: "dm:alice:bob"})

	frame := carol.next(events.TypeError)
	var p events.ErrorPayload
	require.NoError(t, frame.Into(&p))
	assert.Equal(t, "FORBIDDEN", p.Code)
	assert.Equal(t, 0, r.srv.Hub().RoomSize("dm:alice:bob"))
}

func TestRelay_PingPong(t *testing.T) {
	r := newTestRelay(t)

	alice := r.dial("alice")
	alice.send(events.Event{Type: events.TypePing})
	assert.Equal(t, events.TypePong, alice.next(events.TypePong).Type)
}

func TestRelay_LeaveStopsDelivery(t *testing.T) {
	r := newTestRelay(t)
	room := chat.DirectChatID("alice", "bob")

	alice := r.dial("alice")
	r.join(alice, room, 1)
	alice.send(events.Event{Type: events.TypeLeave, ChatID: room})
	require.Eventually(t, func() bool { return r.srv.Hub().RoomSize(room) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, r.srv.Hub().RoomCount())
}

func TestRelay_BlockDeleteAndReact(t *testing.T) {
	r := newTestRelay(t)
	room := chat.DirectChatID("alice", "bob")

	alice := r.dial("alice")
	r.join(alice, room, 1)

	resp := r.do("alice", http.MethodPost, "/api/chats/"+room+"/messages", httpdto.SendMessageRequest{Text: "hi", MessageType: chat.MessageTypeText})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var msg events.MessagePayload
	require.NoError(t, alice.next(events.TypeMessage).Into(&msg))

	resp = r.do("bob", http.MethodPost, "/api/chats/"+room+"/messages/"+msg.ID+"/reactions", httpdto.ReactRequest{Emoji: "❤️"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	react := decodeData[httpdto.ReactResponse](t, resp)
	assert.Equal(t, []chat.Reaction{{Emoji: "❤️", By: "bob"}}, react.Reactions)
	var rp events.ReactionUpdatedPayload
	require.NoError(t, alice.next(events.TypeReactionUpdated).Into(&rp))
	assert.Equal(t, msg.ID, rp.MessageID)

	resp = r.do("bob", http.MethodDelete, "/api/chats/"+room+"/messages/"+msg.ID+"?type=forEveryone", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = r.do("alice", http.MethodDelete, "/api/chats/"+room+"/messages/"+msg.ID+"?type=forEveryone", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dp events.MessageDeletedPayload
	require.NoError(t, alice.next(events.TypeMessageDeleted).Into(&dp))
	assert.Equal(t, chat.DeleteForEveryone, dp.DeleteType)

	resp = r.do("bob", http.MethodPost, "/api/chats/"+room+"/block", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[httpdto.BlockResponse](t, resp).IsBlockedByMe)
	var bp events.ChatBlockedPayload
	require.NoError(t, alice.next(events.TypeChatBlocked).Into(&bp))
	assert.Equal(t, "bob", bp.BlockedBy)

	resp = r.do("alice", http.MethodPost, "/api/chats/"+room+"/messages", httpdto.SendMessageRequest{Text: "hello?", MessageType: chat.MessageTypeText})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = r.do("bob", http.MethodPost, "/api/chats/"+room+"/unblock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ub events.ChatUnblockedPayload
	require.NoError(t, alice.next(events.TypeChatUnblocked).Into(&ub))
	assert.Equal(t, "bob", ub.UnblockedBy)
}

func TestRelay_MediaUpload(t *testing.T) {
	r := newTestRelay(t)
	room := chat.DirectChatID("alice", "bob")

	alice := r.dial("alice")
	r.join(alice, room, 1)

	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	upload := func(msgType chat.MessageType) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile(httpdto.UploadFieldFile, "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(jpeg)
		require.NoError(t, err)
		require.NoError(t, w.WriteField(httpdto.UploadFieldMessageType, string(msgType)))
		require.NoError(t, w.WriteField(httpdto.UploadFieldClientID, "c-photo"))
		require.NoError(t, w.Close())

		req, err := http.NewRequest(http.MethodPost, r.http.URL+"/api/chats/"+room+"/media", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+r.token("alice"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := upload(chat.MessageTypeVideo)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(chat.MessageTypeImage)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decodeData[httpdto.UploadResponse](t, resp)
	assert.Equal(t, "c-photo", accepted.ClientID)
	assert.True(t, strings.HasPrefix(accepted.MediaURL, r.http.URL+"/media/"))

	var msg events.MessagePayload
	require.NoError(t, alice.next(events.TypeMessage).Into(&msg))
	assert.Equal(t, chat.MessageTypeImage, msg.Type)
	require.NotNil(t, msg.MediaURL)
	assert.Equal(t, accepted.MediaURL, *msg.MediaURL)

	media, err := http.Get(accepted.MediaURL)
	require.NoError(t, err)
	defer media.Body.Close()
	assert.Equal(t, http.StatusOK, media.StatusCode)
	assert.Equal(t, "image/jpeg", media.Header.Get("Content-Type"))
}

func TestRelay_MetricsAndHealth(t *testing.T) {
	r := newTestRelay(t)
	r.dial("alice")

	resp := r.do("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp := r.do("", http.MethodGet, "/metrics", nil)
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body), "matchmate_relay_connections 1")
	}, 2*time.Second, 20*time.Millisecond)
}
