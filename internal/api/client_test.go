package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/transport/httpdto"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestFetchConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chats/with/bob", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, httpdto.NewSuccessResponse(chat.Conversation{
			ChatID:        "dm:alice:bob",
			Users:         []string{"alice", "bob"},
			Messages:      []chat.Message{{ID: "m1", Sender: "bob", Text: "hey"}},
			IsBlockedByMe: true,
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	conv, err := c.FetchConversation(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "dm:alice:bob", conv.ChatID)
	assert.True(t, conv.IsBlockedByMe)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hey", conv.Messages[0].Text)
}

func TestFetchConversation_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, httpdto.NewErrorResponse("user not found", "NOT_FOUND"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok").FetchConversation(context.Background(), "ghost")
	assert.ErrorIs(t, err, matchmate_errors.ErrNotFound)
	assert.Contains(t, err.Error(), "user not found")
}

func TestStatusErrorMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:          matchmate_errors.ErrUnauthorized,
		http.StatusForbidden:             matchmate_errors.ErrForbidden,
		http.StatusRequestEntityTooLarge: matchmate_errors.ErrTooLarge,
		http.StatusTooManyRequests:       matchmate_errors.ErrRateLimited,
		http.StatusBadRequest:            matchmate_errors.ErrInvalidInput,
		http.StatusBadGateway:            matchmate_errors.ErrServiceUnavailable,
	}
	for status, want := range cases {
		assert.ErrorIs(t, statusError(status, ""), want, "status %d", status)
	}
}

func TestSendMessage_Body(t *testing.T) {
	var got httpdto.SendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/dm:alice:bob/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{Accepted: true, ClientID: got.ClientID}))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "tok").SendMessage(context.Background(), "dm:alice:bob", httpdto.SendMessageRequest{
		Text:        "hello",
		MessageType: chat.MessageTypeText,
		ClientID:    "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "c1", got.ClientID)
}

func TestReact_ReturnsAuthoritativeList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/c/messages/m1/reactions", r.URL.Path)
		var req httpdto.ReactRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(t, w, http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReactResponse{
			MessageID: "m1",
			Reactions: []chat.Reaction{{Emoji: "x", By: "bob"}, {Emoji: req.Emoji, By: "alice"}},
		}))
	}))
	defer srv.Close()

	reactions, err := NewClient(srv.URL, "tok").React(context.Background(), "c", "m1", "❤️")
	require.NoError(t, err)
	assert.Equal(t, []chat.Reaction{{Emoji: "x", By: "bob"}, {Emoji: "❤️", By: "alice"}}, reactions)
}

func TestDeleteMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "forEveryone", r.URL.Query().Get("type"))
		writeJSON(t, w, http.StatusOK, httpdto.NewSuccessResponse(struct{}{}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	require.NoError(t, c.DeleteMessage(context.Background(), "c", "m1", chat.DeleteForEveryone))
	assert.ErrorIs(t, c.DeleteMessage(context.Background(), "c", "m1", "sideways"), matchmate_errors.ErrInvalidInput)
}

func TestUpload_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/c/media", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "image", r.FormValue(httpdto.UploadFieldMessageType))
		assert.Equal(t, "c9", r.FormValue(httpdto.UploadFieldClientID))

		f, hdr, err := r.FormFile(httpdto.UploadFieldFile)
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

		writeJSON(t, w, http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.UploadResponse{Accepted: true, ClientID: "c9"}))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "tok").Upload(context.Background(), "c", Upload{
		Filename:    "photo.jpg",
		ContentType: "image/jpeg",
		Data:        []byte{0xff, 0xd8, 0xff},
		MessageType: chat.MessageTypeImage,
		ClientID:    "c9",
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}

func TestUpload_RejectsBadInput(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "tok")
	_, err := c.Upload(context.Background(), "c", Upload{MessageType: chat.MessageTypeImage})
	assert.ErrorIs(t, err, matchmate_errors.ErrNotUploaded)

	_, err = c.Upload(context.Background(), "c", Upload{Data: []byte("x"), MessageType: chat.MessageTypeText})
	assert.ErrorIs(t, err, matchmate_errors.ErrInvalidInput)
}

func TestUnreadCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, httpdto.NewSuccessResponse(httpdto.UnreadCountResponse{Count: 4}))
	}))
	defer srv.Close()

	n, err := NewClient(srv.URL, "tok").UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url, "tok").MarkSeen(context.Background(), "c")
	assert.ErrorIs(t, err, matchmate_errors.ErrServiceUnavailable)
}
