// Package api is the REST client for the chat endpoints the realtime core
// depends on: conversation fetch, send, upload, mark-seen, delete, react,
// block and the unread counter.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/transport/httpdto"
	matchmate_errors "matchmate-chat/pkg/errors"

	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Token() string {
	return c.token
}

// FetchConversation loads the conversation with the counterpart userID.
func (c *Client) FetchConversation(ctx context.Context, userID string) (chat.Conversation, error) {
	var conv chat.Conversation
	path := "/api/chats/with/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return chat.Conversation{}, fmt.Errorf("fetch conversation with %s: %w", userID, err)
	}
	return conv, nil
}

// SendMessage queues a message. The confirmed message is delivered over the
// realtime channel, not in this response.
func (c *Client) SendMessage(ctx context.Context, chatID string, req httpdto.SendMessageRequest) error {
	var resp httpdto.SendMessageResponse
	if err := c.doJSON(ctx, http.MethodPost, chatPath(chatID, "messages"), req, &resp); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) MarkSeen(ctx context.Context, chatID string) error {
	if err := c.doJSON(ctx, http.MethodPost, chatPath(chatID, "seen"), nil, nil); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string, deleteType chat.DeleteType) error {
	if !deleteType.Valid() {
		return matchmate_errors.ErrInvalidInput
	}
	path := chatPath(chatID, "messages", messageID) + "?type=" + url.QueryEscape(string(deleteType))
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// React toggles emoji on a message and returns the authoritative list.
func (c *Client) React(ctx context.Context, chatID, messageID, emoji string) ([]chat.Reaction, error) {
	var resp httpdto.ReactResponse
	path := chatPath(chatID, "messages", messageID, "reactions")
	if err := c.doJSON(ctx, http.MethodPost, path, httpdto.ReactRequest{Emoji: emoji}, &resp); err != nil {
		return nil, fmt.Errorf("react: %w", err)
	}
	return resp.Reactions, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp httpdto.UnreadCountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/unread-count", nil, &resp); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return resp.Count, nil
}

func (c *Client) Block(ctx context.Context, chatID string) (httpdto.BlockResponse, error) {
	var resp httpdto.BlockResponse
	if err := c.doJSON(ctx, http.MethodPost, chatPath(chatID, "block"), nil, &resp); err != nil {
		return httpdto.BlockResponse{}, fmt.Errorf("block: %w", err)
	}
	return resp, nil
}

func (c *Client) Unblock(ctx context.Context, chatID string) (httpdto.BlockResponse, error) {
	var resp httpdto.BlockResponse
	if err := c.doJSON(ctx, http.MethodPost, chatPath(chatID, "unblock"), nil, &resp); err != nil {
		return httpdto.BlockResponse{}, fmt.Errorf("unblock: %w", err)
	}
	return resp, nil
}

// DevToken asks the dev relay for a token. Only the dev relay serves it.
func (c *Client) DevToken(ctx context.Context, userID string) (httpdto.DevTokenResponse, error) {
	var resp httpdto.DevTokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/dev/token", httpdto.DevTokenRequest{UserID: userID}, &resp); err != nil {
		return httpdto.DevTokenResponse{}, fmt.Errorf("dev token: %w", err)
	}
	return resp, nil
}

func chatPath(chatID string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/chats/")
	b.WriteString(url.PathEscape(chatID))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", matchmate_errors.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope httpdto.Response[json.RawMessage]
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 || (len(raw) > 0 && !envelope.Success) {
		return statusError(resp.StatusCode, envelope.Error)
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func statusError(status int, message string) error {
	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = matchmate_errors.ErrNotFound
	case status == http.StatusUnauthorized:
		sentinel = matchmate_errors.ErrUnauthorized
	case status == http.StatusForbidden:
		sentinel = matchmate_errors.ErrForbidden
	case status == http.StatusRequestEntityTooLarge:
		sentinel = matchmate_errors.ErrTooLarge
	case status == http.StatusTooManyRequests:
		sentinel = matchmate_errors.ErrRateLimited
	case status == http.StatusBadRequest:
		sentinel = matchmate_errors.ErrInvalidInput
	case status >= 500:
		sentinel = matchmate_errors.ErrServiceUnavailable
	default:
		sentinel = fmt.Errorf("unexpected status %d", status)
	}
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
