package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/transport/httpdto"
	matchmate_errors "matchmate-chat/pkg/errors"
)

// MaxUploadSize is checked client side so oversized blobs fail before the
// request is built.
const MaxUploadSize = httpdto.MaxUploadSize

// Upload is one media payload headed for POST /api/chats/{chatId}/media.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	MessageType chat.MessageType
	ClientID    string
}

// Upload posts a media blob as multipart form data. The server emits the
// resulting message through the realtime channel once it is stored.
func (c *Client) Upload(ctx context.Context, chatID string, u Upload) (httpdto.UploadResponse, error) {
	if len(u.Data) == 0 {
		return httpdto.UploadResponse{}, matchmate_errors.ErrNotUploaded
	}
	if len(u.Data) > MaxUploadSize {
		return httpdto.UploadResponse{}, matchmate_errors.ErrTooLarge
	}
	if !u.MessageType.Valid() || u.MessageType == chat.MessageTypeText {
		return httpdto.UploadResponse{}, fmt.Errorf("%w: message type %q", matchmate_errors.ErrInvalidInput, u.MessageType)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, httpdto.UploadFieldFile, u.Filename))
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return httpdto.UploadResponse{}, fmt.Errorf("upload: %w", err)
	}
	if _, err := part.Write(u.Data); err != nil {
		return httpdto.UploadResponse{}, fmt.Errorf("upload: %w", err)
	}
	if err := w.WriteField(httpdto.UploadFieldMessageType, string(u.MessageType)); err != nil {
		return httpdto.UploadResponse{}, fmt.Errorf("upload: %w", err)
	}
	if u.ClientID != "" {
		if err := w.WriteField(httpdto.UploadFieldClientID, u.ClientID); err != nil {
			return httpdto.UploadResponse{}, fmt.Errorf("upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return httpdto.UploadResponse{}, fmt.Errorf("upload: %w", err)
	}

	var resp httpdto.UploadResponse
	if err := c.do(ctx, http.MethodPost, chatPath(chatID, "media"), &buf, w.FormDataContentType(), &resp); err != nil {
		return httpdto.UploadResponse{}, fmt.Errorf("upload: %w", err)
	}
	return resp, nil
}
