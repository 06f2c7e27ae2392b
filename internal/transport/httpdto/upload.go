package httpdto

// MaxUploadSize is the largest media body the relay accepts.
const MaxUploadSize = 50 << 20

// Multipart form field names for POST /api/chats/:chatId/media
const (
	UploadFieldFile        = "file"
	UploadFieldMessageType = "message_type"
	UploadFieldClientID    = "client_id"
)

// UploadResponse acknowledges a media upload. The media message itself is
// emitted through the realtime channel once stored.
type UploadResponse struct {
	Accepted bool   `json:"accepted"`
	MediaURL string `json:"media_url,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}
