// Package media wraps camera and recording primitives and turns their
// output into blobs that go through the same upload path as picked files.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"matchmate-chat/internal/domain/chat"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
)

// MaxVideoDuration is the hard cap for recorded and picked videos.
const MaxVideoDuration = 120 * time.Second

const jpegQuality = 85

// Stream is an acquired camera stream. Stop releases every track and must be
// safe to call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Stop()
}

type Camera interface {
	// Open acquires a stream. It returns ErrPermissionDenied when the user
	// or platform refuses access.
	Open(ctx context.Context) (Stream, error)
}

type RecordingStream interface {
	Stream
	StartRecording() error
	StopRecording() ([]byte, error)
}

type VideoCamera interface {
	OpenRecording(ctx context.Context) (RecordingStream, error)
}

// Blob is a finished media payload ready for upload.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
	Type        chat.MessageType
	Duration    time.Duration
}

// CapturePhoto grabs one frame and encodes it as JPEG. The stream is stopped
// on every exit path.
func CapturePhoto(ctx context.Context, cam Camera) (Blob, error) {
	stream, err := cam.Open(ctx)
	if err != nil {
		return Blob{}, openError(err)
	}
	defer stream.Stop()

	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	frame, err := stream.Frame()
	if err != nil {
		return Blob{}, fmt.Errorf("capture frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Blob{}, fmt.Errorf("encode photo: %w", err)
	}

	return Blob{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Filename:    fmt.Sprintf("photo-%d.jpg", time.Now().UnixMilli()),
		Type:        chat.MessageTypeImage,
	}, nil
}

// CheckVideoDuration rejects videos longer than max. A zero max uses
// MaxVideoDuration.
func CheckVideoDuration(d, max time.Duration) error {
	if max <= 0 {
		max = MaxVideoDuration
	}
	if d > max {
		return fmt.Errorf("%w: %s > %s", matchmate_errors.ErrVideoTooLong, d.Round(time.Second), max)
	}
	return nil
}

// DetectType sniffs data and maps it to a chat message type.
func DetectType(data []byte) (chat.MessageType, string, error) {
	mt := mimetype.Detect(data)
	contentType := mt.String()
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return chat.MessageTypeImage, contentType, nil
	case strings.HasPrefix(contentType, "video/"):
		return chat.MessageTypeVideo, contentType, nil
	}
	return "", contentType, fmt.Errorf("%w: unsupported media type %s", matchmate_errors.ErrInvalidInput, contentType)
}

// BlobFromFile loads a picked file. duration is the video length reported by
// the picker and is ignored for images.
func BlobFromFile(path string, duration, max time.Duration) (Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, fmt.Errorf("read %s: %w", path, err)
	}
	msgType, contentType, err := DetectType(data)
	if err != nil {
		return Blob{}, err
	}
	if msgType == chat.MessageTypeVideo {
		if err := CheckVideoDuration(duration, max); err != nil {
			return Blob{}, err
		}
	}
	return Blob{
		Data:        data,
		ContentType: contentType,
		Filename:    filepath.Base(path),
		Type:        msgType,
		Duration:    duration,
	}, nil
}

func openError(err error) error {
	if errors.Is(err, matchmate_errors.ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("open camera: %w", err)
}
