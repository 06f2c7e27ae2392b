package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"matchmate-chat/internal/domain/chat"
	matchmate_errors "matchmate-chat/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Recorder records one video at a time. A watchdog stops the recording at
// the duration cap; it and Stop share a sync.Once so the finished blob is
// handed to onFinish exactly once.
type Recorder struct {
	cam      VideoCamera
	max      time.Duration
	onFinish func(Blob)
	onError  func(error)
	log      *zap.Logger

	mu      sync.Mutex
	current *recording
}

type recording struct {
	stream    RecordingStream
	timer     *time.Timer
	startedAt time.Time
	once      sync.Once
}

type RecorderOption func(*Recorder)

func WithMaxDuration(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.max = d
		}
	}
}

func WithErrorHandler(fn func(error)) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.onError = fn
		}
	}
}

func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRecorder(cam VideoCamera, onFinish func(Blob), opts ...RecorderOption) *Recorder {
	r := &Recorder{
		cam:      cam,
		max:      MaxVideoDuration,
		onFinish: onFinish,
		onError:  func(error) {},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start acquires a recording stream and arms the watchdog.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return matchmate_errors.ErrRecorderBusy
	}

	stream, err := r.cam.OpenRecording(ctx)
	if err != nil {
		return openError(err)
	}
	if err := stream.StartRecording(); err != nil {
		stream.Stop()
		return fmt.Errorf("start recording: %w", err)
	}

	rec := &recording{stream: stream, startedAt: time.Now()}
	rec.timer = time.AfterFunc(r.max, func() {
		r.log.Info("recording cap reached", zap.Duration("max", r.max))
		r.finish(rec, true)
	})
	r.current = rec
	return nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Stop ends the recording and hands the blob to the upload path.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	rec := r.current
	r.mu.Unlock()
	if rec == nil {
		return matchmate_errors.ErrNotRecording
	}
	if !r.finish(rec, true) {
		return matchmate_errors.ErrNotRecording
	}
	return nil
}

// Cancel releases the stream without uploading anything.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	rec := r.current
	r.mu.Unlock()
	if rec != nil {
		r.finish(rec, false)
	}
}

func (r *Recorder) finish(rec *recording, upload bool) bool {
	fired := false
	rec.once.Do(func() {
		fired = true
		rec.timer.Stop()

		r.mu.Lock()
		if r.current == rec {
			r.current = nil
		}
		r.mu.Unlock()

		data, err := rec.stream.StopRecording()
		rec.stream.Stop()
		if !upload {
			return
		}
		if err != nil {
			r.onError(fmt.Errorf("stop recording: %w", err))
			return
		}

		duration := time.Since(rec.startedAt)
		if duration > r.max {
			duration = r.max
		}
		contentType := "video/webm"
		if _, sniffed, err := DetectType(data); err == nil {
			contentType = sniffed
		}
		r.onFinish(Blob{
			Data:        data,
			ContentType: contentType,
			Filename:    fmt.Sprintf("video-%d%s", time.Now().UnixMilli(), extensionFor(contentType)),
			Type:        chat.MessageTypeVideo,
			Duration:    duration,
		})
	})
	return fired
}

func extensionFor(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".webm"
}
