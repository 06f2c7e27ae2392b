package matchmate_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("file too large")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotUploaded        = errors.New("file not uploaded")
)

// Chat session errors
var (
	ErrBlocked      = errors.New("conversation is blocked")
	ErrNotConnected = errors.New("realtime connection not established")
	ErrClosed       = errors.New("session closed")
	ErrNotJoined    = errors.New("no active room")
	ErrSuperseded   = errors.New("superseded by a newer conversation")
)

// Media capture errors
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrVideoTooLong     = errors.New("video exceeds maximum duration")
	ErrRecorderBusy     = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
