package reconcile

import (
	"time"

	"matchmate-chat/internal/domain/chat"
)

// heuristicMatch is the fallback for self-authored echoes that arrive
// without a clientId. It scans newest to oldest for a LOCAL_PENDING entry of
// the same type with identical text whose local SentAt lies within window of
// the echo's SentAt, and returns its index or -1.
//
// Two identical messages sent within the window are indistinguishable here:
// the echo of the first may claim the second placeholder. That is accepted;
// the precise path is the clientId echo.
func heuristicMatch(list []chat.Message, in chat.Message, window time.Duration) int {
	for i := len(list) - 1; i >= 0; i-- {
		cand := list[i]
		if !cand.IsPending() || !cand.FromSelf {
			continue
		}
		if cand.Type != in.Type || cand.Text != in.Text {
			continue
		}
		if absDuration(cand.SentAt.Sub(in.SentAt)) <= window {
			return i
		}
	}
	return -1
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
