// Package tracker acknowledges read state for the visible conversation and
// drives the transient "new message" indicator.
package tracker

import (
	"context"
	"sync"
	"time"

	"matchmate-chat/internal/notify"

	"go.uber.org/zap"
)

const (
	DefaultIndicatorDecay = 3 * time.Second
	seenTimeout           = 10 * time.Second
)

type SeenMarker interface {
	MarkSeen(ctx context.Context, chatID string) error
}

type Option func(*Tracker)

func WithIndicatorDecay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.decay = d
		}
	}
}

// WithIndicatorHandler is called with true when the indicator is raised and
// with false when it clears. It runs on a timer goroutine.
func WithIndicatorHandler(fn func(bool)) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.onIndicator = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

type Tracker struct {
	seen        SeenMarker
	signals     *notify.Bus[notify.Signal]
	decay       time.Duration
	onIndicator func(bool)
	log         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	indicator bool
	stopped   bool
	// seenBusy is set while an acknowledgment is in flight; seenAgain
	// queues one more for seenChat once it returns.
	seenBusy  bool
	seenAgain bool
	seenChat  string
}

func New(seen SeenMarker, signals *notify.Bus[notify.Signal], opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		seen:        seen,
		signals:     signals,
		decay:       DefaultIndicatorDecay,
		onIndicator: func(bool) {},
		log:         zap.NewNop(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MarkSeen acknowledges chatID in the background. Failures are logged and
// dropped. Once the call returns, KindUnreadChanged is published so the
// unread counter recomputes from the server. Calls made while one is in
// flight collapse into a single follow-up acknowledgment.
func (t *Tracker) MarkSeen(chatID string) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.seenChat = chatID
	if t.seenBusy {
		t.seenAgain = true
		t.mu.Unlock()
		return
	}
	t.seenBusy = true
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		for t.acknowledge() {
		}
	}()
}

// acknowledge sends one MarkSeen and reports whether another was requested
// meanwhile.
func (t *Tracker) acknowledge() bool {
	t.mu.Lock()
	chatID := t.seenChat
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, seenTimeout)
	err := t.seen.MarkSeen(ctx, chatID)
	cancel()
	if err != nil {
		t.log.Debug("mark seen failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	if t.ctx.Err() == nil && t.signals != nil {
		t.signals.Publish(notify.NewSignal(notify.KindUnreadChanged, chatID))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || !t.seenAgain {
		t.seenBusy = false
		t.seenAgain = false
		return false
	}
	t.seenAgain = false
	return true
}

// PeerMessage raises the indicator, restarting its decay, and announces the
// message when its conversation is not visible.
func (t *Tracker) PeerMessage(chatID string, visible bool) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	raised := !t.indicator
	t.indicator = true
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.decay, func() { t.clear(gen) })
	t.mu.Unlock()

	if raised {
		t.onIndicator(true)
	}
	if !visible && t.signals != nil {
		t.signals.Publish(notify.NewSignal(notify.KindNewMessage, chatID))
	}
}

// Indicator reports whether the "new message" indicator is up.
func (t *Tracker) Indicator() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.indicator
}

// Stop cancels in-flight acknowledgments and timers and waits for them.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.indicator = false
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) clear(gen uint64) {
	t.mu.Lock()
	if t.stopped || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.indicator = false
	t.mu.Unlock()

	t.onIndicator(false)
}
