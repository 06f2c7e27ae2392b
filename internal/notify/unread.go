package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultPollInterval = 30 * time.Second

type UnreadSource interface {
	UnreadCount(ctx context.Context) (int, error)
}

// UnreadCounter tracks the aggregate unread count. It polls on an interval,
// refreshes immediately on KindUnreadChanged, and accepts pushed values from
// the realtime channel.
type UnreadCounter struct {
	src      UnreadSource
	interval time.Duration
	log      *zap.Logger
	changes  *Bus[int]
	refresh  chan struct{}

	mu    sync.RWMutex
	count int
	known bool
}

func NewUnreadCounter(src UnreadSource, interval time.Duration, log *zap.Logger) *UnreadCounter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UnreadCounter{
		src:      src,
		interval: interval,
		log:      log,
		changes:  NewBus[int](log),
		refresh:  make(chan struct{}, 1),
	}
}

// Count returns the last known count and whether one has been observed.
func (u *UnreadCounter) Count() (int, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.count, u.known
}

// OnChange registers fn for every change of the count.
func (u *UnreadCounter) OnChange(fn func(int)) (unsubscribe func()) {
	return u.changes.Subscribe(fn)
}

// Attach listens on signals for KindUnreadChanged.
func (u *UnreadCounter) Attach(signals *Bus[Signal]) (detach func()) {
	return signals.Subscribe(func(s Signal) {
		if s.Kind == KindUnreadChanged {
			u.Refresh()
		}
	})
}

// Refresh schedules a recompute. Requests coalesce while one is pending.
func (u *UnreadCounter) Refresh() {
	select {
	case u.refresh <- struct{}{}:
	default:
	}
}

// Push records a count delivered by the server.
func (u *UnreadCounter) Push(count int) {
	u.set(count)
}

// Run polls until ctx is done.
func (u *UnreadCounter) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	defer u.changes.Close()

	u.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.poll(ctx)
		case <-u.refresh:
			u.poll(ctx)
		}
	}
}

func (u *UnreadCounter) poll(ctx context.Context) {
	count, err := u.src.UnreadCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			u.log.Debug("unread count poll failed", zap.Error(err))
		}
		return
	}
	u.set(count)
}

func (u *UnreadCounter) set(count int) {
	if count < 0 {
		count = 0
	}
	u.mu.Lock()
	changed := !u.known || u.count != count
	u.count = count
	u.known = true
	u.mu.Unlock()

	if changed {
		u.changes.Publish(count)
	}
}
