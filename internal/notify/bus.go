// Package notify carries the one-way signals the chat session emits for the
// navigation surface, and keeps the aggregate unread counter in sync.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type Kind string

const (
	// KindUnreadChanged asks observers to recompute the unread counter.
	KindUnreadChanged Kind = "unread_changed"
	// KindNewMessage reports a peer message that arrived while its
	// conversation was not visible.
	KindNewMessage Kind = "new_message"
)

type Signal struct {
	Kind   Kind
	ChatID string
	At     time.Time
}

func NewSignal(kind Kind, chatID string) Signal {
	return Signal{Kind: kind, ChatID: chatID, At: time.Now()}
}

const listenerBuffer = 16

// Bus fans values out to listeners. Publish never blocks. A listener whose
// buffer is full misses the value, so delivery is at most once, unless it
// subscribed with SubscribeLatest. Listener panics are recovered and logged.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[int]*listener[T]
	nextID int
	log    *zap.Logger
}

type listener[T any] struct {
	ch   chan T
	stop chan struct{}
	once sync.Once

	// latest listeners hold one pending value that newer values replace.
	latest bool
	mu     sync.Mutex
}

func NewBus[T any](log *zap.Logger) *Bus[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus[T]{
		subs: make(map[int]*listener[T]),
		log:  log,
	}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	return b.subscribe(&listener[T]{
		ch:   make(chan T, listenerBuffer),
		stop: make(chan struct{}),
	}, fn)
}

// SubscribeLatest registers fn for state-like values. A slow fn may skip
// intermediate values but always receives the most recent one.
func (b *Bus[T]) SubscribeLatest(fn func(T)) (unsubscribe func()) {
	return b.subscribe(&listener[T]{
		ch:     make(chan T, 1),
		stop:   make(chan struct{}),
		latest: true,
	}, fn)
}

func (b *Bus[T]) subscribe(l *listener[T], fn func(T)) (unsubscribe func()) {

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = l
	b.mu.Unlock()

	go b.loop(l, fn)

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		l.close()
	}
}

// Publish offers v to every listener and returns how many accepted it.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, l := range b.subs {
		if l.latest {
			l.replace(v)
			delivered++
			continue
		}
		select {
		case l.ch <- v:
			delivered++
		default:
			b.log.Debug("listener busy, signal dropped")
		}
	}
	return delivered
}

func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every listener.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*listener[T])
	b.mu.Unlock()

	for _, l := range subs {
		l.close()
	}
}

func (b *Bus[T]) loop(l *listener[T], fn func(T)) {
	for {
		select {
		case <-l.stop:
			return
		case v := <-l.ch:
			b.call(fn, v)
		}
	}
}

func (b *Bus[T]) call(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked", zap.Any("panic", r))
		}
	}()
	fn(v)
}

// replace swaps any undelivered value for v. Only Publish sends on ch, so
// with mu held the send after draining cannot block.
func (l *listener[T]) replace(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.ch:
	default:
	}
	l.ch <- v
}

func (l *listener[T]) close() {
	l.once.Do(func() { close(l.stop) })
}
