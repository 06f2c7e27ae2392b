// Package session runs one conversation view: it loads the conversation,
// owns the realtime connection, and feeds local actions and server events
// through the reconciliation engine on a single goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"matchmate-chat/internal/auth"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/events"
	"matchmate-chat/internal/notify"
	"matchmate-chat/internal/reconcile"
	"matchmate-chat/internal/tracker"
	matchmate_errors "matchmate-chat/pkg/errors"

	"go.uber.org/zap"
)

const (
	actionBuffer = 64
	callTimeout  = 30 * time.Second
)

type Config struct {
	// Self is the current user id. When empty it is read from Token.
	Self           string
	Token          string
	FallbackWindow time.Duration
	IndicatorDecay time.Duration
	// MaxVideoDuration caps uploaded videos. Zero uses media.MaxVideoDuration.
	MaxVideoDuration time.Duration
}

type Option func(*Session)

func WithSignals(bus *notify.Bus[notify.Signal]) Option {
	return func(s *Session) {
		if bus != nil {
			s.signals = bus
		}
	}
}

func WithUnreadSink(sink UnreadSink) Option {
	return func(s *Session) {
		s.unread = sink
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEngineOptions forwards options to every engine the session creates.
func WithEngineOptions(opts ...reconcile.Option) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

type Session struct {
	cfg        Config
	self       string
	api        API
	rt         Realtime
	signals    *notify.Bus[notify.Signal]
	unread     UnreadSink
	log        *zap.Logger
	engineOpts []reconcile.Option

	snapshots *notify.Bus[Snapshot]
	notices   *notify.Bus[Notice]

	actions   chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	calls     sync.WaitGroup
	closeOnce sync.Once
	// joinMu orders room joins so the last current Open joins last.
	joinMu sync.Mutex

	// Owned by the loop goroutine.
	gen         uint64
	state       State
	counterpart string
	conv        chat.Conversation
	engine      *reconcile.Engine
	overlay     Overlay
	visible     bool
	tracker     *tracker.Tracker
	fallback    map[string]*time.Timer
}

func New(cfg Config, api API, rt Realtime, opts ...Option) (*Session, error) {
	self := cfg.Self
	if self == "" {
		sub, err := auth.SubjectFromToken(cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("resolve current user: %w", err)
		}
		self = sub
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		self:     self,
		api:      api,
		rt:       rt,
		log:      zap.NewNop(),
		actions:  make(chan func(), actionBuffer),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
		state:    StateIdle,
		visible:  true,
		fallback: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.signals == nil {
		s.signals = notify.NewBus[notify.Signal](s.log)
	}
	s.snapshots = notify.NewBus[Snapshot](s.log)
	s.notices = notify.NewBus[Notice](s.log)
	s.engine = s.newEngine()

	go s.run()
	return s, nil
}

func (s *Session) Self() string {
	return s.self
}

// Signals is the bus the session publishes unread and new-message signals on.
func (s *Session) Signals() *notify.Bus[notify.Signal] {
	return s.signals
}

// Subscribe registers fn for state changes. A slow fn may skip
// intermediate snapshots but always receives the latest one.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.snapshots.SubscribeLatest(fn)
}

// OnNotice registers fn for transient errors.
func (s *Session) OnNotice(fn func(Notice)) (unsubscribe func()) {
	return s.notices.Subscribe(fn)
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.exec(ctx, func() { snap = s.snapshot() })
	return snap, err
}

// Open loads the conversation with counterpartID and joins its room. Calling
// Open again switches conversations: everything belonging to the previous
// one is discarded, and late events or callbacks for it are ignored.
func (s *Session) Open(ctx context.Context, counterpartID string) error {
	var gen uint64
	if err := s.exec(ctx, func() { gen = s.beginOpen(counterpartID) }); err != nil {
		return err
	}

	if _, err := s.rt.Connect(ctx, s.cfg.Token); err != nil {
		s.failOpen(ctx, gen, err)
		return fmt.Errorf("connect: %w", err)
	}

	conv, err := s.api.FetchConversation(ctx, counterpartID)
	if err != nil {
		s.failOpen(ctx, gen, err)
		return err
	}

	stale := false
	if err := s.exec(ctx, func() {
		if gen != s.gen {
			stale = true
			return
		}
		s.load(conv)
	}); err != nil {
		return err
	}
	if stale {
		return matchmate_errors.ErrSuperseded
	}

	if err := s.join(ctx, gen, conv.ChatID); err != nil {
		return err
	}

	stale = false
	if err := s.exec(ctx, func() {
		if gen != s.gen {
			stale = true
			return
		}
		if s.visible {
			s.tracker.MarkSeen(conv.ChatID)
		}
	}); err != nil {
		return err
	}
	if stale {
		return matchmate_errors.ErrSuperseded
	}
	return nil
}

// join moves the transport into chatID unless a newer Open has started.
// Any Open that becomes current afterwards joins after this one returns.
func (s *Session) join(ctx context.Context, gen uint64, chatID string) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	current := false
	if err := s.exec(ctx, func() { current = gen == s.gen }); err != nil {
		return err
	}
	if !current {
		return matchmate_errors.ErrSuperseded
	}
	if err := s.rt.JoinRoom(ctx, chatID); err != nil {
		s.failOpen(ctx, gen, err)
		return fmt.Errorf("join %s: %w", chatID, err)
	}
	return nil
}

// SetVisible records whether the view is on screen. Becoming visible marks
// the conversation seen.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	return s.exec(ctx, func() {
		was := s.visible
		s.visible = visible
		if visible && !was && s.state == StateReady {
			s.tracker.MarkSeen(s.conv.ChatID)
		}
		s.publish()
	})
}

// Close tears down the connection, timers and in-flight calls. It is safe to
// call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.loopDone
		s.rt.Teardown()
		s.calls.Wait()
		s.snapshots.Close()
		s.notices.Close()
		s.log.Debug("session closed")
	})
}

func (s *Session) run() {
	defer close(s.loopDone)
	incoming := s.rt.Events()
	for {
		select {
		case <-s.ctx.Done():
			s.stopConversation()
			s.state = StateClosed
			return
		case fn := <-s.actions:
			fn()
		case ev := <-incoming:
			s.handleEvent(ev)
		}
	}
}

// exec runs fn on the loop and waits for it.
func (s *Session) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case s.actions <- wrapped:
	case <-s.ctx.Done():
		return matchmate_errors.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return matchmate_errors.ErrClosed
	}
}

// post queues fn on the loop from a background goroutine. fn is skipped if
// the conversation it belongs to has since been replaced.
func (s *Session) post(gen uint64, fn func()) {
	select {
	case s.actions <- func() {
		if gen == s.gen {
			fn()
		}
	}:
	case <-s.ctx.Done():
	}
}

// call runs fn off the loop with the session's lifetime as its context.
func (s *Session) call(fn func(ctx context.Context)) {
	s.calls.Add(1)
	go func() {
		defer s.calls.Done()
		ctx, cancel := context.WithTimeout(s.ctx, callTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) newEngine() *reconcile.Engine {
	opts := []reconcile.Option{}
	if s.cfg.FallbackWindow > 0 {
		opts = append(opts, reconcile.WithFallbackWindow(s.cfg.FallbackWindow))
	}
	opts = append(opts, s.engineOpts...)
	return reconcile.NewEngine(s.self, opts...)
}

func (s *Session) beginOpen(counterpartID string) uint64 {
	s.stopConversation()
	s.gen++
	gen := s.gen
	s.counterpart = counterpartID
	s.state = StateLoading
	s.tracker = tracker.New(s.api, s.signals,
		tracker.WithIndicatorDecay(s.cfg.IndicatorDecay),
		tracker.WithLogger(s.log),
		tracker.WithIndicatorHandler(func(bool) {
			go s.post(gen, s.publish)
		}),
	)
	s.publish()
	return gen
}

func (s *Session) failOpen(ctx context.Context, gen uint64, err error) {
	_ = s.exec(ctx, func() {
		if gen != s.gen {
			return
		}
		if errors.Is(err, matchmate_errors.ErrNotFound) {
			s.state = StateNotFound
		} else {
			s.state = StateFailed
		}
		s.log.Warn("open conversation failed", zap.String("counterpart", s.counterpart), zap.Error(err))
		s.publish()
	})
}

func (s *Session) load(conv chat.Conversation) {
	s.conv = conv
	s.conv.Messages = nil
	s.engine.Load(conv.Messages)
	s.state = StateReady
	s.publish()
}

// stopConversation discards everything tied to the current conversation.
func (s *Session) stopConversation() {
	for cid, t := range s.fallback {
		t.Stop()
		delete(s.fallback, cid)
	}
	if s.tracker != nil {
		s.tracker.Stop()
		s.tracker = nil
	}
	s.engine = s.newEngine()
	s.conv = chat.Conversation{}
	s.overlay.Reset()
	s.counterpart = ""
	s.state = StateIdle
}

func (s *Session) ready() error {
	switch s.state {
	case StateReady:
		return nil
	case StateNotFound:
		return matchmate_errors.ErrNotFound
	case StateClosed:
		return matchmate_errors.ErrClosed
	}
	return matchmate_errors.ErrNotJoined
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:           s.state,
		ChatID:          s.conv.ChatID,
		Counterpart:     s.counterpart,
		Messages:        s.engine.Messages(),
		Pending:         s.engine.PendingCount(),
		IsBlockedByMe:   s.conv.IsBlockedByMe,
		IsBlockedByThem: s.conv.IsBlockedByThem,
		Visible:         s.visible,
		Overlay:         s.overlay,
	}
	if s.tracker != nil {
		snap.NewMessage = s.tracker.Indicator()
	}
	return snap
}

func (s *Session) publish() {
	s.snapshots.Publish(s.snapshot())
}

// listChanged publishes after the message list changed and, while the view
// is visible, acknowledges the conversation as seen.
func (s *Session) listChanged() {
	if s.visible && s.state == StateReady && s.tracker != nil {
		s.tracker.MarkSeen(s.conv.ChatID)
	}
	s.publish()
}

func (s *Session) notice(kind NoticeKind, key string, err error) {
	s.log.Info("chat notice", zap.String("kind", string(kind)), zap.String("key", key), zap.Error(err))
	s.notices.Publish(Notice{
		Kind:   kind,
		ChatID: s.conv.ChatID,
		Key:    key,
		Err:    err,
		At:     time.Now(),
	})
}

// event logging helper so every handler tags the frame the same way.
func eventFields(ev events.Event) []zap.Field {
	return []zap.Field{zap.String("type", ev.Type), zap.String("chat_id", ev.ChatID)}
}
