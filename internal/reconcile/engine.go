// Package reconcile merges optimistic local sends, server echoes and
// peer-originated realtime events into one ordered, de-duplicated message
// list for a single conversation.
//
// An Engine is not safe for concurrent use. The owning session serializes
// every call on its event loop.
package reconcile

import (
	"time"

	"matchmate-chat/internal/domain/chat"

	"github.com/google/uuid"
)

// DefaultFallbackWindow bounds both the heuristic echo match and the time a
// clientId may stay pending.
const DefaultFallbackWindow = 3 * time.Second

type Action int

const (
	ActionNone Action = iota
	ActionAppended
	ActionReplaced
	ActionDuplicate
	// ActionDropped means the message was deleted for me earlier and stays
	// gone.
	ActionDropped
)

func (a Action) String() string {
	switch a {
	case ActionAppended:
		return "appended"
	case ActionReplaced:
		return "replaced"
	case ActionDuplicate:
		return "duplicate"
	case ActionDropped:
		return "dropped"
	}
	return "none"
}

// Match records which rule paired an incoming message with an existing entry.
type Match int

const (
	MatchNone Match = iota
	MatchID
	MatchClientID
	MatchHeuristic
)

func (m Match) String() string {
	switch m {
	case MatchID:
		return "id"
	case MatchClientID:
		return "client_id"
	case MatchHeuristic:
		return "heuristic"
	}
	return "none"
}

// Outcome describes what ApplyRemoteMessage did.
type Outcome struct {
	Action Action
	Match  Match
	Index  int
	// Peer is true when the message was authored by the counterpart.
	Peer bool
	// PreviousKey is the key the entry had before replacement (its clientId
	// for a confirmed optimistic send). Empty on append.
	PreviousKey string
	Message     chat.Message
}

// Draft is the content of a message about to be sent.
type Draft struct {
	Type     chat.MessageType
	Text     string
	MediaURL *string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithFallbackWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithClientIDGenerator replaces the uuid generator, mostly for tests.
func WithClientIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newClientID = gen
		}
	}
}

type Engine struct {
	self     string
	messages []chat.Message
	pending  map[string]time.Time
	// hidden holds the ids and clientIds of entries deleted for me. Echoes
	// and replays carrying any of them are dropped.
	hidden map[string]struct{}
	// hiddenDrafts are pending entries deleted for me, kept so an echo
	// without a clientId can still be recognized.
	hiddenDrafts []chat.Message
	window      time.Duration
	now         func() time.Time
	newClientID func() string
}

func NewEngine(self string, opts ...Option) *Engine {
	e := &Engine{
		self:        self,
		pending:     make(map[string]time.Time),
		hidden:      make(map[string]struct{}),
		window:      DefaultFallbackWindow,
		now:         time.Now,
		newClientID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Self() string {
	return e.self
}

func (e *Engine) Window() time.Duration {
	return e.window
}

// Load replaces the list with a freshly fetched conversation history and
// forgets every pending clientId.
func (e *Engine) Load(msgs []chat.Message) {
	e.messages = make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if e.isHidden(m) {
			continue
		}
		m = m.Clone()
		m.FromSelf = m.Sender == e.self
		e.messages = append(e.messages, m)
	}
	e.pending = make(map[string]time.Time)
}

// ApplyLocalSend appends a LOCAL_PENDING entry and registers its clientId.
func (e *Engine) ApplyLocalSend(d Draft) chat.Message {
	msgType := d.Type
	if msgType == "" {
		msgType = chat.MessageTypeText
	}
	m := chat.Message{
		ClientID: e.newClientID(),
		Sender:   e.self,
		FromSelf: true,
		Type:     msgType,
		Text:     d.Text,
		MediaURL: d.MediaURL,
		SentAt:   e.now(),
	}
	e.messages = append(e.messages, m)
	e.pending[m.ClientID] = m.SentAt
	return m.Clone()
}

// ApplyRemoteMessage merges a message pushed by the server.
func (e *Engine) ApplyRemoteMessage(in chat.Message) Outcome {
	in = in.Clone()
	in.FromSelf = in.Sender == e.self
	if in.Type == "" {
		in.Type = chat.MessageTypeText
	}

	if e.isHidden(in) || e.claimHiddenDraft(in) {
		e.hide(in)
		e.releaseHiddenDraft(in.ClientID)
		return Outcome{Action: ActionDropped, Peer: !in.FromSelf, Message: in.Clone()}
	}

	if in.ID != "" {
		if idx := e.indexByID(in.ID); idx >= 0 {
			return e.replace(idx, in, MatchID, ActionDuplicate)
		}
	}

	if in.FromSelf {
		if in.ClientID != "" {
			// The entry may no longer be in the pending set if the window
			// abandoned it; it is still the placeholder for this echo.
			if idx := e.indexByClientID(in.ClientID); idx >= 0 && e.messages[idx].IsPending() {
				return e.replace(idx, in, MatchClientID, ActionReplaced)
			}
		} else if idx := heuristicMatch(e.messages, in, e.window); idx >= 0 {
			return e.replace(idx, in, MatchHeuristic, ActionReplaced)
		}
	}

	e.messages = append(e.messages, in)
	return Outcome{
		Action:  ActionAppended,
		Index:   len(e.messages) - 1,
		Peer:    !in.FromSelf,
		Message: in.Clone(),
	}
}

// ApplyDelete handles both delete kinds. ForMe removes the entry identified
// by key (server id or clientId) from the local list only, and later echoes
// or replays of it are dropped. ForEveryone tombstones the entry with server
// id key and keeps its position.
func (e *Engine) ApplyDelete(key string, deleteType chat.DeleteType) bool {
	switch deleteType {
	case chat.DeleteForMe:
		idx := e.indexByKey(key)
		if idx < 0 {
			return false
		}
		m := e.messages[idx]
		if m.ClientID != "" {
			delete(e.pending, m.ClientID)
		}
		if m.IsPending() {
			e.hiddenDrafts = append(e.hiddenDrafts, m)
		}
		e.hide(m)
		e.messages = append(e.messages[:idx], e.messages[idx+1:]...)
		return true
	case chat.DeleteForEveryone:
		idx := e.indexByID(key)
		if idx < 0 {
			return false
		}
		e.messages[idx].Tombstone()
		return true
	}
	return false
}

// ApplyReaction replaces the reaction list wholesale with the server's list.
func (e *Engine) ApplyReaction(messageID string, reactions []chat.Reaction) bool {
	idx := e.indexByID(messageID)
	if idx < 0 || e.messages[idx].DeletedForEveryone {
		return false
	}
	e.messages[idx].Reactions = append([]chat.Reaction(nil), reactions...)
	return true
}

// ApplySeen adds user to SeenBy of the listed messages, or of every message
// user did not author when ids is empty. Returns whether anything grew.
func (e *Engine) ApplySeen(user string, ids []string) bool {
	return e.growSet(user, ids, func(m *chat.Message) *[]string { return &m.SeenBy })
}

// ApplyDelivered is ApplySeen for DeliveredTo.
func (e *Engine) ApplyDelivered(user string, ids []string) bool {
	return e.growSet(user, ids, func(m *chat.Message) *[]string { return &m.DeliveredTo })
}

// AbandonPending drops clientID from the pending set without touching the
// list entry. A later echo carrying the same clientId still replaces it.
func (e *Engine) AbandonPending(clientID string) bool {
	if _, ok := e.pending[clientID]; !ok {
		return false
	}
	delete(e.pending, clientID)
	return true
}

// IsHidden reports whether key belongs to a message deleted for me.
func (e *Engine) IsHidden(key string) bool {
	_, ok := e.hidden[key]
	return ok
}

func (e *Engine) IsPending(clientID string) bool {
	_, ok := e.pending[clientID]
	return ok
}

func (e *Engine) PendingCount() int {
	return len(e.pending)
}

func (e *Engine) Len() int {
	return len(e.messages)
}

// Messages returns a deep copy of the ordered list.
func (e *Engine) Messages() []chat.Message {
	out := make([]chat.Message, len(e.messages))
	for i, m := range e.messages {
		out[i] = m.Clone()
	}
	return out
}

// Find returns a copy of the entry with the given key.
func (e *Engine) Find(key string) (chat.Message, bool) {
	idx := e.indexByKey(key)
	if idx < 0 {
		return chat.Message{}, false
	}
	return e.messages[idx].Clone(), true
}

// Reset empties the engine on conversation teardown.
func (e *Engine) Reset() {
	e.messages = nil
	e.pending = make(map[string]time.Time)
	e.hidden = make(map[string]struct{})
	e.hiddenDrafts = nil
}

func (e *Engine) replace(idx int, in chat.Message, match Match, action Action) Outcome {
	prev := e.messages[idx]
	merged := in
	merged.SeenBy = chat.MergeSet(append([]string(nil), prev.SeenBy...), in.SeenBy)
	merged.DeliveredTo = chat.MergeSet(append([]string(nil), prev.DeliveredTo...), in.DeliveredTo)
	if merged.ClientID == "" {
		merged.ClientID = prev.ClientID
	}
	if merged.SentAt.IsZero() {
		merged.SentAt = prev.SentAt
	}
	if merged.Reactions == nil {
		merged.Reactions = prev.Reactions
	}
	if prev.DeletedForEveryone {
		merged.Tombstone()
	}
	e.messages[idx] = merged

	if prev.ClientID != "" {
		delete(e.pending, prev.ClientID)
	}
	if in.ClientID != "" {
		delete(e.pending, in.ClientID)
	}

	return Outcome{
		Action:      action,
		Match:       match,
		Index:       idx,
		Peer:        !merged.FromSelf,
		PreviousKey: prev.Key(),
		Message:     merged.Clone(),
	}
}

func (e *Engine) growSet(user string, ids []string, field func(*chat.Message) *[]string) bool {
	if user == "" {
		return false
	}
	grew := false
	add := []string{user}
	apply := func(m *chat.Message) {
		set := field(m)
		before := len(*set)
		*set = chat.MergeSet(*set, add)
		if len(*set) != before {
			grew = true
		}
	}
	if len(ids) == 0 {
		for i := range e.messages {
			if e.messages[i].ID != "" && e.messages[i].Sender != user {
				apply(&e.messages[i])
			}
		}
		return grew
	}
	for _, id := range ids {
		if idx := e.indexByID(id); idx >= 0 {
			apply(&e.messages[idx])
		}
	}
	return grew
}

func (e *Engine) hide(m chat.Message) {
	if m.ID != "" {
		e.hidden[m.ID] = struct{}{}
	}
	if m.ClientID != "" {
		e.hidden[m.ClientID] = struct{}{}
	}
}

func (e *Engine) isHidden(m chat.Message) bool {
	if _, ok := e.hidden[m.ID]; ok && m.ID != "" {
		return true
	}
	if m.ClientID == "" || m.Sender != e.self {
		return false
	}
	_, ok := e.hidden[m.ClientID]
	return ok
}

// claimHiddenDraft matches a self echo without a clientId against drafts
// deleted for me while pending, with the same rule as heuristicMatch.
func (e *Engine) claimHiddenDraft(in chat.Message) bool {
	if !in.FromSelf || in.ClientID != "" || len(e.hiddenDrafts) == 0 {
		return false
	}
	idx := heuristicMatch(e.hiddenDrafts, in, e.window)
	if idx < 0 {
		return false
	}
	e.hiddenDrafts = append(e.hiddenDrafts[:idx], e.hiddenDrafts[idx+1:]...)
	return true
}

func (e *Engine) releaseHiddenDraft(clientID string) {
	if clientID == "" {
		return
	}
	for i, d := range e.hiddenDrafts {
		if d.ClientID == clientID {
			e.hiddenDrafts = append(e.hiddenDrafts[:i], e.hiddenDrafts[i+1:]...)
			return
		}
	}
}

func (e *Engine) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) indexByClientID(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

func (e *Engine) indexByKey(key string) int {
	if idx := e.indexByID(key); idx >= 0 {
		return idx
	}
	return e.indexByClientID(key)
}
