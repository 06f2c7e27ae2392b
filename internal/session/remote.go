package session

import (
	"errors"

	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/events"
	"matchmate-chat/internal/reconcile"

	"go.uber.org/zap"
)

// handleEvent applies one server frame. Frames tagged with another room, or
// arriving while no conversation is loaded, are dropped.
func (s *Session) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.TypeUnreadCount:
		var p events.UnreadCountPayload
		if err := ev.Into(&p); err == nil && s.unread != nil {
			s.unread.Push(p.Count)
		}
		return
	case events.TypePong:
		return
	}

	if s.state != StateReady || ev.ChatID == "" || ev.ChatID != s.conv.ChatID {
		s.log.Debug("dropping event for inactive room", eventFields(ev)...)
		return
	}

	var err error
	switch ev.Type {
	case events.TypeMessage:
		err = s.onMessage(ev)
	case events.TypeMessageDeleted:
		err = s.onDeleted(ev)
	case events.TypeReactionUpdated:
		err = s.onReaction(ev)
	case events.TypeChatBlocked:
		err = s.onBlocked(ev)
	case events.TypeChatUnblocked:
		err = s.onUnblocked(ev)
	case events.TypeMessagesSeen:
		err = s.onSeen(ev)
	case events.TypeMessageDelivered:
		err = s.onDelivered(ev)
	case events.TypeError:
		var p events.ErrorPayload
		if err = ev.Into(&p); err == nil {
			s.notice(NoticeServerError, "", errors.New(p.Message))
		}
	default:
		s.log.Debug("ignoring unknown event", eventFields(ev)...)
	}
	if err != nil {
		s.log.Warn("malformed event", append(eventFields(ev), zap.Error(err))...)
	}
}

func (s *Session) onMessage(ev events.Event) error {
	var p events.MessagePayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	out := s.engine.ApplyRemoteMessage(p.Message)
	if out.Action == reconcile.ActionDropped {
		return nil
	}

	if out.Action == reconcile.ActionReplaced {
		s.dropFallback(out.PreviousKey)
		s.dropFallback(out.Message.ClientID)
		s.overlay.Rekey(out.PreviousKey, out.Message.Key())
	}
	if out.Message.DeletedForEveryone {
		s.overlay.Drop(out.Message.Key())
	}
	if out.Action == reconcile.ActionAppended && out.Peer {
		s.tracker.PeerMessage(s.conv.ChatID, s.visible)
	}
	if out.Action == reconcile.ActionDuplicate {
		s.publish()
		return nil
	}
	s.listChanged()
	return nil
}

func (s *Session) onDeleted(ev events.Event) error {
	var p events.MessageDeletedPayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	// Delete-for-me is local only; a broadcast of one is not ours to apply.
	if p.DeleteType != chat.DeleteForEveryone {
		return nil
	}
	if s.engine.ApplyDelete(p.MessageID, chat.DeleteForEveryone) {
		s.overlay.Drop(p.MessageID)
		s.listChanged()
	}
	return nil
}

func (s *Session) onReaction(ev events.Event) error {
	var p events.ReactionUpdatedPayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	if s.engine.ApplyReaction(p.MessageID, p.Reactions) {
		s.listChanged()
	}
	return nil
}

func (s *Session) onBlocked(ev events.Event) error {
	var p events.ChatBlockedPayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	if p.BlockedBy == s.self {
		s.conv.IsBlockedByMe = true
	} else {
		s.conv.IsBlockedByThem = true
	}
	s.publish()
	return nil
}

func (s *Session) onUnblocked(ev events.Event) error {
	var p events.ChatUnblockedPayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	switch p.UnblockedBy {
	case "":
		s.conv.IsBlockedByMe = false
		s.conv.IsBlockedByThem = false
	case s.self:
		s.conv.IsBlockedByMe = false
	default:
		s.conv.IsBlockedByThem = false
	}
	s.publish()
	return nil
}

func (s *Session) onSeen(ev events.Event) error {
	var p events.MessagesSeenPayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	if s.engine.ApplySeen(p.SeenBy, p.MessageIDs) {
		s.receiptsChanged(p.SeenBy)
	}
	return nil
}

func (s *Session) onDelivered(ev events.Event) error {
	var p events.MessageDeliveredPayload
	if err := ev.Into(&p); err != nil {
		return err
	}
	if s.engine.ApplyDelivered(p.DeliveredTo, p.MessageIDs) {
		s.receiptsChanged(p.DeliveredTo)
	}
	return nil
}

// receiptsChanged treats the counterpart's receipts as a list change. Our own
// receipts are the server's answer to MarkSeen and only publish.
func (s *Session) receiptsChanged(by string) {
	if by == s.self {
		s.publish()
		return
	}
	s.listChanged()
}
