package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"matchmate-chat/internal/api"
	"matchmate-chat/internal/domain/chat"
	"matchmate-chat/internal/media"
	"matchmate-chat/internal/reconcile"
	"matchmate-chat/internal/transport/httpdto"
	matchmate_errors "matchmate-chat/pkg/errors"

	"go.uber.org/zap"
)

// SendText appends an optimistic entry and sends it in the background. When
// either side has blocked the conversation nothing is created or sent and
// ErrBlocked is returned.
func (s *Session) SendText(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, matchmate_errors.ErrInvalidInput
	}

	var (
		msg    chat.Message
		chatID string
		gen    uint64
		err    error
	)
	if execErr := s.exec(ctx, func() {
		if err = s.sendable(); err != nil {
			return
		}
		msg = s.engine.ApplyLocalSend(reconcile.Draft{Type: chat.MessageTypeText, Text: text})
		chatID, gen = s.conv.ChatID, s.gen
		s.armFallback(gen, msg.ClientID)
		s.listChanged()
	}); execErr != nil {
		return chat.Message{}, execErr
	}
	if err != nil {
		return chat.Message{}, err
	}

	s.call(func(ctx context.Context) {
		req := httpdto.SendMessageRequest{
			Text:        msg.Text,
			MessageType: msg.Type,
			ClientID:    msg.ClientID,
		}
		if err := s.api.SendMessage(ctx, chatID, req); err != nil {
			s.post(gen, func() { s.notice(NoticeSendFailed, msg.ClientID, err) })
		}
	})
	return msg, nil
}

// SendMedia takes a finished blob, from the camera or a picked file, through
// the same optimistic path as text and uploads it in the background.
func (s *Session) SendMedia(ctx context.Context, blob media.Blob) (chat.Message, error) {
	if len(blob.Data) == 0 {
		return chat.Message{}, matchmate_errors.ErrNotUploaded
	}
	if blob.Type != chat.MessageTypeImage && blob.Type != chat.MessageTypeVideo {
		return chat.Message{}, fmt.Errorf("%w: media type %q", matchmate_errors.ErrInvalidInput, blob.Type)
	}
	if blob.Type == chat.MessageTypeVideo {
		if err := media.CheckVideoDuration(blob.Duration, s.cfg.MaxVideoDuration); err != nil {
			return chat.Message{}, err
		}
	}

	var (
		msg    chat.Message
		chatID string
		gen    uint64
		err    error
	)
	if execErr := s.exec(ctx, func() {
		if err = s.sendable(); err != nil {
			return
		}
		msg = s.engine.ApplyLocalSend(reconcile.Draft{Type: blob.Type})
		chatID, gen = s.conv.ChatID, s.gen
		s.overlay.SetCamera(false)
		s.armFallback(gen, msg.ClientID)
		s.listChanged()
	}); execErr != nil {
		return chat.Message{}, execErr
	}
	if err != nil {
		return chat.Message{}, err
	}

	s.call(func(ctx context.Context) {
		_, err := s.api.Upload(ctx, chatID, api.Upload{
			Filename:    blob.Filename,
			ContentType: blob.ContentType,
			Data:        blob.Data,
			MessageType: blob.Type,
			ClientID:    msg.ClientID,
		})
		if err != nil {
			s.post(gen, func() { s.notice(NoticeUploadFailed, msg.ClientID, err) })
		}
	})
	return msg, nil
}

// Delete removes the message identified by key. ForMe hides it locally at
// once; confirmed messages are also hidden server-side. ForEveryone needs a
// confirmed message and tombstones it once the server accepts.
func (s *Session) Delete(ctx context.Context, key string, deleteType chat.DeleteType) error {
	if !deleteType.Valid() {
		return matchmate_errors.ErrInvalidInput
	}

	var (
		messageID string
		chatID    string
		gen       uint64
		err       error
	)
	if execErr := s.exec(ctx, func() {
		if err = s.ready(); err != nil {
			return
		}
		m, ok := s.engine.Find(key)
		if !ok {
			err = matchmate_errors.ErrNotFound
			return
		}
		s.overlay.CloseMenu()
		messageID, chatID, gen = m.ID, s.conv.ChatID, s.gen

		if deleteType == chat.DeleteForMe {
			s.engine.ApplyDelete(m.Key(), chat.DeleteForMe)
			s.dropFallback(m.ClientID)
			s.overlay.Drop(m.Key())
			s.listChanged()
			return
		}
		if m.IsPending() {
			err = fmt.Errorf("%w: message not confirmed yet", matchmate_errors.ErrInvalidInput)
		}
		s.publish()
	}); execErr != nil {
		return execErr
	}
	if err != nil || messageID == "" {
		return err
	}

	s.call(func(ctx context.Context) {
		if err := s.api.DeleteMessage(ctx, chatID, messageID, deleteType); err != nil {
			s.post(gen, func() { s.notice(NoticeDeleteFailed, messageID, err) })
			return
		}
		if deleteType == chat.DeleteForEveryone {
			s.post(gen, func() {
				if s.engine.ApplyDelete(messageID, chat.DeleteForEveryone) {
					s.overlay.Drop(messageID)
					s.listChanged()
				}
			})
		}
	})
	return nil
}

// React sends emoji for the confirmed message key and applies the
// authoritative list the server returns.
func (s *Session) React(ctx context.Context, key, emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return matchmate_errors.ErrInvalidInput
	}

	var (
		messageID string
		chatID    string
		gen       uint64
		err       error
	)
	if execErr := s.exec(ctx, func() {
		if err = s.ready(); err != nil {
			return
		}
		m, ok := s.engine.Find(key)
		switch {
		case !ok:
			err = matchmate_errors.ErrNotFound
		case m.IsPending() || m.DeletedForEveryone:
			err = matchmate_errors.ErrInvalidInput
		default:
			messageID, chatID, gen = m.ID, s.conv.ChatID, s.gen
		}
		s.overlay.CloseReactions()
		s.publish()
	}); execErr != nil {
		return execErr
	}
	if err != nil {
		return err
	}

	s.call(func(ctx context.Context) {
		reactions, err := s.api.React(ctx, chatID, messageID, emoji)
		if err != nil {
			s.post(gen, func() { s.notice(NoticeReactFailed, messageID, err) })
			return
		}
		s.post(gen, func() {
			if s.engine.ApplyReaction(messageID, reactions) {
				s.listChanged()
			}
		})
	})
	return nil
}

// Block and Unblock toggle the current user's block on the conversation.
func (s *Session) Block(ctx context.Context) error {
	return s.setBlocked(ctx, true)
}

func (s *Session) Unblock(ctx context.Context) error {
	return s.setBlocked(ctx, false)
}

func (s *Session) setBlocked(ctx context.Context, blocked bool) error {
	var (
		chatID string
		gen    uint64
		err    error
	)
	if execErr := s.exec(ctx, func() {
		if err = s.ready(); err != nil {
			return
		}
		chatID, gen = s.conv.ChatID, s.gen
	}); execErr != nil {
		return execErr
	}
	if err != nil {
		return err
	}

	var resp httpdto.BlockResponse
	if blocked {
		resp, err = s.api.Block(ctx, chatID)
	} else {
		resp, err = s.api.Unblock(ctx, chatID)
	}
	if err != nil {
		s.post(gen, func() { s.notice(NoticeBlockFailed, chatID, err) })
		return err
	}

	return s.exec(ctx, func() {
		if gen != s.gen {
			return
		}
		s.conv.IsBlockedByMe = resp.IsBlockedByMe
		s.conv.IsBlockedByThem = resp.IsBlockedByThem
		s.publish()
	})
}

// Overlay operations.

func (s *Session) OpenMenu(ctx context.Context, key string) error {
	return s.overlayOp(ctx, key, func() { s.overlay.OpenMenu(key) })
}

func (s *Session) CloseMenu(ctx context.Context) error {
	return s.overlayOp(ctx, "", s.overlay.CloseMenu)
}

func (s *Session) OpenReactions(ctx context.Context, key string) error {
	return s.overlayOp(ctx, key, func() { s.overlay.OpenReactions(key) })
}

func (s *Session) CloseReactions(ctx context.Context) error {
	return s.overlayOp(ctx, "", s.overlay.CloseReactions)
}

func (s *Session) SetCamera(ctx context.Context, open bool) error {
	return s.overlayOp(ctx, "", func() { s.overlay.SetCamera(open) })
}

func (s *Session) overlayOp(ctx context.Context, key string, fn func()) error {
	var err error
	if execErr := s.exec(ctx, func() {
		if err = s.ready(); err != nil {
			return
		}
		if key != "" {
			if _, ok := s.engine.Find(key); !ok {
				err = matchmate_errors.ErrNotFound
				return
			}
		}
		fn()
		s.publish()
	}); execErr != nil {
		return execErr
	}
	return err
}

func (s *Session) sendable() error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.conv.Blocked() {
		s.log.Debug("send suppressed, conversation blocked", zap.String("chat_id", s.conv.ChatID))
		return matchmate_errors.ErrBlocked
	}
	return nil
}

// armFallback abandons clientID if no echo claims it within the window.
func (s *Session) armFallback(gen uint64, clientID string) {
	window := s.engine.Window()
	s.fallback[clientID] = time.AfterFunc(window, func() {
		s.post(gen, func() {
			delete(s.fallback, clientID)
			if s.engine.AbandonPending(clientID) {
				s.log.Debug("pending send abandoned", zap.String("client_id", clientID), zap.Duration("window", window))
				s.publish()
			}
		})
	})
}

func (s *Session) dropFallback(clientID string) {
	if t, ok := s.fallback[clientID]; ok {
		t.Stop()
		delete(s.fallback, clientID)
	}
}
