package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"carelink/internal/domain"
	"carelink/internal/observability/metrics"
	"carelink/internal/realtime"
	"carelink/internal/security"
)

// Delete modes accepted by MessageService.Delete.
const (
	DeleteForMe       = "for_me"
	DeleteForEveryone = "for_everyone"
)

// ErrMessageDeleted is returned when editing a message removed for everyone.
var ErrMessageDeleted = errors.New("message is already deleted")

const defaultHistoryLimit = 50

type MessageService struct {
	conversations *ConversationService
	messages      domain.MessageRepository
	hub           *realtime.Hub
	encryptor     *security.Encryptor
	log           *slog.Logger
	now           func() time.Time

	MaxMessageLength int
	HistoryLimit     int
}

func NewMessageService(
	conversations *ConversationService,
	messages domain.MessageRepository,
	hub *realtime.Hub,
	encryptor *security.Encryptor,
	log *slog.Logger,
	maxMessageLength int,
) *MessageService {
	return &MessageService{
		conversations:    conversations,
		messages:         messages,
		hub:              hub,
		encryptor:        encryptor,
		log:              log,
		now:              time.Now,
		MaxMessageLength: maxMessageLength,
		HistoryLimit:     defaultHistoryLimit,
	}
}

// JoinConversation resolves the conversation with withUserID, adds p to its
// room and confirms the join to p.
func (s *MessageService) JoinConversation(ctx context.Context, p realtime.Peer, withUserID string) (*domain.Conversation, error) {
	conv, err := s.conversations.Resolve(ctx, p.UserID(), withUserID)
	if err != nil {
		return nil, err
	}
	s.hub.Join(realtime.ConversationRoom(conv.ID), p)
	s.hub.Deliver(p, realtime.EventConversationJoined, realtime.ConversationJoined{
		ConversationID: conv.ID,
		WithUserID:     withUserID,
	})
	return conv, nil
}

type SendInput struct {
	FromUserID string
	ToUserID   string
	Text       string
	MediaURL   *string
	MediaType  *string
}

// Send persists a user message and delivers it to the conversation room and
// to both participants directly, so neither side has to have joined the
// room to see it.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*realtime.MessagePayload, error) {
	text := strings.TrimSpace(in.Text)
	hasMedia := in.MediaURL != nil && *in.MediaURL != ""
	if text == "" && !hasMedia {
		return nil, fmt.Errorf("message is empty: %w", domain.ErrInvalidInput)
	}
	if s.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.MaxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", s.MaxMessageLength, domain.ErrInvalidInput)
	}

	conv, err := s.conversations.Resolve(ctx, in.FromUserID, in.ToUserID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       in.FromUserID,
		RecipientID:    in.ToUserID,
		Kind:           domain.MessageKindUser,
		MediaURL:       in.MediaURL,
		MediaType:      in.MediaType,
	}
	return s.persistAndDeliver(ctx, msg, text)
}

// SendSystem persists a server-synthesized message, e.g. a call record, and
// delivers it like a user message.
func (s *MessageService) SendSystem(ctx context.Context, conversationID, fromUserID, toUserID, text string) (*realtime.MessagePayload, error) {
	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       fromUserID,
		RecipientID:    toUserID,
		Kind:           domain.MessageKindSystem,
	}
	return s.persistAndDeliver(ctx, msg, text)
}

func (s *MessageService) persistAndDeliver(ctx context.Context, msg *domain.Message, text string) (*realtime.MessagePayload, error) {
	body, err := s.encryptor.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt body: %w", err)
	}
	msg.Body = body
	msg.CreatedAt = s.now().UTC()

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	metrics.MessagesPersistedTotal.WithLabelValues(string(msg.Kind)).Inc()

	if err := s.conversations.Touch(ctx, msg.ConversationID, msg.CreatedAt); err != nil {
		s.log.WarnContext(ctx, "touch conversation", "conversation_id", msg.ConversationID, "error", err)
	}

	payload := s.toPayload(msg, text)
	s.hub.Emit(realtime.ConversationRoom(msg.ConversationID), realtime.EventMessage, payload, realtime.EmitOptions{
		Direct: []string{msg.SenderID, msg.RecipientID},
	})
	return payload, nil
}

// MarkSeen stamps every unseen message addressed to byUserID and reports how
// many changed. The seen update is broadcast even when nothing changed, so
// a client that missed the first one converges on retry.
func (s *MessageService) MarkSeen(ctx context.Context, conversationID, byUserID string) (int64, error) {
	conv, err := s.conversations.Get(ctx, conversationID, byUserID)
	if err != nil {
		return 0, err
	}

	seenAt := s.now().UTC()
	n, err := s.messages.MarkSeen(ctx, conv.ID, byUserID, seenAt)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}

	s.hub.Emit(realtime.ConversationRoom(conv.ID), realtime.EventSeenUpdate, realtime.SeenUpdate{
		ConversationID: conv.ID,
		SeenAt:         seenAt,
		SeenBy:         byUserID,
	}, realtime.EmitOptions{Direct: []string{conv.Other(byUserID)}})
	return n, nil
}

// Typing relays a typing indicator to the conversation, skipping the
// sender's own connection.
func (s *MessageService) Typing(ctx context.Context, from realtime.Peer, toUserID string, typing bool) error {
	conv, err := s.conversations.Resolve(ctx, from.UserID(), toUserID)
	if err != nil {
		return err
	}
	s.hub.Emit(realtime.ConversationRoom(conv.ID), realtime.EventTyping, realtime.TypingUpdate{
		ConversationID: conv.ID,
		FromUserID:     from.UserID(),
		ToUserID:       toUserID,
		Typing:         typing,
	}, realtime.EmitOptions{ExceptPeer: from.ID(), Direct: []string{toUserID}})
	return nil
}

// Edit replaces the text of a message. Only its sender may edit it.
func (s *MessageService) Edit(ctx context.Context, byUserID string, messageID int64, text string) (*realtime.MessageEdited, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message is empty: %w", domain.ErrInvalidInput)
	}
	if s.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.MaxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", s.MaxMessageLength, domain.ErrInvalidInput)
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != byUserID || msg.Kind != domain.MessageKindUser {
		return nil, domain.ErrForbidden
	}
	if msg.DeletedForEveryone {
		return nil, ErrMessageDeleted
	}

	body, err := s.encryptor.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt body: %w", err)
	}
	editedAt := s.now().UTC()
	if err := s.messages.UpdateBody(ctx, msg.ID, body, editedAt); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	ev := &realtime.MessageEdited{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Text:           text,
		EditedAt:       editedAt,
	}
	s.hub.Emit(realtime.ConversationRoom(msg.ConversationID), realtime.EventMessageEdited, ev, realtime.EmitOptions{
		Direct: []string{msg.SenderID, msg.RecipientID},
	})
	return ev, nil
}

// Delete hides a message for byUserID only, or removes it for both sides
// when mode is DeleteForEveryone and byUserID sent it.
func (s *MessageService) Delete(ctx context.Context, byUserID string, messageID int64, mode string) (*realtime.MessageDeleted, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != byUserID && msg.RecipientID != byUserID {
		return nil, domain.ErrForbidden
	}

	at := s.now().UTC()
	ev := &realtime.MessageDeleted{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Mode:           mode,
		DeletedAt:      at,
	}

	switch mode {
	case DeleteForMe:
		if err := s.messages.HideForUser(ctx, msg.ID, byUserID, at); err != nil {
			return nil, fmt.Errorf("hide message: %w", err)
		}
		s.hub.SendTo(byUserID, realtime.EventMessageDeleted, ev)
	case DeleteForEveryone:
		if msg.SenderID != byUserID {
			return nil, domain.ErrForbidden
		}
		if err := s.messages.SoftDeleteForEveryone(ctx, msg.ID, at); err != nil {
			return nil, fmt.Errorf("delete message: %w", err)
		}
		s.hub.Emit(realtime.ConversationRoom(msg.ConversationID), realtime.EventMessageDeleted, ev, realtime.EmitOptions{
			Direct: []string{msg.SenderID, msg.RecipientID},
		})
	default:
		return nil, fmt.Errorf("delete mode %q: %w", mode, domain.ErrInvalidInput)
	}
	return ev, nil
}

// History returns the newest messages of a conversation visible to viewer,
// oldest first.
func (s *MessageService) History(ctx context.Context, conversationID, viewerID string, limit int) ([]*realtime.MessagePayload, error) {
	conv, err := s.conversations.Get(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.HistoryLimit {
		limit = s.HistoryLimit
	}

	msgs, err := s.messages.ListForConversation(ctx, conv.ID, viewerID, limit)
	if err != nil {
		return nil, err
	}
	res := make([]*realtime.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, s.ToPayload(m))
	}
	return res, nil
}

// ToPayload decrypts a stored message into its wire form.
func (s *MessageService) ToPayload(m *domain.Message) *realtime.MessagePayload {
	text := ""
	if !m.DeletedForEveryone {
		dec, err := s.encryptor.Decrypt(m.Body)
		if err != nil {
			s.log.Warn("decrypt message body", "message_id", m.ID, "error", err)
		} else {
			text = dec
		}
	}
	return s.toPayload(m, text)
}

func (s *MessageService) toPayload(m *domain.Message, text string) *realtime.MessagePayload {
	return &realtime.MessagePayload{
		ID:                 m.ID,
		ConversationID:     m.ConversationID,
		FromUserID:         m.SenderID,
		ToUserID:           m.RecipientID,
		Kind:               string(m.Kind),
		Text:               text,
		MediaURL:           m.MediaURL,
		MediaType:          m.MediaType,
		CreatedAt:          m.CreatedAt,
		SeenAt:             m.SeenAt,
		EditedAt:           m.EditedAt,
		DeletedForEveryone: m.DeletedForEveryone,
	}
}
