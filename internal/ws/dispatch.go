package ws

import (
	"context"
	"encoding/json"
	"errors"

	"carelink/internal/domain"
	"carelink/internal/observability/metrics"
	"carelink/internal/realtime"
	"carelink/internal/service"
)

// Inbound event names.
const (
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventCallJoin         = "call_join"
	EventCallSignal       = "call_signal"
	EventCallEnd          = "call_end"
	EventMarkSeen         = "mark_seen"
	EventEditMessage      = "edit_message"
	EventDeleteMessage    = "delete_message"
)

var errMalformed = errors.New("malformed event")

type withUserPayload struct {
	WithUserID string `json:"withUserId"`
}

type sendMessagePayload struct {
	ToUserID  string  `json:"toUserId"`
	Text      string  `json:"text"`
	MediaURL  *string `json:"mediaUrl"`
	MediaType *string `json:"mediaType"`
}

type typingPayload struct {
	ToUserID string `json:"toUserId"`
	Typing   bool   `json:"typing"`
}

type callSignalPayload struct {
	WithUserID string          `json:"withUserId"`
	Data       json.RawMessage `json:"data"`
}

type markSeenPayload struct {
	ConversationID string `json:"conversationId"`
}

type editMessagePayload struct {
	MessageID int64  `json:"messageId"`
	Text      string `json:"text"`
}

type deleteMessagePayload struct {
	MessageID int64  `json:"messageId"`
	Mode      string `json:"mode"`
}

// dispatch handles one inbound frame. Malformed frames are dropped; failed
// operations are reported back to the sender as an error event.
func (h *Handler) dispatch(ctx context.Context, c *Client, data []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		metrics.InboundEventsTotal.WithLabelValues("invalid", "malformed").Inc()
		c.log.Debug("drop undecodable frame", "error", err)
		return
	}

	if h.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.storeTimeout)
		defer cancel()
	}

	known, err := h.handle(ctx, c, env)
	switch {
	case !known:
		metrics.InboundEventsTotal.WithLabelValues("unknown", "ignored").Inc()
		c.log.Debug("ignore unknown event", "event", env.Type)
	case errors.Is(err, errMalformed):
		metrics.InboundEventsTotal.WithLabelValues(env.Type, "malformed").Inc()
		c.log.Debug("drop malformed event", "event", env.Type, "error", err)
	case err != nil:
		metrics.InboundEventsTotal.WithLabelValues(env.Type, "error").Inc()
		c.log.WarnContext(ctx, "event failed", "event", env.Type, "error", err)
		h.hub.Deliver(c, realtime.EventError, realtime.ErrorPayload{
			Event:   env.Type,
			Message: publicMessage(err),
		})
	default:
		metrics.InboundEventsTotal.WithLabelValues(env.Type, "ok").Inc()
	}
}

func (h *Handler) handle(ctx context.Context, c *Client, env realtime.Envelope) (bool, error) {
	switch env.Type {
	case EventJoinConversation:
		var p withUserPayload
		if err := decode(env, &p); err != nil || !validPeer(c, p.WithUserID) {
			return true, errMalformed
		}
		_, err := h.messages.JoinConversation(ctx, c, p.WithUserID)
		return true, err

	case EventSendMessage:
		var p sendMessagePayload
		if err := decode(env, &p); err != nil || !validPeer(c, p.ToUserID) {
			return true, errMalformed
		}
		_, err := h.messages.Send(ctx, service.SendInput{
			FromUserID: c.UserID(),
			ToUserID:   p.ToUserID,
			Text:       p.Text,
			MediaURL:   p.MediaURL,
			MediaType:  p.MediaType,
		})
		return true, err

	case EventTyping:
		var p typingPayload
		if err := decode(env, &p); err != nil || !validPeer(c, p.ToUserID) {
			return true, errMalformed
		}
		return true, h.messages.Typing(ctx, c, p.ToUserID, p.Typing)

	case EventCallJoin:
		var p withUserPayload
		if err := decode(env, &p); err != nil || !validPeer(c, p.WithUserID) {
			return true, errMalformed
		}
		_, err := h.calls.Join(ctx, c, p.WithUserID)
		return true, err

	case EventCallSignal:
		var p callSignalPayload
		if err := decode(env, &p); err != nil || !validPeer(c, p.WithUserID) || len(p.Data) == 0 {
			return true, errMalformed
		}
		_, err := h.calls.Signal(ctx, c, p.WithUserID, p.Data)
		return true, err

	case EventCallEnd:
		var p withUserPayload
		if err := decode(env, &p); err != nil || !validPeer(c, p.WithUserID) {
			return true, errMalformed
		}
		return true, h.calls.End(ctx, c, p.WithUserID)

	case EventMarkSeen:
		var p markSeenPayload
		if err := decode(env, &p); err != nil || p.ConversationID == "" {
			return true, errMalformed
		}
		_, err := h.messages.MarkSeen(ctx, p.ConversationID, c.UserID())
		return true, err

	case EventEditMessage:
		var p editMessagePayload
		if err := decode(env, &p); err != nil || p.MessageID == 0 {
			return true, errMalformed
		}
		_, err := h.messages.Edit(ctx, c.UserID(), p.MessageID, p.Text)
		return true, err

	case EventDeleteMessage:
		var p deleteMessagePayload
		if err := decode(env, &p); err != nil || p.MessageID == 0 {
			return true, errMalformed
		}
		if p.Mode == "" {
			p.Mode = service.DeleteForMe
		}
		_, err := h.messages.Delete(ctx, c.UserID(), p.MessageID, p.Mode)
		return true, err
	}
	return false, nil
}

// validPeer rejects an empty or self-referencing counterpart.
func validPeer(c *Client, userID string) bool {
	return userID != "" && userID != c.UserID()
}

func decode(env realtime.Envelope, v any) error {
	if len(env.Payload) == 0 {
		return errMalformed
	}
	return json.Unmarshal(env.Payload, v)
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid input"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not found"
	case errors.Is(err, service.ErrMessageDeleted):
		return service.ErrMessageDeleted.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "internal error"
	}
}
