package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"carelink/internal/domain"
	"carelink/internal/observability/metrics"
	"carelink/internal/realtime"
)

// Texts of the system messages recorded for calls.
const (
	IncomingCallText = "Incoming video call"
	MissedCallText   = "Missed video call"
)

// Reason sent with call_ended when the ring timeout fired.
const EndReasonTimeout = "timeout"

// CallService relays WebRTC signaling between the two participants of a
// conversation and tracks unanswered offers.
//
// Transitions per call room:
//
//	IDLE    + offer   -> RINGING  start pending call, notify callee, record "Incoming video call"
//	RINGING + offer   -> RINGING  replace pending call with the new caller
//	RINGING + answer  -> IDLE     clear pending call
//	RINGING + end     -> IDLE     clear pending call, record "Missed video call", notify callee
//	RINGING + timeout -> IDLE     same as end, call_ended carries reason "timeout"
//	IDLE    + end     -> IDLE     call_ended only
//
// Every signal is relayed whatever its kind. Message and notification
// effects are best-effort; the pending call table is always updated.
type CallService struct {
	conversations *ConversationService
	messages      *MessageService
	notifier      *NotificationService
	hub           *realtime.Hub
	pending       *pendingCalls
	log           *slog.Logger
	now           func() time.Time

	RingTimeout  time.Duration
	StoreTimeout time.Duration
}

func NewCallService(
	conversations *ConversationService,
	messages *MessageService,
	notifier *NotificationService,
	hub *realtime.Hub,
	log *slog.Logger,
	ringTimeout, storeTimeout time.Duration,
) *CallService {
	return &CallService{
		conversations: conversations,
		messages:      messages,
		notifier:      notifier,
		hub:           hub,
		pending:       newPendingCalls(),
		log:           log,
		now:           time.Now,
		RingTimeout:   ringTimeout,
		StoreTimeout:  storeTimeout,
	}
}

// Join adds p to the call room shared with withUserID and tells the other
// members about it.
func (s *CallService) Join(ctx context.Context, p realtime.Peer, withUserID string) (*domain.Conversation, error) {
	conv, err := s.conversations.Resolve(ctx, p.UserID(), withUserID)
	if err != nil {
		return nil, err
	}
	room := realtime.CallRoom(conv.ID)
	if s.hub.Join(room, p) {
		s.hub.Emit(room, realtime.EventCallPeerJoined, realtime.CallPeerJoined{
			ConversationID: conv.ID,
			UserID:         p.UserID(),
		}, realtime.EmitOptions{ExceptPeer: p.ID()})
	}
	return conv, nil
}

// Signal advances the pending call state from the kind of data and relays
// data verbatim to the other side of the call.
func (s *CallService) Signal(ctx context.Context, from realtime.Peer, withUserID string, data json.RawMessage) (SignalKind, error) {
	if len(data) == 0 {
		return SignalOther, fmt.Errorf("signal data is empty: %w", domain.ErrInvalidInput)
	}
	conv, err := s.conversations.Resolve(ctx, from.UserID(), withUserID)
	if err != nil {
		return SignalOther, err
	}
	room := realtime.CallRoom(conv.ID)

	// Pending state changes before the relay, so an answer can never overtake
	// the offer it replies to.
	kind := ClassifySignal(data)
	var ringing bool
	switch kind {
	case SignalOffer:
		s.startRinging(ctx, conv.ID, from.UserID(), withUserID)
		ringing = true
	case SignalAnswer:
		if _, ok := s.pending.clear(room); ok {
			metrics.CallTransitionsTotal.WithLabelValues("answered").Inc()
			s.log.InfoContext(ctx, "call answered", "conversation_id", conv.ID, "user_id", from.UserID())
		}
	}

	s.hub.Emit(room, realtime.EventCallSignal, realtime.CallSignal{
		ConversationID: conv.ID,
		FromUserID:     from.UserID(),
		Data:           data,
	}, realtime.EmitOptions{ExceptPeer: from.ID(), Direct: []string{withUserID}})

	if ringing {
		s.announceRinging(ctx, conv.ID, from.UserID(), withUserID)
	}
	return kind, nil
}

// End finishes the call with withUserID. An offer still ringing at that
// point becomes a missed call.
func (s *CallService) End(ctx context.Context, from realtime.Peer, withUserID string) error {
	conv, err := s.conversations.Resolve(ctx, from.UserID(), withUserID)
	if err != nil {
		return err
	}
	room := realtime.CallRoom(conv.ID)

	call, wasRinging := s.pending.clear(room)
	s.hub.Emit(room, realtime.EventCallEnded, realtime.CallEnded{
		ConversationID: conv.ID,
		ByUserID:       from.UserID(),
	}, realtime.EmitOptions{Direct: []string{from.UserID(), withUserID}})
	s.hub.CloseRoom(room)

	if !wasRinging {
		metrics.CallTransitionsTotal.WithLabelValues("ended").Inc()
		return nil
	}
	s.missed(ctx, call)
	return nil
}

// Pending returns the unanswered offer of a conversation, if any.
func (s *CallService) Pending(conversationID string) (PendingCall, bool) {
	return s.pending.get(realtime.CallRoom(conversationID))
}

// PendingCount is the number of rooms currently ringing.
func (s *CallService) PendingCount() int {
	return s.pending.count()
}

func (s *CallService) startRinging(ctx context.Context, conversationID, callerID, calleeID string) {
	room := realtime.CallRoom(conversationID)
	call := PendingCall{
		ConversationID: conversationID,
		CallerID:       callerID,
		CalleeID:       calleeID,
		StartedAt:      s.now().UTC(),
	}
	if prev, replaced := s.pending.start(room, call, s.RingTimeout, s.expire); replaced {
		metrics.CallTransitionsTotal.WithLabelValues("replaced").Inc()
		s.log.InfoContext(ctx, "pending call replaced", "conversation_id", conversationID,
			"previous_caller_id", prev.CallerID, "caller_id", callerID)
	} else {
		metrics.CallTransitionsTotal.WithLabelValues("ringing").Inc()
	}
}

func (s *CallService) announceRinging(ctx context.Context, conversationID, callerID, calleeID string) {
	s.notifier.Notify(calleeID, realtime.EventIncomingCall, realtime.IncomingCall{
		FromUserID:     callerID,
		ConversationID: conversationID,
	})
	_, err := s.messages.SendSystem(ctx, conversationID, callerID, calleeID, IncomingCallText)
	s.settle(ctx, effectResult{name: "incoming_call_message", err: err})
}

func (s *CallService) missed(ctx context.Context, call PendingCall) {
	metrics.CallTransitionsTotal.WithLabelValues("missed").Inc()
	s.log.InfoContext(ctx, "call missed", "conversation_id", call.ConversationID,
		"caller_id", call.CallerID, "callee_id", call.CalleeID)

	_, err := s.messages.SendSystem(ctx, call.ConversationID, call.CallerID, call.CalleeID, MissedCallText)
	s.settle(ctx, effectResult{name: "missed_call_message", err: err})

	s.notifier.Notify(call.CalleeID, realtime.EventCallMissed, realtime.CallMissed{
		FromUserID:     call.CallerID,
		ConversationID: call.ConversationID,
		At:             s.now().UTC(),
	})
}

// expire runs on the ring timer's goroutine.
func (s *CallService) expire(room string, seq uint64) {
	call, ok := s.pending.expire(room, seq)
	if !ok {
		return
	}

	ctx := context.Background()
	if s.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.StoreTimeout)
		defer cancel()
	}

	s.hub.Emit(room, realtime.EventCallEnded, realtime.CallEnded{
		ConversationID: call.ConversationID,
		Reason:         EndReasonTimeout,
	}, realtime.EmitOptions{Direct: []string{call.CallerID, call.CalleeID}})
	s.hub.CloseRoom(room)
	s.missed(ctx, call)
}

// effectResult is the outcome of a best-effort side effect. It is only
// logged; it never undoes a state transition.
type effectResult struct {
	name string
	err  error
}

func (s *CallService) settle(ctx context.Context, results ...effectResult) {
	for _, r := range results {
		if r.err == nil {
			continue
		}
		metrics.SideEffectFailuresTotal.WithLabelValues(r.name).Inc()
		s.log.WarnContext(ctx, "side effect dropped", "effect", r.name, "error", r.err)
	}
}
