package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carelink/internal/domain"
)

// ConversationService resolves the single conversation shared by a pair
// of users.
type ConversationService struct {
	conversations domain.ConversationRepository
	log           *slog.Logger
	now           func() time.Time
}

func NewConversationService(conversations domain.ConversationRepository, log *slog.Logger) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		log:           log,
		now:           time.Now,
	}
}

// Resolve returns the conversation between userA and userB, creating it on
// first contact. The result does not depend on argument order. When both
// users race to create it, the loser of the insert reads the winner's row.
func (s *ConversationService) Resolve(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, fmt.Errorf("resolve conversation: %w", domain.ErrInvalidInput)
	}
	a, b := domain.CanonicalPair(userA, userB)

	existing, err := s.conversations.GetByParticipants(ctx, a, b)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	now := s.now().UTC()
	conv := &domain.Conversation{
		ID:             uuid.NewString(),
		ParticipantA:   a,
		ParticipantB:   b,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		s.log.DebugContext(ctx, "conversation created concurrently, reading existing", "participant_a", a, "participant_b", b)
		existing, err := s.conversations.GetByParticipants(ctx, a, b)
		if err != nil {
			return nil, fmt.Errorf("find conversation after conflict: %w", err)
		}
		return existing, nil
	}
	return conv, nil
}

// Get returns a conversation the caller takes part in.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrForbidden
	}
	return conv, nil
}

func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	return s.conversations.ListForUser(ctx, userID)
}

func (s *ConversationService) Touch(ctx context.Context, conversationID string, at time.Time) error {
	return s.conversations.Touch(ctx, conversationID, at)
}
