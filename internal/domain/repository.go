package domain

import (
	"context"
	"time"
)

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// Create inserts c. A second row for the same participant pair fails
	// with ErrConflict.
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	GetByParticipants(ctx context.Context, participantA, participantB string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListForConversation returns up to limit of the newest messages visible
	// to viewerID, oldest first.
	ListForConversation(ctx context.Context, conversationID, viewerID string, limit int) ([]*Message, error)
	// MarkSeen stamps every unseen message addressed to recipientID and
	// returns the number of rows changed.
	MarkSeen(ctx context.Context, conversationID, recipientID string, at time.Time) (int64, error)
	UpdateBody(ctx context.Context, id int64, body string, at time.Time) error
	SoftDeleteForEveryone(ctx context.Context, id int64, at time.Time) error
	HideForUser(ctx context.Context, id int64, userID string, at time.Time) error
}
