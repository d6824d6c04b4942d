package domain

import (
	"slices"
	"time"
)

// Conversation is a 1:1 channel between two users. ParticipantA always sorts
// before ParticipantB, so a pair maps to exactly one row.
type Conversation struct {
	ID             string    `db:"id" json:"id"`
	ParticipantA   string    `db:"participant_a" json:"participantA"`
	ParticipantB   string    `db:"participant_b" json:"participantB"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastActivityAt time.Time `db:"last_activity_at" json:"lastActivityAt"`
}

// CanonicalPair orders two user ids the way they are stored.
func CanonicalPair(a, b string) (string, string) {
	pair := []string{a, b}
	slices.Sort(pair)
	return pair[0], pair[1]
}

// HasParticipant reports whether userID is one of the two members.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// MessageKind separates typed chat messages from server-synthesized ones.
type MessageKind string

const (
	MessageKindUser   MessageKind = "user"
	MessageKindSystem MessageKind = "system"
)

// Message represents a single chat message.
type Message struct {
	ID                 int64       `db:"id"`
	ConversationID     string      `db:"conversation_id"`
	SenderID           string      `db:"sender_id"`
	RecipientID        string      `db:"recipient_id"`
	Kind               MessageKind `db:"kind"`
	Body               string      `db:"body"` // encrypted at rest
	MediaURL           *string     `db:"media_url"`
	MediaType          *string     `db:"media_type"`
	CreatedAt          time.Time   `db:"created_at"`
	SeenAt             *time.Time  `db:"seen_at"`
	EditedAt           *time.Time  `db:"edited_at"`
	DeletedForEveryone bool        `db:"deleted_for_everyone"`
	DeletedAt          *time.Time  `db:"deleted_at"`
}
