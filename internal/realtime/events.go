package realtime

import (
	"encoding/json"
	"time"
)

// Outbound event names.
const (
	EventPresenceSnapshot   = "presence_snapshot"
	EventPresence           = "presence"
	EventConversationJoined = "conversation_joined"
	EventMessage            = "message"
	EventMessageEdited      = "message_edited"
	EventMessageDeleted     = "message_deleted"
	EventSeenUpdate         = "seen_update"
	EventTyping             = "typing"
	EventCallPeerJoined     = "call_peer_joined"
	EventCallSignal         = "call_signal"
	EventCallEnded          = "call_ended"
	EventIncomingCall       = "incoming_call"
	EventCallMissed         = "call_missed"
	EventNotification       = "notification"
	EventError              = "error"
)

// ConversationRoom is the broadcast room of a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// CallRoom is the signaling room of a conversation; there is exactly one
// per conversation.
func CallRoom(conversationID string) string {
	return "call:" + conversationID
}

type PresenceSnapshot struct {
	Online   []string             `json:"online"`
	LastSeen map[string]time.Time `json:"lastSeen"`
}

// PresenceUpdate reports a user going online or offline. Seq grows with
// every change of the same user; clients drop updates older than the last
// one they applied.
type PresenceUpdate struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
	Seq      uint64     `json:"seq"`
}

type ConversationJoined struct {
	ConversationID string `json:"conversationId"`
	WithUserID     string `json:"withUserId"`
}

type MessagePayload struct {
	ID                 int64      `json:"id"`
	ConversationID     string     `json:"conversationId"`
	FromUserID         string     `json:"fromUserId"`
	ToUserID           string     `json:"toUserId"`
	Kind               string     `json:"kind"`
	Text               string     `json:"text"`
	MediaURL           *string    `json:"mediaUrl"`
	MediaType          *string    `json:"mediaType"`
	CreatedAt          time.Time  `json:"createdAt"`
	SeenAt             *time.Time `json:"seenAt"`
	EditedAt           *time.Time `json:"editedAt"`
	DeletedForEveryone bool       `json:"deletedForEveryone"`
}

type MessageEdited struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	EditedAt       time.Time `json:"editedAt"`
}

type MessageDeleted struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	Mode           string    `json:"mode"`
	DeletedAt      time.Time `json:"deletedAt"`
}

type SeenUpdate struct {
	ConversationID string    `json:"conversationId"`
	SeenAt         time.Time `json:"seenAt"`
	SeenBy         string    `json:"seenBy"`
}

type TypingUpdate struct {
	ConversationID string `json:"conversationId"`
	FromUserID     string `json:"fromUserId"`
	ToUserID       string `json:"toUserId"`
	Typing         bool   `json:"typing"`
}

type CallPeerJoined struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type CallSignal struct {
	ConversationID string          `json:"conversationId"`
	FromUserID     string          `json:"fromUserId"`
	Data           json.RawMessage `json:"data"`
}

type CallEnded struct {
	ConversationID string `json:"conversationId"`
	ByUserID       string `json:"byUserId"`
	Reason         string `json:"reason,omitempty"`
}

type IncomingCall struct {
	FromUserID     string `json:"fromUserId"`
	ConversationID string `json:"conversationId"`
}

type CallMissed struct {
	FromUserID     string    `json:"fromUserId"`
	ConversationID string    `json:"conversationId"`
	At             time.Time `json:"at"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
