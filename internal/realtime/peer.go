// Package realtime holds the in-memory state shared by every live
// connection: who is online, which rooms each connection joined, and the
// wire envelope used to reach them.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPeerClosed is returned by Peer.Send once the connection is gone or its
// outbound buffer overflowed.
var ErrPeerClosed = errors.New("peer closed")

// Peer is one live duplex session. ID is unique per connection, UserID is
// bound at handshake time and never changes.
type Peer interface {
	ID() string
	UserID() string
	// Send queues an encoded frame without blocking.
	Send(frame []byte) error
}

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a frame for event.
func Encode(event string, payload any) ([]byte, error) {
	frame, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{Type: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return frame, nil
}
