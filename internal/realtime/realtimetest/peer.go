// Package realtimetest provides an in-memory realtime.Peer that records the
// frames it is sent.
package realtimetest

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"carelink/internal/realtime"
)

type Peer struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []realtime.Envelope
	closed bool
}

var _ realtime.Peer = (*Peer)(nil)

func NewPeer(userID string) *Peer {
	return &Peer{id: uuid.NewString(), userID: userID}
}

func (p *Peer) ID() string     { return p.id }
func (p *Peer) UserID() string { return p.userID }

func (p *Peer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return realtime.ErrPeerClosed
	}
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	p.frames = append(p.frames, env)
	return nil
}

// Close makes every later Send fail.
func (p *Peer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Events returns the recorded frames of type event, in arrival order.
func (p *Peer) Events(event string) []realtime.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []realtime.Envelope
	for _, env := range p.frames {
		if env.Type == event {
			res = append(res, env)
		}
	}
	return res
}

// Count is len(Events(event)).
func (p *Peer) Count(event string) int {
	return len(p.Events(event))
}

// Types lists every recorded event type in arrival order.
func (p *Peer) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]string, len(p.frames))
	for i, env := range p.frames {
		res[i] = env.Type
	}
	return res
}

// Reset forgets recorded frames.
func (p *Peer) Reset() {
	p.mu.Lock()
	p.frames = nil
	p.mu.Unlock()
}

// Decode unmarshals the payload of env into v.
func Decode[T any](env realtime.Envelope) (T, error) {
	var v T
	err := json.Unmarshal(env.Payload, &v)
	return v, err
}

// Last decodes the payload of the most recent event of that type. ok is
// false when none was recorded.
func Last[T any](p *Peer, event string) (v T, ok bool) {
	events := p.Events(event)
	if len(events) == 0 {
		return v, false
	}
	v, err := Decode[T](events[len(events)-1])
	return v, err == nil
}
