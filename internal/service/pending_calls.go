package service

import (
	"sync"
	"sync/atomic"
	"time"

	"carelink/internal/realtime"
)

// PendingCall is an offer that has not been answered or ended yet.
type PendingCall struct {
	ConversationID string
	CallerID       string
	CalleeID       string
	StartedAt      time.Time

	seq uint64
}

// pendingCalls holds at most one PendingCall per call room. Start and clear
// for the same room are serialized by the room's shard lock.
type pendingCalls struct {
	shards [realtime.ShardCount]pendingShard
	seq    atomic.Uint64
}

type pendingShard struct {
	mu     sync.Mutex
	calls  map[string]PendingCall
	timers map[string]*time.Timer
}

func newPendingCalls() *pendingCalls {
	t := &pendingCalls{}
	for i := range t.shards {
		t.shards[i].calls = make(map[string]PendingCall)
		t.shards[i].timers = make(map[string]*time.Timer)
	}
	return t
}

func (t *pendingCalls) shard(room string) *pendingShard {
	return &t.shards[realtime.ShardIndex(room)]
}

// start stores call for room, replacing any previous one. When ringTimeout
// is positive, onExpire runs once it elapses unless the call is cleared or
// replaced first.
func (t *pendingCalls) start(room string, call PendingCall, ringTimeout time.Duration, onExpire func(room string, seq uint64)) (replaced PendingCall, hadPrevious bool) {
	call.seq = t.seq.Add(1)

	s := t.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced, hadPrevious = s.calls[room]
	if timer, ok := s.timers[room]; ok {
		timer.Stop()
		delete(s.timers, room)
	}
	s.calls[room] = call
	if ringTimeout > 0 && onExpire != nil {
		seq := call.seq
		s.timers[room] = time.AfterFunc(ringTimeout, func() { onExpire(room, seq) })
	}
	return replaced, hadPrevious
}

// clear removes the pending call of room, if any.
func (t *pendingCalls) clear(room string) (PendingCall, bool) {
	s := t.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(room)
}

// expire removes the pending call of room only if it is still the call
// identified by seq.
func (t *pendingCalls) expire(room string, seq uint64) (PendingCall, bool) {
	s := t.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[room]
	if !ok || call.seq != seq {
		return PendingCall{}, false
	}
	return s.removeLocked(room)
}

func (t *pendingCalls) get(room string) (PendingCall, bool) {
	s := t.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[room]
	return call, ok
}

func (t *pendingCalls) count() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.calls)
		s.mu.Unlock()
	}
	return n
}

func (s *pendingShard) removeLocked(room string) (PendingCall, bool) {
	call, ok := s.calls[room]
	if !ok {
		return PendingCall{}, false
	}
	delete(s.calls, room)
	if timer, ok := s.timers[room]; ok {
		timer.Stop()
		delete(s.timers, room)
	}
	return call, true
}
