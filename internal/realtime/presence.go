package realtime

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Registry maps each online user to its active connection and remembers
// when offline users were last seen. A user id is never in both maps.
//
// State is striped by user id, so Register and Unregister for one user are
// linearizable while different users do not contend. Every change is
// stamped with a sequence number taken under the shard lock, so the numbers
// of one user grow in the order its changes were applied.
type Registry struct {
	shards [ShardCount]*presenceShard
	seq    atomic.Uint64
	now    func() time.Time
}

type presenceShard struct {
	mu       sync.Mutex
	online   map[string]Peer
	lastSeen map[string]time.Time
}

func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i] = &presenceShard{
			online:   make(map[string]Peer),
			lastSeen: make(map[string]time.Time),
		}
	}
	return r
}

func (r *Registry) shard(userID string) *presenceShard {
	return r.shards[ShardIndex(userID)]
}

// Register makes p the active connection of its user. The previous handle,
// if any, is returned; it stays open but no longer receives direct traffic.
func (r *Registry) Register(p Peer) (replaced Peer, seq uint64) {
	s := r.shard(p.UserID())
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced = s.online[p.UserID()]
	s.online[p.UserID()] = p
	delete(s.lastSeen, p.UserID())
	return replaced, r.seq.Add(1)
}

// Unregister takes p's user offline, but only while p is still the active
// handle. A close from a connection that was already replaced is ignored.
func (r *Registry) Unregister(p Peer) (lastSeen time.Time, seq uint64, ok bool) {
	s := r.shard(p.UserID())
	s.mu.Lock()
	defer s.mu.Unlock()

	current, online := s.online[p.UserID()]
	if !online || current.ID() != p.ID() {
		return time.Time{}, 0, false
	}
	lastSeen = r.now().UTC()
	delete(s.online, p.UserID())
	s.lastSeen[p.UserID()] = lastSeen
	return lastSeen, r.seq.Add(1), true
}

// Lookup returns the active connection of userID.
func (r *Registry) Lookup(userID string) (Peer, bool) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.online[userID]
	return p, ok
}

// LastSeen returns when userID disconnected, if they are offline and were
// seen since the process started.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSeen[userID]
	return t, ok
}

// Snapshot lists online users (sorted) and last-seen times of offline ones.
func (r *Registry) Snapshot() PresenceSnapshot {
	snap := PresenceSnapshot{
		Online:   []string{},
		LastSeen: make(map[string]time.Time),
	}
	for _, s := range r.shards {
		s.mu.Lock()
		for uid := range s.online {
			snap.Online = append(snap.Online, uid)
		}
		for uid, t := range s.lastSeen {
			snap.LastSeen[uid] = t
		}
		s.mu.Unlock()
	}
	slices.Sort(snap.Online)
	return snap
}

// Peers returns every active connection.
func (r *Registry) Peers() []Peer {
	var res []Peer
	for _, s := range r.shards {
		s.mu.Lock()
		for _, p := range s.online {
			res = append(res, p)
		}
		s.mu.Unlock()
	}
	return res
}
