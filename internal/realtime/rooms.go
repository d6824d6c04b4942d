package realtime

import "sync"

// Rooms tracks which connections joined which multicast rooms.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Peer     // room -> peer id -> peer
	joined  map[string]map[string]struct{} // peer id -> rooms
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]Peer),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds p to room and reports whether it was not a member yet.
func (r *Rooms) Join(room string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[room] == nil {
		r.members[room] = make(map[string]Peer)
	}
	if _, ok := r.members[room][p.ID()]; ok {
		return false
	}
	r.members[room][p.ID()] = p

	if r.joined[p.ID()] == nil {
		r.joined[p.ID()] = make(map[string]struct{})
	}
	r.joined[p.ID()][room] = struct{}{}
	return true
}

// Leave removes p from room.
func (r *Rooms) Leave(room string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(room, p.ID())
}

// LeaveAll removes p from every room it joined and returns those rooms.
func (r *Rooms) LeaveAll(p Peer) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for room := range r.joined[p.ID()] {
		if r.leaveLocked(room, p.ID()) {
			left = append(left, room)
		}
	}
	delete(r.joined, p.ID())
	return left
}

func (r *Rooms) leaveLocked(room, peerID string) bool {
	members, ok := r.members[room]
	if !ok {
		return false
	}
	if _, ok := members[peerID]; !ok {
		return false
	}
	delete(members, peerID)
	if len(members) == 0 {
		delete(r.members, room)
	}
	if rooms, ok := r.joined[peerID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, peerID)
		}
	}
	return true
}

// Members returns a copy of the peers currently in room.
func (r *Rooms) Members(room string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Peer, 0, len(r.members[room]))
	for _, p := range r.members[room] {
		res = append(res, p)
	}
	return res
}

// Has reports whether the connection peerID is in room.
func (r *Rooms) Has(room, peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][peerID]
	return ok
}

// Clear empties room and returns the peers that were in it.
func (r *Rooms) Clear(room string) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.members[room]
	res := make([]Peer, 0, len(members))
	for id, p := range members {
		res = append(res, p)
		r.leaveLocked(room, id)
	}
	return res
}
