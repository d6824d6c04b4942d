package realtime

import (
	"log/slog"
	"time"

	"carelink/internal/observability/metrics"
)

// Hub combines the presence registry with room membership and is the only
// way events leave the server. Services never touch the maps directly.
type Hub struct {
	presence *Registry
	rooms    *Rooms
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		presence: NewRegistry(),
		rooms:    NewRooms(),
		log:      log,
	}
}

// Connect registers p as its user's active connection, tells everyone the
// user is online and hands p the current presence snapshot. Presence
// broadcasts may reach a peer out of order; their Seq tells which is newer.
func (h *Hub) Connect(p Peer) {
	replaced, seq := h.presence.Register(p)
	if replaced != nil && replaced.ID() != p.ID() {
		h.log.Info("connection replaced", "user_id", p.UserID(), "old_conn_id", replaced.ID(), "conn_id", p.ID())
	}
	metrics.ConnectionsActive.Inc()

	h.BroadcastAll(EventPresence, PresenceUpdate{UserID: p.UserID(), Online: true, Seq: seq})
	h.Deliver(p, EventPresenceSnapshot, h.presence.Snapshot())
}

// Disconnect drops p from its rooms and, unless a newer connection of the
// same user already took over, marks the user offline.
func (h *Hub) Disconnect(p Peer) {
	h.rooms.LeaveAll(p)
	metrics.ConnectionsActive.Dec()

	lastSeen, seq, ok := h.presence.Unregister(p)
	if !ok {
		h.log.Debug("stale disconnect ignored", "user_id", p.UserID(), "conn_id", p.ID())
		return
	}
	h.BroadcastAll(EventPresence, PresenceUpdate{UserID: p.UserID(), Online: false, LastSeen: &lastSeen, Seq: seq})
}

// Lookup returns the active connection of userID.
func (h *Hub) Lookup(userID string) (Peer, bool) {
	return h.presence.Lookup(userID)
}

func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.presence.Lookup(userID)
	return ok
}

func (h *Hub) Snapshot() PresenceSnapshot {
	return h.presence.Snapshot()
}

func (h *Hub) LastSeen(userID string) (time.Time, bool) {
	return h.presence.LastSeen(userID)
}

// Join adds p to room and reports whether it was newly added.
func (h *Hub) Join(room string, p Peer) bool {
	return h.rooms.Join(room, p)
}

func (h *Hub) Leave(room string, p Peer) bool {
	return h.rooms.Leave(room, p)
}

// CloseRoom removes every connection from room.
func (h *Hub) CloseRoom(room string) int {
	return len(h.rooms.Clear(room))
}

func (h *Hub) InRoom(room, peerID string) bool {
	return h.rooms.Has(room, peerID)
}

// SendTo delivers an event to userID's active connection. It reports false
// when the user is offline or the frame could not be queued.
func (h *Hub) SendTo(userID, event string, payload any) bool {
	p, ok := h.presence.Lookup(userID)
	if !ok {
		return false
	}
	return h.Deliver(p, event, payload)
}

// EmitOptions tunes a room fan-out.
type EmitOptions struct {
	// ExceptPeer is a connection id that must not receive the event.
	ExceptPeer string
	// Direct lists users whose active connection gets the event even when
	// it has not joined the room.
	Direct []string
}

// Emit sends event to every member of room and then to each Direct user's
// active connection not already reached through the room. It returns the
// number of connections the frame was queued on.
func (h *Hub) Emit(room, event string, payload any, opts EmitOptions) int {
	frame, err := Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "error", err)
		return 0
	}

	reached := make(map[string]struct{})
	for _, p := range h.rooms.Members(room) {
		if p.ID() == opts.ExceptPeer {
			continue
		}
		if h.sendFrame(p, event, frame) {
			reached[p.ID()] = struct{}{}
		}
	}
	for _, userID := range opts.Direct {
		p, ok := h.presence.Lookup(userID)
		if !ok || p.ID() == opts.ExceptPeer {
			continue
		}
		if _, done := reached[p.ID()]; done || h.rooms.Has(room, p.ID()) {
			continue
		}
		if h.sendFrame(p, event, frame) {
			reached[p.ID()] = struct{}{}
		}
	}
	return len(reached)
}

// BroadcastAll sends event to every active connection.
func (h *Hub) BroadcastAll(event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "error", err)
		return
	}
	for _, p := range h.presence.Peers() {
		h.sendFrame(p, event, frame)
	}
}

// Deliver sends event to one specific connection.
func (h *Hub) Deliver(p Peer, event string, payload any) bool {
	frame, err := Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "error", err)
		return false
	}
	return h.sendFrame(p, event, frame)
}

func (h *Hub) sendFrame(p Peer, event string, frame []byte) bool {
	if err := p.Send(frame); err != nil {
		h.log.Debug("drop frame", "event", event, "user_id", p.UserID(), "conn_id", p.ID(), "error", err)
		return false
	}
	metrics.OutboundEventsTotal.WithLabelValues(event).Inc()
	return true
}
