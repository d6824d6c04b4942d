package realtime_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink/internal/observability/logging"
	"carelink/internal/realtime"
	"carelink/internal/realtime/realtimetest"
)

func TestRegistry_StaleUnregisterKeepsUserOnline(t *testing.T) {
	reg := realtime.NewRegistry()
	c1 := realtimetest.NewPeer("u")
	c2 := realtimetest.NewPeer("u")

	replaced, seq1 := reg.Register(c1)
	assert.Nil(t, replaced)
	replaced, seq2 := reg.Register(c2)
	assert.Equal(t, c1, replaced)
	assert.Greater(t, seq2, seq1)

	_, _, ok := reg.Unregister(c1)
	assert.False(t, ok, "close of a replaced connection must be ignored")

	got, online := reg.Lookup("u")
	require.True(t, online)
	assert.Equal(t, c2.ID(), got.ID())
	_, seen := reg.LastSeen("u")
	assert.False(t, seen)

	lastSeen, seq3, ok := reg.Unregister(c2)
	require.True(t, ok)
	assert.False(t, lastSeen.IsZero())
	assert.Greater(t, seq3, seq2)

	_, online = reg.Lookup("u")
	assert.False(t, online)
	seenAt, seen := reg.LastSeen("u")
	assert.True(t, seen)
	assert.Equal(t, lastSeen, seenAt)
}

func TestRegistry_OnlineAndLastSeenAreExclusive(t *testing.T) {
	reg := realtime.NewRegistry()
	c1 := realtimetest.NewPeer("u")
	reg.Register(c1)
	reg.Unregister(c1)

	snap := reg.Snapshot()
	assert.Empty(t, snap.Online)
	assert.Contains(t, snap.LastSeen, "u")

	reg.Register(realtimetest.NewPeer("u"))
	snap = reg.Snapshot()
	assert.Equal(t, []string{"u"}, snap.Online)
	assert.NotContains(t, snap.LastSeen, "u")
}

func TestRegistry_ConcurrentReconnects(t *testing.T) {
	reg := realtime.NewRegistry()
	var wg sync.WaitGroup
	final := make([]*realtimetest.Peer, 50)
	for i := range final {
		old := realtimetest.NewPeer("u")
		final[i] = realtimetest.NewPeer("u")
		reg.Register(old)
		wg.Add(2)
		go func() { defer wg.Done(); reg.Unregister(old) }()
		go func(p *realtimetest.Peer) { defer wg.Done(); reg.Register(p) }(final[i])
	}
	wg.Wait()

	// final[49] registers after every old handle, and final handles are
	// never unregistered.
	_, online := reg.Lookup("u")
	assert.True(t, online)
}

func TestHub_ConnectBroadcastsAndSnapshots(t *testing.T) {
	hub := realtime.NewHub(logging.Discard())
	alice := realtimetest.NewPeer("u1")
	bob := realtimetest.NewPeer("u2")

	hub.Connect(alice)
	hub.Connect(bob)

	snap, ok := realtimetest.Last[realtime.PresenceSnapshot](bob, realtime.EventPresenceSnapshot)
	require.True(t, ok)
	assert.Equal(t, []string{"u1", "u2"}, snap.Online)
	assert.Equal(t, 1, bob.Count(realtime.EventPresenceSnapshot))
	assert.Equal(t, 1, alice.Count(realtime.EventPresenceSnapshot))

	update, ok := realtimetest.Last[realtime.PresenceUpdate](alice, realtime.EventPresence)
	require.True(t, ok)
	assert.Equal(t, "u2", update.UserID)
	assert.True(t, update.Online)
	assert.Nil(t, update.LastSeen)

	hub.Disconnect(bob)
	update, ok = realtimetest.Last[realtime.PresenceUpdate](alice, realtime.EventPresence)
	require.True(t, ok)
	assert.Equal(t, "u2", update.UserID)
	assert.False(t, update.Online)
	assert.NotNil(t, update.LastSeen)
}

func TestHub_PresenceUpdatesCarryIncreasingSeq(t *testing.T) {
	hub := realtime.NewHub(logging.Discard())
	watcher := realtimetest.NewPeer("w")
	hub.Connect(watcher)
	watcher.Reset()

	for i := 0; i < 3; i++ {
		p := realtimetest.NewPeer("u")
		hub.Connect(p)
		hub.Disconnect(p)
	}

	events := watcher.Events(realtime.EventPresence)
	require.Len(t, events, 6)
	var last uint64
	for i, env := range events {
		update, err := realtimetest.Decode[realtime.PresenceUpdate](env)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 0, update.Online)
		assert.Greater(t, update.Seq, last)
		last = update.Seq
	}
}

func TestHub_StaleDisconnectDoesNotBroadcastOffline(t *testing.T) {
	hub := realtime.NewHub(logging.Discard())
	watcher := realtimetest.NewPeer("w")
	old := realtimetest.NewPeer("u")
	fresh := realtimetest.NewPeer("u")

	hub.Connect(watcher)
	hub.Connect(old)
	hub.Connect(fresh)
	watcher.Reset()

	hub.Disconnect(old)
	assert.Zero(t, watcher.Count(realtime.EventPresence))
	assert.True(t, hub.IsOnline("u"))
}

func TestHub_EmitFallsBackToDirectConnections(t *testing.T) {
	hub := realtime.NewHub(logging.Discard())
	alice := realtimetest.NewPeer("u1")
	bob := realtimetest.NewPeer("u2")
	carol := realtimetest.NewPeer("u3")
	for _, p := range []*realtimetest.Peer{alice, bob, carol} {
		hub.Connect(p)
	}
	room := realtime.ConversationRoom("c1")
	hub.Join(room, alice)

	t.Run("RoomAndDirectWithoutDuplicates", func(t *testing.T) {
		n := hub.Emit(room, realtime.EventMessage, map[string]string{"text": "hi"}, realtime.EmitOptions{
			Direct: []string{"u1", "u2", "offline"},
		})
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, alice.Count(realtime.EventMessage))
		assert.Equal(t, 1, bob.Count(realtime.EventMessage))
		assert.Zero(t, carol.Count(realtime.EventMessage))
	})

	t.Run("ExceptPeer", func(t *testing.T) {
		hub.Join(room, bob)
		n := hub.Emit(room, realtime.EventTyping, map[string]bool{"typing": true}, realtime.EmitOptions{
			ExceptPeer: alice.ID(),
			Direct:     []string{"u1"},
		})
		assert.Equal(t, 1, n)
		assert.Zero(t, alice.Count(realtime.EventTyping))
		assert.Equal(t, 1, bob.Count(realtime.EventTyping))
	})

	t.Run("DisconnectLeavesRooms", func(t *testing.T) {
		hub.Disconnect(bob)
		assert.False(t, hub.InRoom(room, bob.ID()))
		assert.True(t, hub.InRoom(room, alice.ID()))
	})
}

func TestRooms(t *testing.T) {
	rooms := realtime.NewRooms()
	p := realtimetest.NewPeer("u1")

	assert.True(t, rooms.Join("a", p))
	assert.False(t, rooms.Join("a", p))
	assert.True(t, rooms.Join("b", p))
	assert.Len(t, rooms.Members("a"), 1)

	assert.True(t, rooms.Leave("a", p))
	assert.False(t, rooms.Leave("a", p))
	assert.Empty(t, rooms.Members("a"))

	assert.ElementsMatch(t, []string{"b"}, rooms.LeaveAll(p))
	assert.False(t, rooms.Has("b", p.ID()))
}
