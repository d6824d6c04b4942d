package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carelink/internal/realtime"
	"carelink/internal/realtime/realtimetest"
	"carelink/internal/service"
)

var (
	offer     = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer    = json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	candidate = json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0"}`)
)

func TestClassifySignal(t *testing.T) {
	tests := []struct {
		name string
		data string
		want service.SignalKind
	}{
		{"TopLevelOffer", `{"type":"offer","sdp":"v=0"}`, service.SignalOffer},
		{"TopLevelAnswer", `{"type":"answer","sdp":"v=0"}`, service.SignalAnswer},
		{"WrappedOffer", `{"sdp":{"type":"offer","sdp":"v=0"}}`, service.SignalOffer},
		{"WrappedAnswer", `{"sdp":{"type":"answer","sdp":"v=0"}}`, service.SignalAnswer},
		{"MixedCase", `{"type":"Offer"}`, service.SignalOffer},
		{"Candidate", `{"candidate":"candidate:1","sdpMid":"0"}`, service.SignalOther},
		{"Renegotiate", `{"type":"pranswer"}`, service.SignalOther},
		{"NotObject", `"offer"`, service.SignalOther},
		{"Garbage", `{`, service.SignalOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.ClassifySignal(json.RawMessage(tt.data)))
		})
	}
}

func systemTexts(p *realtimetest.Peer) []string {
	var res []string
	for _, env := range p.Events(realtime.EventMessage) {
		m, err := realtimetest.Decode[realtime.MessagePayload](env)
		if err == nil && m.Kind == "system" {
			res = append(res, m.Text)
		}
	}
	return res
}

func TestCallService_Join(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Join(ctx, alice, "u2")
	require.NoError(t, err)
	_, err = e.calls.Join(ctx, bob, "u1")
	require.NoError(t, err)

	got, ok := realtimetest.Last[realtime.CallPeerJoined](alice, realtime.EventCallPeerJoined)
	require.True(t, ok)
	assert.Equal(t, "u2", got.UserID)
	assert.Zero(t, bob.Count(realtime.EventCallPeerJoined))

	_, err = e.calls.Join(ctx, bob, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Count(realtime.EventCallPeerJoined), "rejoin is not announced")
}

func TestCallService_RelaysEverySignal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")
	bob := e.connect("u2")

	for _, data := range []json.RawMessage{offer, candidate, answer} {
		_, err := e.calls.Signal(ctx, alice, "u2", data)
		require.NoError(t, err)
	}

	signals := bob.Events(realtime.EventCallSignal)
	require.Len(t, signals, 3)
	relayed, err := realtimetest.Decode[realtime.CallSignal](signals[1])
	require.NoError(t, err)
	assert.Equal(t, "u1", relayed.FromUserID)
	assert.JSONEq(t, string(candidate), string(relayed.Data))
	assert.Zero(t, alice.Count(realtime.EventCallSignal))

	_, err = e.calls.Signal(ctx, alice, "u2", nil)
	assert.Error(t, err)
}

func TestCallService_OfferRings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")
	bob := e.connect("u2")

	kind, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	assert.Equal(t, service.SignalOffer, kind)

	incoming, ok := realtimetest.Last[realtime.IncomingCall](bob, realtime.EventIncomingCall)
	require.True(t, ok)
	assert.Equal(t, "u1", incoming.FromUserID)

	call, ok := e.calls.Pending(incoming.ConversationID)
	require.True(t, ok)
	assert.Equal(t, "u1", call.CallerID)
	assert.Equal(t, "u2", call.CalleeID)

	assert.Equal(t, []string{service.IncomingCallText}, systemTexts(alice))
	assert.Equal(t, []string{service.IncomingCallText}, systemTexts(bob))
}

func TestCallService_SecondOfferReplaces(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	_, err = e.calls.Signal(ctx, bob, "u1", offer)
	require.NoError(t, err)

	assert.Equal(t, 1, e.calls.PendingCount())
	conv, err := e.conversations.Resolve(ctx, "u1", "u2")
	require.NoError(t, err)
	call, ok := e.calls.Pending(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "u2", call.CallerID)
	assert.Equal(t, "u1", call.CalleeID)
}

func TestCallService_MissedCall(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	require.NoError(t, e.calls.End(ctx, alice, "u2"))

	assert.Equal(t, []string{service.IncomingCallText, service.MissedCallText}, systemTexts(alice))
	assert.Equal(t, []string{service.IncomingCallText, service.MissedCallText}, systemTexts(bob))

	missed := bob.Events(realtime.EventCallMissed)
	require.Len(t, missed, 1)
	got, err := realtimetest.Decode[realtime.CallMissed](missed[0])
	require.NoError(t, err)
	assert.Equal(t, "u1", got.FromUserID)
	assert.Zero(t, alice.Count(realtime.EventCallMissed))

	ended, ok := realtimetest.Last[realtime.CallEnded](bob, realtime.EventCallEnded)
	require.True(t, ok)
	assert.Equal(t, "u1", ended.ByUserID)
	assert.Empty(t, ended.Reason)
	assert.Zero(t, e.calls.PendingCount())

	// The call is over; a second end only reports it.
	require.NoError(t, e.calls.End(ctx, bob, "u1"))
	assert.Equal(t, 1, bob.Count(realtime.EventCallMissed))
	assert.Equal(t, 2, alice.Count(realtime.EventCallEnded))
}

func TestCallService_AnsweredCall(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	_, err = e.calls.Signal(ctx, bob, "u1", answer)
	require.NoError(t, err)
	assert.Zero(t, e.calls.PendingCount())

	require.NoError(t, e.calls.End(ctx, bob, "u1"))

	assert.Equal(t, []string{service.IncomingCallText}, systemTexts(alice))
	assert.Zero(t, bob.Count(realtime.EventCallMissed))
	assert.Equal(t, 1, alice.Count(realtime.EventCallEnded))
}

// autoAnswerPeer answers the first relayed signal from inside Send, before
// the relay that carried it has returned.
type autoAnswerPeer struct {
	*realtimetest.Peer
	once   sync.Once
	answer func()
}

func (p *autoAnswerPeer) Send(frame []byte) error {
	if err := p.Peer.Send(frame); err != nil {
		return err
	}
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err == nil && env.Type == realtime.EventCallSignal {
		p.once.Do(p.answer)
	}
	return nil
}

func TestCallService_AnswerDuringOfferRelay(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.connect("u1")

	bob := &autoAnswerPeer{Peer: realtimetest.NewPeer("u2")}
	var answerErr error
	bob.answer = func() {
		_, answerErr = e.calls.Signal(ctx, bob, "u1", answer)
	}
	e.hub.Connect(bob)
	bob.Reset()

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	require.NoError(t, answerErr)
	assert.Equal(t, 1, alice.Count(realtime.EventCallSignal))
	assert.Zero(t, e.calls.PendingCount())

	require.NoError(t, e.calls.End(ctx, alice, "u2"))
	assert.Equal(t, []string{service.IncomingCallText}, systemTexts(alice))
	assert.Zero(t, bob.Count(realtime.EventCallMissed))
}

func TestCallService_StorageFailureStillClearsPending(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMessageRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("database is locked"))
	e := newEnv(t, withMessageRepo(repo))
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls.PendingCount())
	assert.Equal(t, 1, bob.Count(realtime.EventIncomingCall))

	require.NoError(t, e.calls.End(ctx, alice, "u2"))
	assert.Zero(t, e.calls.PendingCount())
	assert.Equal(t, 1, bob.Count(realtime.EventCallMissed))
	assert.Zero(t, bob.Count(realtime.EventMessage))
	repo.AssertNumberOfCalls(t, "Create", 2)
}

func TestCallService_RingTimeout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, withRingTimeout(50*time.Millisecond))
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bob.Count(realtime.EventCallMissed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, e.calls.PendingCount())
	ended, ok := realtimetest.Last[realtime.CallEnded](alice, realtime.EventCallEnded)
	require.True(t, ok)
	assert.Equal(t, service.EndReasonTimeout, ended.Reason)
	assert.Empty(t, ended.ByUserID)
	assert.Eventually(t, func() bool {
		return len(systemTexts(bob)) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCallService_AnswerStopsRingTimer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, withRingTimeout(30*time.Millisecond))
	alice := e.connect("u1")
	bob := e.connect("u2")

	_, err := e.calls.Signal(ctx, alice, "u2", offer)
	require.NoError(t, err)
	_, err = e.calls.Signal(ctx, bob, "u1", answer)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, bob.Count(realtime.EventCallMissed))
	assert.Zero(t, alice.Count(realtime.EventCallEnded))
}
