package service

import (
	"encoding/json"
	"strings"
)

// SignalKind is the only part of a relayed signaling payload the server
// looks at.
type SignalKind int

const (
	SignalOther SignalKind = iota
	SignalOffer
	SignalAnswer
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	default:
		return "other"
	}
}

// ClassifySignal reads the session description discriminator of a WebRTC
// signaling payload. Both {"type":"offer","sdp":"..."} and the wrapped form
// {"sdp":{"type":"offer","sdp":"..."}} are recognised; ICE candidates and
// anything unparseable are SignalOther.
func ClassifySignal(data json.RawMessage) SignalKind {
	var probe struct {
		Type string          `json:"type"`
		SDP  json.RawMessage `json:"sdp"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return SignalOther
	}
	if kind := signalKindOf(probe.Type); kind != SignalOther {
		return kind
	}

	var nested struct {
		Type string `json:"type"`
	}
	if len(probe.SDP) == 0 || json.Unmarshal(probe.SDP, &nested) != nil {
		return SignalOther
	}
	return signalKindOf(nested.Type)
}

func signalKindOf(t string) SignalKind {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "offer":
		return SignalOffer
	case "answer":
		return SignalAnswer
	default:
		return SignalOther
	}
}
