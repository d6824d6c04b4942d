package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"carelink/internal/realtime"
	"carelink/internal/security"
	"carelink/internal/service"
)

type Options struct {
	AllowedOrigins []string
	// StoreTimeout bounds the storage work of one inbound event.
	StoreTimeout time.Duration
	SendBuffer   int
}

// Handler upgrades authenticated requests to websocket connections and
// dispatches their events.
type Handler struct {
	hub      *realtime.Hub
	verifier security.Verifier
	messages *service.MessageService
	calls    *service.CallService
	log      *slog.Logger

	checkOrigin  func(r *http.Request) bool
	upgrader     websocket.Upgrader
	storeTimeout time.Duration
	sendBuffer   int
}

func NewHandler(
	hub *realtime.Hub,
	verifier security.Verifier,
	messages *service.MessageService,
	calls *service.CallService,
	log *slog.Logger,
	opts Options,
) *Handler {
	checkOrigin := makeCheckOrigin(opts.AllowedOrigins)
	return &Handler{
		hub:         hub,
		verifier:    verifier,
		messages:    messages,
		calls:       calls,
		log:         log,
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			CheckOrigin:  checkOrigin,
			Subprotocols: []string{"bearer"},
		},
		storeTimeout: opts.StoreTimeout,
		sendBuffer:   opts.SendBuffer,
	}
}

// normalizeOrigin lowercases origin and reduces it to scheme://host.
func normalizeOrigin(origin string) string {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if u, err := url.Parse(origin); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return origin
}

// makeCheckOrigin accepts requests without an Origin header (native
// clients), any origin when "*" is configured, and otherwise only the
// listed origins.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	_, allowAll := allowed["*"]

	return func(r *http.Request) bool {
		origin := normalizeOrigin(r.Header.Get("Origin"))
		if origin == "" || allowAll {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// requestToken finds the bearer credential of an upgrade request. Browsers
// cannot set headers on a websocket, so the subprotocol pair and the token
// query parameter are accepted too.
func requestToken(r *http.Request) (string, bool) {
	if token, ok := security.BearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if token, ok := security.BearerSubprotocol(r.Header.Get("Sec-WebSocket-Protocol")); ok {
		return token, true
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	return token, token != ""
}

// ServeHTTP authenticates before upgrading; a rejected request leaves no
// trace in presence or rooms.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	tokenStr, ok := requestToken(r)
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	userID, err := h.verifier.Verify(tokenStr)
	if err != nil {
		h.log.DebugContext(r.Context(), "websocket auth rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.DebugContext(r.Context(), "websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := newClient(conn, userID, h.sendBuffer, h.log)
	go c.writePump()

	h.hub.Connect(c)
	c.log.Info("client connected")
	defer func() {
		h.hub.Disconnect(c)
		c.Close()
		c.log.Info("client disconnected")
	}()

	ctx := context.WithoutCancel(r.Context())
	c.readPump(func(data []byte) {
		h.dispatch(ctx, c, data)
	})
}
