package httpserver

import (
	"encoding/json"
	"net/http"

	"carelink/internal/realtime"
	"carelink/internal/service"
)

func handlePresence(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Snapshot())
	}
}

type notificationRequest struct {
	UserID  string         `json:"userId"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// handleNotify lets other services push a one-way notification, e.g. an
// appointment or referral update, to a connected user.
func handleNotify(notifier *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.UserID == "" || req.Type == "" {
			writeError(w, http.StatusBadRequest, "userId and type are required")
			return
		}

		delivered := notifier.Push(req.UserID, req.Type, req.Payload)
		writeJSON(w, http.StatusAccepted, map[string]bool{"delivered": delivered})
	}
}
