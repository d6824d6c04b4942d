package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"carelink/internal/domain"
	"carelink/internal/service"
)

type conversationResolveRequest struct {
	WithUserID string `json:"withUserId"`
}

type conversationResponse struct {
	ID             string    `json:"id"`
	WithUserID     string    `json:"withUserId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func toConversationResponse(c *domain.Conversation, viewerID string) conversationResponse {
	return conversationResponse{
		ID:             c.ID,
		WithUserID:     c.Other(viewerID),
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}
}

func handleResolveConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		userID := CurrentUserID(r)

		conv, err := convSvc.Resolve(r.Context(), userID, req.WithUserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConversationResponse(conv, userID))
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := CurrentUserID(r)
		convs, err := convSvc.ListForUser(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		res := make([]conversationResponse, 0, len(convs))
		for _, c := range convs {
			res = append(res, toConversationResponse(c, userID))
		}
		writeJSON(w, http.StatusOK, res)
	}
}
