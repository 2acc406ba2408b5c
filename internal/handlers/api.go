package handlers

import (
	"encoding/json"
	"net/http"

	"card-arena/internal/duel"
	"card-arena/internal/matchmaking"
	"card-arena/internal/middleware"
	"card-arena/internal/notify"

	"github.com/gorilla/mux"
)

// APIHandler serves the thin REST surface other backend services use.
type APIHandler struct {
	router *notify.Router
	queue  *matchmaking.Queue
	duels  *duel.Manager
}

func NewAPIHandler(router *notify.Router, queue *matchmaking.Queue, duels *duel.Manager) *APIHandler {
	return &APIHandler{router: router, queue: queue, duels: duels}
}

type NotificationRequest struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GetPresence reports whether a user holds a connection on this instance.
func (h *APIHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"online": h.router.IsOnline(userID),
	})
}

// PostNotification pushes a one-shot notification to a user.
func (h *APIHandler) PostNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "userId and message are required")
		return
	}
	if req.Type == "" {
		req.Type = "info"
	}

	delivered := h.router.Notify(req.UserID, req.Message, req.Type, req.RequestID)
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"delivered": delivered})
}

// GetMatchmakingStatus reports the caller's queue and match state.
func (h *APIHandler) GetMatchmakingStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{
		"inQueue": h.queue.Contains(identity.UserID),
		"inMatch": h.duels.InMatch(identity.UserID),
	})
}
