package api

import (
	"encoding/json"
	"net/http"

	"bib-resale/internal/auth"
	"bib-resale/internal/models"
	"bib-resale/internal/utils"
	"bib-resale/internal/waitlist"
)

type Handler struct {
	Waitlist *waitlist.WaitlistService
}

// Join registers the caller on an event's waitlist. Joining twice is a
// no-op and returns the existing entry.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req models.WaitlistJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.EventID == "" {
		http.Error(w, "event_id is required", http.StatusBadRequest)
		return
	}

	entry, err := h.Waitlist.Join(req.EventID, userID, req.Options)
	if err != nil {
		http.Error(w, "Failed to join waitlist", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Joined waitlist", entry))
}
