package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"bib-resale/internal/models"
	"bib-resale/internal/users"
	"bib-resale/internal/utils"
)

type Handler struct {
	Users *users.UserService
}

// Sync receives "user created" notifications from the identity provider.
// The gateway in front of the service has already verified the webhook
// signature.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req models.UserSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Users.SyncUser(req)
	if err != nil {
		if errors.Is(err, users.ErrInvalidUser) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to sync user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("User synced", user))
}
