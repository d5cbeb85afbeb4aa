package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bib-resale/internal/auth"
	"bib-resale/internal/bib"
	"bib-resale/internal/models"
	"bib-resale/internal/sse"
	"bib-resale/internal/store"
	"bib-resale/internal/utils"
)

type Handler struct {
	BibService *bib.BibService
	Emitter    *sse.ListingEventEmitter
}

func (h *Handler) CreateBib(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req models.BibRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.EventID == "" || req.RegistrationNumber == "" {
		http.Error(w, "event_id and registration_number are required", http.StatusBadRequest)
		return
	}

	created, err := h.BibService.RegisterBib(req, sellerID)
	if err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(utils.SuccessResponse("Bib registered", created))
}

func (h *Handler) RequestListing(w http.ResponseWriter, r *http.Request) {
	bibID := chi.URLParam(r, "bibId")

	var req models.ListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.BibService.RequestListing(bibID, req)
	if err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Listing terms recorded", updated))
}

func (h *Handler) ApproveValidation(w http.ResponseWriter, r *http.Request) {
	bibID := chi.URLParam(r, "bibId")

	listed, err := h.BibService.ApproveValidation(bibID)
	if err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Bib listed", listed))
}

func (h *Handler) RejectValidation(w http.ResponseWriter, r *http.Request) {
	bibID := chi.URLParam(r, "bibId")

	var req models.RejectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.BibService.RejectValidation(bibID, req.Reason); err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Bib rejected", nil))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	bibID := chi.URLParam(r, "bibId")
	sellerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := h.BibService.Withdraw(bibID, sellerID); err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Bib withdrawn", nil))
}

func (h *Handler) GetBib(w http.ResponseWriter, r *http.Request) {
	bibID := chi.URLParam(r, "bibId")

	found, err := h.BibService.GetBib(bibID)
	if err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(found)
}

// GetPrivateListing resolves a private listing through its unguessable token.
func (h *Handler) GetPrivateListing(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	found, err := h.BibService.GetBibByToken(token)
	if err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(found)
}

func (h *Handler) ListEventBibs(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	listedOnly := r.URL.Query().Get("all") != "true"

	bibs, err := h.BibService.ListBibsByEvent(eventID, listedOnly)
	if err != nil {
		writeBibError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bibs)
}

// StreamListings pushes newly listed bibs for an event over SSE. Waitlisted
// buyers keep this open to hear about availability immediately.
func (h *Handler) StreamListings(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	notices := h.Emitter.SubscribeToEvent(r.Context(), eventID)
	for notice := range notices {
		payload, err := json.Marshal(notice)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: listing\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}

func writeBibError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Bib not found", http.StatusNotFound)
	case errors.Is(err, bib.ErrInvalidPrice):
		http.Error(w, "Listing price must be positive", http.StatusBadRequest)
	case errors.Is(err, bib.ErrDuplicateRegistration):
		http.Error(w, "Registration number already registered for this event", http.StatusConflict)
	case errors.Is(err, bib.ErrNotSeller):
		http.Error(w, "Only the seller may do this", http.StatusForbidden)
	case errors.Is(err, bib.ErrInvalidTransition), errors.Is(err, bib.ErrNotListed):
		http.Error(w, "Bib is not in a valid state for this action", http.StatusConflict)
	case errors.Is(err, bib.ErrConcurrentModification):
		http.Error(w, "Bib was modified concurrently, please retry", http.StatusConflict)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
