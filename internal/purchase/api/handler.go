package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bib-resale/internal/auth"
	"bib-resale/internal/bib"
	"bib-resale/internal/models"
	"bib-resale/internal/purchase"
	"bib-resale/internal/store"
	"bib-resale/internal/utils"
	"bib-resale/internal/voucher"
)

// UserDirectory resolves user profiles for display purposes.
type UserDirectory interface {
	GetUserByID(id string) (*models.User, error)
}

type Handler struct {
	Purchases     *purchase.PurchaseService
	Bibs          *bib.BibService
	Users         UserDirectory
	Vouchers      *voucher.Generator
	PDF           *voucher.PDFGenerator
	WebhookSecret string
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.BibID == "" {
		http.Error(w, "bib_id is required", http.StatusBadRequest)
		return
	}

	tx, err := h.Purchases.Purchase(r.Context(), req.BibID, buyerID, req.Provider, req.ListingToken)
	if err != nil {
		writePurchaseError(w, err)
		return
	}

	resp := models.PurchaseResponse{
		TransactionID: tx.TransactionID,
		BibID:         tx.BibID,
		Amount:        tx.Amount,
		PlatformFee:   tx.PlatformFee,
		Status:        tx.Status,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(utils.SuccessResponse("Purchase completed", resp))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	tx, err := h.Purchases.GetTransaction(txID)
	if err != nil {
		writePurchaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// ListSellerTransactions returns the authenticated seller's sale history.
// Paging via limit/offset query parameters.
func (h *Handler) ListSellerTransactions(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.Purchases.ListSellerTransactions(sellerID, limit, offset)
	if err != nil {
		writePurchaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Transactions retrieved", txs))
}

func (h *Handler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	if err := h.Purchases.RefundTransaction(r.Context(), txID); err != nil {
		writePurchaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Transaction refunded", nil))
}

// DownloadVoucher builds the transfer voucher PDF for a completed purchase.
// Only the buyer of the transaction may fetch it.
func (h *Handler) DownloadVoucher(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	tx, err := h.Purchases.GetTransaction(txID)
	if err != nil {
		writePurchaseError(w, err)
		return
	}
	if tx.BuyerID != userID {
		http.Error(w, "Only the buyer may download the voucher", http.StatusForbidden)
		return
	}
	if tx.Status != models.TxSucceeded {
		http.Error(w, "Voucher is only available for completed purchases", http.StatusConflict)
		return
	}

	b, err := h.Bibs.GetBib(tx.BibID)
	if err != nil {
		writePurchaseError(w, err)
		return
	}

	// The runner's name is decoration; a missing profile must not block the
	// download.
	var buyerName string
	if h.Users != nil {
		if u, err := h.Users.GetUserByID(tx.BuyerID); err == nil {
			buyerName = u.FullName
		}
	}

	v := voucher.TransferVoucher{
		TransactionID:      tx.TransactionID,
		BibID:              b.BibID,
		EventID:            b.EventID,
		BuyerID:            tx.BuyerID,
		BuyerName:          buyerName,
		RegistrationNumber: b.RegistrationNumber,
		IssuedAt:           tx.UpdatedAt,
	}

	qr, err := h.Vouchers.GenerateQR(v)
	if err != nil {
		http.Error(w, "Failed to generate voucher", http.StatusInternalServerError)
		return
	}
	pdf, err := h.PDF.Generate(v, qr)
	if err != nil {
		http.Error(w, "Failed to generate voucher", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=voucher-%s.pdf", tx.TransactionID))
	w.Write(pdf)
}

// StripeWebhook receives asynchronous payment outcomes from Stripe and
// reconciles the matching transaction records.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Purchases.HandleStripeWebhook(r, h.WebhookSecret); err != nil {
		var whErr *purchase.WebhookError
		if errors.As(err, &whErr) {
			http.Error(w, whErr.PublicError, whErr.StatusCode)
			return
		}
		http.Error(w, "Webhook handling failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writePurchaseError(w http.ResponseWriter, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, purchase.ErrBibUnavailable), errors.Is(err, purchase.ErrInvalidToken):
		// An invalid token is reported the same way as a sold bib, so the
		// response never confirms that a private listing exists.
		status, message = http.StatusConflict, "This bib is no longer available"
	case errors.Is(err, purchase.ErrSelfPurchase):
		status, message = http.StatusBadRequest, "You cannot buy your own bib"
	case errors.Is(err, purchase.ErrPaymentFailed):
		status, message = http.StatusPaymentRequired, "Payment could not be completed"
	default:
		status, message = http.StatusInternalServerError, "Internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(utils.ErrorResponse(message, ""))
}
