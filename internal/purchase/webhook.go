package purchase

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"bib-resale/internal/models"
)

// WebhookError carries both a client-safe message and the detailed internal
// one, so handlers never leak internals to the provider.
type WebhookError struct {
	StatusCode    int
	PublicError   string
	InternalError string
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook reconciles asynchronous provider outcomes with the
// transaction archive. Synchronous purchases already settle themselves; the
// webhook catches failures and refunds reported after the fact.
func (s *PurchaseService) HandleStripeWebhook(r *http.Request, webhookSecret string) error {
	if webhookSecret == "" {
		return &WebhookError{
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to read webhook payload: %v", err),
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("signature verification failed: %v", err),
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("processing Stripe event %s", event.Type))

	switch event.Type {
	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("failed to unmarshal payment intent: %v", err),
			}
		}
		txID, ok := intent.Metadata["transaction_id"]
		if !ok {
			return &WebhookError{
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid payment intent data",
				InternalError: "payment intent has no transaction_id in metadata",
			}
		}
		if err := s.Store.UpdateTransactionStatus(txID, models.TxFailed, intent.ID); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment event",
				InternalError: fmt.Sprintf("failed to mark transaction %s failed: %v", txID, err),
			}
		}
		s.Logger.LogPurchase("WEBHOOK_FAILED", txID, "transaction failed via provider webhook")

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("failed to unmarshal charge: %v", err),
			}
		}
		txID, ok := charge.Metadata["transaction_id"]
		if !ok {
			s.Logger.Warn("WEBHOOK", "refunded charge has no transaction_id in metadata")
			return nil
		}
		if err := s.Store.UpdateTransactionStatus(txID, models.TxRefunded, ""); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process refund event",
				InternalError: fmt.Sprintf("failed to mark transaction %s refunded: %v", txID, err),
			}
		}
		s.Logger.LogPurchase("WEBHOOK_REFUNDED", txID, "transaction refunded via provider webhook")

	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("unhandled event type: %s", event.Type))
	}

	return nil
}
