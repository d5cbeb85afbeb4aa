package purchase_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"bib-resale/internal/models"
	"bib-resale/internal/purchase"
)

const testWebhookSecret = "whsec_test_secret"

// signedWebhookRequest builds a request carrying a valid Stripe-Signature
// header for the payload.
func signedWebhookRequest(payload []byte) *http.Request {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, signature))
	return req
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	err := f.svc.HandleStripeWebhook(req, testWebhookSecret)

	var whErr *purchase.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
}

func TestWebhookRequiresConfiguredSecret(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))

	err := f.svc.HandleStripeWebhook(req, "")

	var whErr *purchase.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, http.StatusInternalServerError, whErr.StatusCode)
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newFixture()
	f.txStore.On("UpdateTransactionStatus", "txn-1", models.TxFailed, "pi_123").Return(nil)

	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_123", "metadata": {"transaction_id": "txn-1"}}}
	}`)

	err := f.svc.HandleStripeWebhook(signedWebhookRequest(payload), testWebhookSecret)

	assert.NoError(t, err)
	f.txStore.AssertExpectations(t)
}

func TestWebhookChargeRefunded(t *testing.T) {
	f := newFixture()
	f.txStore.On("UpdateTransactionStatus", "txn-1", models.TxRefunded, "").Return(nil)

	payload := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_123", "metadata": {"transaction_id": "txn-1"}}}
	}`)

	err := f.svc.HandleStripeWebhook(signedWebhookRequest(payload), testWebhookSecret)

	assert.NoError(t, err)
	f.txStore.AssertExpectations(t)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	f := newFixture()

	payload := []byte(`{"id": "evt_3", "type": "customer.created", "data": {"object": {}}}`)

	err := f.svc.HandleStripeWebhook(signedWebhookRequest(payload), testWebhookSecret)

	assert.NoError(t, err)
	f.txStore.AssertNotCalled(t, "UpdateTransactionStatus", mock.Anything, mock.Anything, mock.Anything)
}
