package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bib-resale/internal/logger"
)

// PayPalGateway drives the onboarded-merchant/order-style provider: an order
// is created first, captured later, and the platform fee is withheld from the
// seller at capture time.
type PayPalGateway struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	log          *logger.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalGateway(baseURL, clientID, clientSecret string, httpClient *http.Client, log *logger.Logger) *PayPalGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &PayPalGateway{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       httpClient,
		log:          log,
	}
}

type paypalOrderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (g *PayPalGateway) CreatePayable(ctx context.Context, req PayableRequest) (string, error) {
	currency := strings.ToUpper(req.Currency)
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]string{
					"currency_code": currency,
					"value":         fmt.Sprintf("%.2f", req.Amount),
				},
				"custom_id": req.Metadata["transaction_id"],
				"payment_instruction": map[string]interface{}{
					"disbursement_mode": "INSTANT",
					"platform_fees": []map[string]interface{}{
						{
							"amount": map[string]string{
								"currency_code": currency,
								"value":         fmt.Sprintf("%.2f", req.PlatformFee),
							},
						},
					},
				},
			},
		},
	}

	var order paypalOrderResponse
	if err := g.post(ctx, "/v2/checkout/orders", "", body, &order); err != nil {
		return "", err
	}
	if order.ID == "" {
		return "", fmt.Errorf("%w: order id missing in response", ErrProviderUnavailable)
	}

	g.log.Info("PAYPAL", fmt.Sprintf("created order %s (%.2f %s)", order.ID, req.Amount, currency))
	return order.ID, nil
}

func (g *PayPalGateway) Capture(ctx context.Context, payableID, idempotencyKey string) (*CaptureResult, error) {
	var order paypalOrderResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(payableID))
	if err := g.post(ctx, path, idempotencyKey, map[string]interface{}{}, &order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if order.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: order status %s", ErrCaptureFailed, order.Status)
	}

	captureRef := ""
	for _, pu := range order.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.Status == "COMPLETED" {
				captureRef = c.ID
			}
		}
	}
	if captureRef == "" {
		return nil, fmt.Errorf("%w: no completed capture in response", ErrCaptureFailed)
	}

	g.log.Info("PAYPAL", fmt.Sprintf("captured order %s (capture %s)", payableID, captureRef))
	return &CaptureResult{CaptureRef: captureRef}, nil
}

func (g *PayPalGateway) Refund(ctx context.Context, captureRef string) error {
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v2/payments/captures/%s/refund", url.PathEscape(captureRef))
	if err := g.post(ctx, path, "", map[string]interface{}{}, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	if resp.Status != "COMPLETED" && resp.Status != "PENDING" {
		return fmt.Errorf("%w: refund status %s", ErrRefundFailed, resp.Status)
	}

	g.log.Info("PAYPAL", fmt.Sprintf("refunded capture %s (refund %s)", captureRef, resp.ID))
	return nil
}

// post sends an authenticated JSON request, refreshing the OAuth token when
// needed. requestID is forwarded as PayPal-Request-Id, the provider's
// idempotency-key mechanism.
func (g *PayPalGateway) post(ctx context.Context, path, requestID string, body interface{}, out interface{}) error {
	token, err := g.getAccessToken(ctx)
	if err != nil {
		return err
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paypal %s returned status %d: %s", path, resp.StatusCode, string(payload))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode paypal response: %w", err)
		}
	}
	return nil
}

// getAccessToken returns a cached client-credentials token, fetching a fresh
// one shortly before expiry.
func (g *PayPalGateway) getAccessToken(ctx context.Context) (string, error) {
	g.tokenMu.Lock()
	defer g.tokenMu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-30*time.Second)) {
		return g.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	g.accessToken = tokenResp.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return g.accessToken, nil
}
