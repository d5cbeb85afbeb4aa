package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"bib-resale/internal/logger"
)

// StripeGateway drives the card/intent-style provider: a payment intent is
// created up front and the funds are captured in a second step.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized")
	return &StripeGateway{client: sc, log: log}, nil
}

func (g *StripeGateway) CreatePayable(ctx context.Context, req PayableRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(toCents(req.Amount)),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("buyer_id", req.BuyerID)

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("failed to create payment intent: %v", err))
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("created payment intent %s (%.2f %s)", intent.ID, req.Amount, req.Currency))
	return intent.ID, nil
}

func (g *StripeGateway) Capture(ctx context.Context, payableID, idempotencyKey string) (*CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	}
	// The idempotency key makes a retried-to-confirm capture safe: resending
	// after a timeout can never charge the buyer twice.
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	intent, err := g.client.PaymentIntents.Capture(payableID, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("capture failed for intent %s: %v", payableID, err))
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		g.log.Error("STRIPE", fmt.Sprintf("intent %s not captured, status %s", payableID, intent.Status))
		return nil, fmt.Errorf("%w: intent status %s", ErrCaptureFailed, intent.Status)
	}

	g.log.Info("STRIPE", fmt.Sprintf("captured intent %s", intent.ID))
	return &CaptureResult{
		CaptureRef: intent.ID,
		Amount:     fromCents(intent.AmountReceived),
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, captureRef string) error {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(captureRef),
	}
	refund, err := g.client.Refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("refund failed for %s: %v", captureRef, err))
		return fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("refunded %s (refund %s)", captureRef, refund.ID))
	return nil
}

func toCents(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
