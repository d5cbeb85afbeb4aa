package payments

import (
	"context"
	"errors"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

var (
	ErrCaptureFailed       = errors.New("payment capture failed")
	ErrRefundFailed        = errors.New("payment refund failed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrUnknownProvider     = errors.New("unknown payment provider")
)

// PayableRequest describes the charge to prepare, provider-agnostically.
type PayableRequest struct {
	Amount      float64
	Currency    string
	PlatformFee float64
	BuyerID     string
	Metadata    map[string]string
}

type CaptureResult struct {
	// CaptureRef identifies the captured funds at the provider and is what a
	// compensating refund must reference.
	CaptureRef string
	Amount     float64
}

// Gateway is the uniform three-operation contract both providers are driven
// through, keeping the purchase coordinator provider-agnostic.
type Gateway interface {
	CreatePayable(ctx context.Context, req PayableRequest) (string, error)
	Capture(ctx context.Context, payableID, idempotencyKey string) (*CaptureResult, error)
	Refund(ctx context.Context, captureRef string) error
}

// Registry resolves a gateway by provider name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

func (r *Registry) Register(name string, gw Gateway) {
	r.gateways[name] = gw
}

func (r *Registry) Get(name string) (Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return gw, nil
}
