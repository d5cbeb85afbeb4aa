package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/payments"
	"bib-resale/internal/utils"
)

var (
	ErrBibUnavailable = errors.New("bib is no longer available")
	ErrSelfPurchase   = errors.New("sellers cannot purchase their own bib")
	ErrPaymentFailed  = errors.New("payment failed")
	ErrInvalidToken   = errors.New("invalid listing token")
)

type Lifecycle interface {
	GetBib(bibID string) (*models.Bib, error)
	MarkSold(bibID, buyerID string, expectedRevision int64) (*models.Bib, error)
}

type TransactionStore interface {
	SaveTransaction(tx *models.Transaction) error
	GetTransaction(id string) (*models.Transaction, error)
	GetActiveTransactionByBib(bibID string) (*models.Transaction, error)
	UpdateTransactionStatus(id string, status models.TransactionStatus, paymentRef string) error
	ListTransactionsBySeller(sellerID string, limit, offset int) ([]*models.Transaction, error)
}

type GatewayResolver interface {
	Get(name string) (payments.Gateway, error)
}

type AlertPublisher interface {
	Publish(topic string, key string, value []byte) error
}

// RefundAlert is escalated when a compensating refund fails: funds are
// captured but neither delivered to the seller nor returned to the buyer.
type RefundAlert struct {
	TransactionID string    `json:"transaction_id"`
	BibID         string    `json:"bib_id"`
	CaptureRef    string    `json:"capture_ref"`
	Amount        float64   `json:"amount"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// PurchaseService performs the sale of a bib as one recoverable operation:
// capture before commit, compensate when the commit loses. The bib record's
// revision check is the sole arbiter of who got there first.
type PurchaseService struct {
	Bibs       Lifecycle
	Store      TransactionStore
	Gateways   GatewayResolver
	Alerts     AlertPublisher
	AlertTopic string
	FeeRate    float64
	Currency   string
	Logger     *logger.Logger
}

func NewPurchaseService(bibs Lifecycle, store TransactionStore, gateways GatewayResolver, alerts AlertPublisher, alertTopic string, feeRate float64, currency string, log *logger.Logger) *PurchaseService {
	return &PurchaseService{
		Bibs:       bibs,
		Store:      store,
		Gateways:   gateways,
		Alerts:     alerts,
		AlertTopic: alertTopic,
		FeeRate:    feeRate,
		Currency:   currency,
		Logger:     log,
	}
}

// Purchase buys a bib for a buyer. Exactly one of two concurrent calls on the
// same listed bib succeeds; the loser gets ErrBibUnavailable and, if funds
// were already captured, a compensating refund.
func (s *PurchaseService) Purchase(ctx context.Context, bibID, buyerID, provider, listingToken string) (*models.Transaction, error) {
	if provider == "" {
		provider = payments.ProviderStripe
	}

	b, err := s.Bibs.GetBib(bibID)
	if err != nil {
		return nil, ErrBibUnavailable
	}
	if !b.Status.Listed() {
		return nil, ErrBibUnavailable
	}
	if b.Status == models.BibListedPrivate && listingToken != b.ListingToken {
		return nil, ErrInvalidToken
	}
	if b.SellerID == buyerID {
		return nil, ErrSelfPurchase
	}
	if existing, err := s.Store.GetActiveTransactionByBib(bibID); err == nil && existing != nil {
		s.Logger.Warn("PURCHASE", fmt.Sprintf("bib %s already has active transaction %s", bibID, existing.TransactionID))
		return nil, ErrBibUnavailable
	}

	gw, err := s.Gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		TransactionID: utils.GenerateTransactionID(),
		BibID:         b.BibID,
		BuyerID:       buyerID,
		SellerID:      b.SellerID,
		Amount:        b.Price,
		PlatformFee:   roundCents(b.Price * s.FeeRate),
		Currency:      s.Currency,
		Provider:      provider,
		Status:        models.TxPending,
		CreatedAt:     time.Now(),
	}
	if err := s.Store.SaveTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	s.Logger.LogPurchase("START", tx.TransactionID, fmt.Sprintf("bib %s, buyer %s, %.2f %s (fee %.2f)", bibID, buyerID, tx.Amount, tx.Currency, tx.PlatformFee))

	payableID, err := gw.CreatePayable(ctx, payments.PayableRequest{
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		PlatformFee: tx.PlatformFee,
		BuyerID:     buyerID,
		Metadata:    map[string]string{"transaction_id": tx.TransactionID, "bib_id": bibID},
	})
	if err != nil {
		s.fail(tx, "")
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	// From here the operation must run to completion even if the caller
	// disconnects: funds may be in flight.
	ctx = context.WithoutCancel(ctx)

	capture, err := gw.Capture(ctx, payableID, tx.TransactionID)
	if err != nil {
		// No bib mutation has happened yet, so failing the transaction is
		// the whole rollback.
		s.fail(tx, "")
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	s.Logger.LogPurchase("CAPTURED", tx.TransactionID, fmt.Sprintf("capture ref %s", capture.CaptureRef))

	sold, err := s.Bibs.MarkSold(b.BibID, buyerID, b.Revision)
	if err != nil {
		s.compensate(ctx, gw, tx, capture.CaptureRef, err)
		return nil, ErrBibUnavailable
	}

	if err := s.Store.UpdateTransactionStatus(tx.TransactionID, models.TxSucceeded, capture.CaptureRef); err != nil {
		// The sale itself is committed; only the archive row is stale.
		s.Logger.Error("PURCHASE", fmt.Sprintf("sale committed but transaction %s not marked succeeded: %v", tx.TransactionID, err))
	}
	tx.Status = models.TxSucceeded
	tx.PaymentRef = capture.CaptureRef

	s.Logger.LogPurchase("COMPLETE", tx.TransactionID, fmt.Sprintf("bib %s sold to %s", sold.BibID, buyerID))
	return tx, nil
}

// RefundTransaction refunds a completed sale through the provider that
// captured it. This is the only path from succeeded to refunded.
func (s *PurchaseService) RefundTransaction(ctx context.Context, transactionID string) error {
	tx, err := s.Store.GetTransaction(transactionID)
	if err != nil {
		return err
	}
	if tx.Status != models.TxSucceeded {
		return fmt.Errorf("cannot refund transaction in status %s", tx.Status)
	}

	gw, err := s.Gateways.Get(tx.Provider)
	if err != nil {
		return err
	}
	if err := gw.Refund(ctx, tx.PaymentRef); err != nil {
		s.alert(tx, tx.PaymentRef, fmt.Sprintf("explicit refund failed: %v", err))
		return err
	}

	if err := s.Store.UpdateTransactionStatus(tx.TransactionID, models.TxRefunded, ""); err != nil {
		return err
	}
	s.Logger.LogPurchase("REFUNDED", tx.TransactionID, fmt.Sprintf("capture %s refunded", tx.PaymentRef))
	return nil
}

func (s *PurchaseService) GetTransaction(id string) (*models.Transaction, error) {
	return s.Store.GetTransaction(id)
}

// ListSellerTransactions returns a seller's sale history, newest first.
func (s *PurchaseService) ListSellerTransactions(sellerID string, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListTransactionsBySeller(sellerID, limit, offset)
}

// compensate returns captured funds after a commit failure. The refund is
// issued exactly once; if it fails, that is a must-alert condition, never a
// silent one.
func (s *PurchaseService) compensate(ctx context.Context, gw payments.Gateway, tx *models.Transaction, captureRef string, cause error) {
	s.Logger.Warn("PURCHASE", fmt.Sprintf("sale commit failed for %s (%v), refunding capture %s", tx.TransactionID, cause, captureRef))

	if err := gw.Refund(ctx, captureRef); err != nil {
		s.Logger.Error("PURCHASE", fmt.Sprintf("COMPENSATING REFUND FAILED for %s, capture %s: %v", tx.TransactionID, captureRef, err))
		s.alert(tx, captureRef, fmt.Sprintf("compensating refund failed after lost sale: %v", err))
	}
	s.fail(tx, captureRef)
}

func (s *PurchaseService) fail(tx *models.Transaction, paymentRef string) {
	if err := s.Store.UpdateTransactionStatus(tx.TransactionID, models.TxFailed, paymentRef); err != nil {
		s.Logger.Error("PURCHASE", fmt.Sprintf("failed to mark transaction %s failed: %v", tx.TransactionID, err))
	}
	tx.Status = models.TxFailed
}

// alert escalates a money-in-limbo condition to the operational alert topic.
func (s *PurchaseService) alert(tx *models.Transaction, captureRef, reason string) {
	if s.Alerts == nil {
		return
	}
	alert := RefundAlert{
		TransactionID: tx.TransactionID,
		BibID:         tx.BibID,
		CaptureRef:    captureRef,
		Amount:        tx.Amount,
		Reason:        reason,
		Timestamp:     time.Now(),
	}
	msgBytes, err := json.Marshal(alert)
	if err == nil {
		err = s.Alerts.Publish(s.AlertTopic, tx.TransactionID, msgBytes)
	}
	if err != nil {
		s.Logger.Error("ALERT", fmt.Sprintf("failed to publish refund alert for %s: %v", tx.TransactionID, err))
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
