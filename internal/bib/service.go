package bib

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bib-resale/internal/config"
	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/store"
	"bib-resale/internal/utils"
)

var (
	ErrInvalidTransition      = errors.New("invalid bib status transition")
	ErrNotListed              = errors.New("bib is not listed")
	ErrConcurrentModification = errors.New("bib was modified concurrently")
	ErrInvalidPrice           = errors.New("listing price must be positive")
	ErrNotSeller              = errors.New("bib does not belong to this seller")
	ErrDuplicateRegistration  = errors.New("registration number already registered for this event")
)

type DBLayer interface {
	CreateBib(bib models.Bib) error
	GetBibByID(id string) (*models.Bib, error)
	GetBibByToken(token string) (*models.Bib, error)
	ListBibsByEvent(eventID string, listedOnly bool) ([]models.Bib, error)
	CountByEventAndRegistration(eventID, registrationNumber string) (int, error)
	ListExpiredCandidates(now time.Time) ([]models.Bib, error)
	UpdateBib(bib models.Bib, expectedRevision int64) error
}

// WaitlistNotifier is invoked whenever a bib for an event becomes listed.
// Implementations must not block or fail the listing operation.
type WaitlistNotifier interface {
	NotifyMatchingEntries(eventID, bibID string, optionValues map[string]string)
}

type KafkaPublisher interface {
	PublishBibListed(topic string, bib models.Bib) error
	PublishBibSold(topic string, bib models.Bib) error
}

// transitions is the closed set of legal status edges. Status never changes
// outside this table.
var transitions = map[models.BibStatus][]models.BibStatus{
	models.BibPendingValidation: {models.BibListedPublic, models.BibListedPrivate, models.BibValidationFailed},
	models.BibListedPublic:      {models.BibSold, models.BibWithdrawn, models.BibExpired},
	models.BibListedPrivate:     {models.BibSold, models.BibWithdrawn, models.BibExpired},
}

func canTransition(from, to models.BibStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// BibService owns every status change of a bib.
type BibService struct {
	DB       DBLayer
	Waitlist WaitlistNotifier
	Kafka    KafkaPublisher
	Topics   config.TopicConfig
	Logger   *logger.Logger
}

func NewBibService(db DBLayer, waitlist WaitlistNotifier, kafka KafkaPublisher, topics config.TopicConfig, log *logger.Logger) *BibService {
	return &BibService{DB: db, Waitlist: waitlist, Kafka: kafka, Topics: topics, Logger: log}
}

// RegisterBib creates a bib in pending_validation for a seller.
func (s *BibService) RegisterBib(req models.BibRegistrationRequest, sellerID string) (*models.Bib, error) {
	count, err := s.DB.CountByEventAndRegistration(req.EventID, req.RegistrationNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check registration number: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateRegistration
	}

	bib := models.Bib{
		BibID:              uuid.NewString(),
		EventID:            req.EventID,
		SellerID:           sellerID,
		RegistrationNumber: req.RegistrationNumber,
		OriginalPrice:      req.OriginalPrice,
		OptionValues:       req.OptionValues,
		Status:             models.BibPendingValidation,
		Revision:           1,
		CreatedAt:          time.Now(),
	}

	if err := s.DB.CreateBib(bib); err != nil {
		return nil, fmt.Errorf("failed to create bib: %w", err)
	}

	s.Logger.LogLifecycle("REGISTER", bib.BibID, fmt.Sprintf("registered for event %s by seller %s", bib.EventID, sellerID))
	return &bib, nil
}

// RequestListing records the seller's asking price and visibility on a bib
// awaiting validation. The price is validated before anything is written.
func (s *BibService) RequestListing(bibID string, req models.ListingRequest) (*models.Bib, error) {
	if req.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPublic
	}

	bib, err := s.DB.GetBibByID(bibID)
	if err != nil {
		return nil, err
	}
	if bib.Status != models.BibPendingValidation {
		return nil, fmt.Errorf("%w: cannot set listing terms in status %s", ErrInvalidTransition, bib.Status)
	}

	bib.Price = req.Price
	bib.Visibility = req.Visibility
	if req.OptionValues != nil {
		bib.OptionValues = req.OptionValues
	}
	if req.Visibility == models.VisibilityPrivate && bib.ListingToken == "" {
		token, err := utils.GenerateListingToken()
		if err != nil {
			return nil, err
		}
		bib.ListingToken = token
	}

	if err := s.update(*bib); err != nil {
		return nil, err
	}
	bib.Revision++

	s.Logger.LogLifecycle("LISTING_REQUEST", bibID, fmt.Sprintf("price %.2f, visibility %s", req.Price, req.Visibility))
	return bib, nil
}

// ApproveValidation moves a validated bib into its listed state and wakes the
// waitlist for the event.
func (s *BibService) ApproveValidation(bibID string) (*models.Bib, error) {
	bib, err := s.DB.GetBibByID(bibID)
	if err != nil {
		return nil, err
	}
	if bib.Price <= 0 {
		return nil, fmt.Errorf("%w: listing terms not set", ErrInvalidPrice)
	}

	target := models.BibListedPublic
	if bib.Visibility == models.VisibilityPrivate {
		target = models.BibListedPrivate
	}
	if !canTransition(bib.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bib.Status, target)
	}

	bib.Status = target
	if err := s.update(*bib); err != nil {
		return nil, err
	}
	bib.Revision++

	s.Logger.LogLifecycle("APPROVE", bibID, fmt.Sprintf("listed as %s for event %s", target, bib.EventID))
	s.afterListed(*bib)
	return bib, nil
}

// RejectValidation marks a pending bib as failed with the organizer's reason.
func (s *BibService) RejectValidation(bibID, reason string) error {
	bib, err := s.DB.GetBibByID(bibID)
	if err != nil {
		return err
	}
	if !canTransition(bib.Status, models.BibValidationFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bib.Status, models.BibValidationFailed)
	}

	bib.Status = models.BibValidationFailed
	bib.RejectionReason = reason
	if err := s.update(*bib); err != nil {
		return err
	}

	s.Logger.LogLifecycle("REJECT", bibID, reason)
	return nil
}

// Withdraw takes a listed bib off the market. Only the seller may do this and
// no buyer may be attached.
func (s *BibService) Withdraw(bibID, sellerID string) error {
	bib, err := s.DB.GetBibByID(bibID)
	if err != nil {
		return err
	}
	if bib.SellerID != sellerID {
		return ErrNotSeller
	}
	if !canTransition(bib.Status, models.BibWithdrawn) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bib.Status, models.BibWithdrawn)
	}

	bib.Status = models.BibWithdrawn
	bib.BuyerID = ""
	if err := s.update(*bib); err != nil {
		return err
	}

	s.Logger.LogLifecycle("WITHDRAW", bibID, fmt.Sprintf("withdrawn by seller %s", sellerID))
	return nil
}

// MarkSold transitions a listed bib to sold with the winning buyer attached.
// The caller supplies the revision it read; a lost race surfaces as
// ErrConcurrentModification and is never retried here, because blindly
// retrying a sale could sell the same bib twice.
func (s *BibService) MarkSold(bibID, buyerID string, expectedRevision int64) (*models.Bib, error) {
	bib, err := s.DB.GetBibByID(bibID)
	if err != nil {
		return nil, err
	}
	if !bib.Status.Listed() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotListed, bib.Status)
	}

	bib.Status = models.BibSold
	bib.BuyerID = buyerID
	if err := s.DB.UpdateBib(*bib, expectedRevision); err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			return nil, ErrConcurrentModification
		}
		return nil, err
	}
	bib.Revision = expectedRevision + 1

	s.Logger.LogLifecycle("SOLD", bibID, fmt.Sprintf("sold to buyer %s", buyerID))
	if s.Kafka != nil {
		if err := s.Kafka.PublishBibSold(s.Topics.BibSold, *bib); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("failed to publish bib_sold for %s: %v", bibID, err))
		}
	}
	return bib, nil
}

// MarkExpired transitions a listed bib whose event has passed. Triggered by
// the expiry sweep, never by users.
func (s *BibService) MarkExpired(bibID string) error {
	bib, err := s.DB.GetBibByID(bibID)
	if err != nil {
		return err
	}
	if !canTransition(bib.Status, models.BibExpired) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bib.Status, models.BibExpired)
	}

	bib.Status = models.BibExpired
	if err := s.update(*bib); err != nil {
		return err
	}

	s.Logger.LogLifecycle("EXPIRE", bibID, "event date passed without sale")
	return nil
}

func (s *BibService) GetBib(bibID string) (*models.Bib, error) {
	return s.DB.GetBibByID(bibID)
}

// GetBibByToken resolves a private listing through its access token.
func (s *BibService) GetBibByToken(token string) (*models.Bib, error) {
	return s.DB.GetBibByToken(token)
}

func (s *BibService) ListBibsByEvent(eventID string, listedOnly bool) ([]models.Bib, error) {
	return s.DB.ListBibsByEvent(eventID, listedOnly)
}

// update writes through the CAS contract with the revision the bib was read
// at, mapping a lost race to ErrConcurrentModification for the caller.
func (s *BibService) update(bib models.Bib) error {
	if err := s.DB.UpdateBib(bib, bib.Revision); err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			return ErrConcurrentModification
		}
		return err
	}
	return nil
}

// afterListed runs the side effects of a bib becoming purchasable. Failures
// are logged and never propagated: the listing itself already happened.
func (s *BibService) afterListed(bib models.Bib) {
	if s.Waitlist != nil {
		s.Waitlist.NotifyMatchingEntries(bib.EventID, bib.BibID, bib.OptionValues)
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishBibListed(s.Topics.BibListed, bib); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("failed to publish bib_listed for %s: %v", bib.BibID, err))
		}
	}
}
