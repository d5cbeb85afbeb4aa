package waitlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

type DBLayer interface {
	CreateEntry(entry models.WaitlistEntry) error
	GetByEventAndUser(eventID, userID string) (*models.WaitlistEntry, error)
	ListUnnotified(eventID string) ([]models.WaitlistEntry, error)
	MarkNotified(entryID string, notifiedAt time.Time) (bool, error)
}

// NotifyDedupe guards against re-notifying an entry for the same bib
// availability across processes.
type NotifyDedupe interface {
	FirstNotification(entryID, bibID string) (bool, error)
	Clear(entryID, bibID string) error
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

type Broadcaster interface {
	EmitListing(notice models.ListingNotice)
}

// WaitlistNotification is the Kafka payload for a delivered notification.
type WaitlistNotification struct {
	EntryID   string    `json:"entry_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	BibID     string    `json:"bib_id"`
	Timestamp time.Time `json:"timestamp"`
}

type WaitlistService struct {
	DB          DBLayer
	Dedupe      NotifyDedupe
	Kafka       KafkaPublisher
	Emitter     Broadcaster
	NotifyTopic string
	Logger      *logger.Logger
}

func NewWaitlistService(db DBLayer, dedupe NotifyDedupe, kafka KafkaPublisher, emitter Broadcaster, notifyTopic string, log *logger.Logger) *WaitlistService {
	return &WaitlistService{DB: db, Dedupe: dedupe, Kafka: kafka, Emitter: emitter, NotifyTopic: notifyTopic, Logger: log}
}

// Join records a buyer's interest in an event. Joining twice is a no-op that
// returns the original entry.
func (s *WaitlistService) Join(eventID, userID string, options map[string]string) (*models.WaitlistEntry, error) {
	existing, err := s.DB.GetByEventAndUser(eventID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check waitlist: %w", err)
	}

	entry := models.WaitlistEntry{
		EntryID:   uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Options:   options,
		CreatedAt: time.Now(),
	}
	if err := s.DB.CreateEntry(entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race against a concurrent join by the same user.
			return s.DB.GetByEventAndUser(eventID, userID)
		}
		return nil, fmt.Errorf("failed to join waitlist: %w", err)
	}

	s.Logger.Info("WAITLIST", fmt.Sprintf("user %s joined waitlist for event %s", userID, eventID))
	return &entry, nil
}

// NotifyMatchingEntries wakes every unnotified entry for the event whose
// option filters match the newly listed bib. Called by the lifecycle engine
// when a bib becomes listed; it never returns an error, because notification
// delivery must not fail the listing that triggered it.
func (s *WaitlistService) NotifyMatchingEntries(eventID, bibID string, optionValues map[string]string) {
	entries, err := s.DB.ListUnnotified(eventID)
	if err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("failed to load waitlist for event %s: %v", eventID, err))
		return
	}

	for _, entry := range entries {
		if !entry.Matches(optionValues) {
			continue
		}
		s.notifyEntry(entry, bibID, optionValues)
	}
}

// notifyEntry delivers one notification at most once. The Redis marker
// arbitrates between concurrent passes, the notified_at stamp between
// repeated listings for the same event.
func (s *WaitlistService) notifyEntry(entry models.WaitlistEntry, bibID string, optionValues map[string]string) {
	if s.Dedupe != nil {
		first, err := s.Dedupe.FirstNotification(entry.EntryID, bibID)
		if err != nil {
			s.Logger.Warn("WAITLIST", fmt.Sprintf("dedupe check failed for entry %s: %v", entry.EntryID, err))
			return
		}
		if !first {
			return
		}
	}

	stamped, err := s.DB.MarkNotified(entry.EntryID, time.Now())
	if err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("failed to mark entry %s notified: %v", entry.EntryID, err))
		if s.Dedupe != nil {
			_ = s.Dedupe.Clear(entry.EntryID, bibID)
		}
		return
	}
	if !stamped {
		return
	}

	notice := models.ListingNotice{
		EventID:   entry.EventID,
		BibID:     bibID,
		Options:   optionValues,
		Timestamp: time.Now(),
	}
	if s.Emitter != nil {
		s.Emitter.EmitListing(notice)
	}

	if s.Kafka != nil {
		notification := WaitlistNotification{
			EntryID:   entry.EntryID,
			EventID:   entry.EventID,
			UserID:    entry.UserID,
			BibID:     bibID,
			Timestamp: time.Now(),
		}
		msgBytes, err := json.Marshal(notification)
		if err == nil {
			err = s.Kafka.Publish(s.NotifyTopic, entry.EntryID, msgBytes)
		}
		if err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("failed to publish waitlist notification for entry %s: %v", entry.EntryID, err))
		}
	}

	s.Logger.Info("WAITLIST", fmt.Sprintf("notified user %s about bib %s for event %s", entry.UserID, bibID, entry.EventID))
}
