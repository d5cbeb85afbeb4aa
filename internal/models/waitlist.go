package models

import (
	"time"

	"github.com/uptrace/bun"
)

type WaitlistEntry struct {
	bun.BaseModel `bun:"table:waitlist_entries"`

	EntryID    string            `bun:"entry_id,pk" json:"entry_id"`
	EventID    string            `bun:"event_id,notnull,unique:event_user" json:"event_id"`
	UserID     string            `bun:"user_id,notnull,unique:event_user" json:"user_id"`
	Options    map[string]string `bun:"options,type:jsonb" json:"options,omitempty"`
	CreatedAt  time.Time         `bun:"created_at,notnull" json:"created_at"`
	NotifiedAt time.Time         `bun:"notified_at,nullzero" json:"notified_at,omitempty"`
}

// Notified reports whether a notification has already been recorded.
func (e *WaitlistEntry) Notified() bool {
	return !e.NotifiedAt.IsZero()
}

// Matches reports whether the listed bib's option values satisfy the entry's
// requested filters. An entry with no filters matches everything.
func (e *WaitlistEntry) Matches(optionValues map[string]string) bool {
	for k, want := range e.Options {
		if got, ok := optionValues[k]; !ok || got != want {
			return false
		}
	}
	return true
}

type WaitlistJoinRequest struct {
	EventID string            `json:"event_id"`
	Options map[string]string `json:"options,omitempty"`
}

// ListingNotice is what waiting buyers receive when a matching bib becomes
// available. It deliberately omits the private listing token.
type ListingNotice struct {
	EventID   string            `json:"event_id"`
	BibID     string            `json:"bib_id"`
	Options   map[string]string `json:"options,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
