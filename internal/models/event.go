package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is a race with bibs available for resale.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string    `bun:"id,pk" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Location    string    `bun:"location" json:"location,omitempty"`
	Distance    string    `bun:"distance" json:"distance,omitempty"`
	StartDate   time.Time `bun:"start_date,notnull" json:"start_date"`
	OrganizerID string    `bun:"organizer_id,notnull" json:"organizer_id"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
