package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BibStatus string

const (
	BibPendingValidation BibStatus = "pending_validation"
	BibListedPublic      BibStatus = "listed_public"
	BibListedPrivate     BibStatus = "listed_private"
	BibSold              BibStatus = "sold"
	BibValidationFailed  BibStatus = "validation_failed"
	BibExpired           BibStatus = "expired"
	BibWithdrawn         BibStatus = "withdrawn"
)

// Listed reports whether the bib is currently purchasable.
func (s BibStatus) Listed() bool {
	return s == BibListedPublic || s == BibListedPrivate
}

// Terminal reports whether no further transition may leave this status.
func (s BibStatus) Terminal() bool {
	switch s {
	case BibSold, BibValidationFailed, BibExpired, BibWithdrawn:
		return true
	}
	return false
}

type BibVisibility string

const (
	VisibilityPublic  BibVisibility = "public"
	VisibilityPrivate BibVisibility = "private"
)

type Bib struct {
	bun.BaseModel `bun:"table:bibs,alias:bib"`

	BibID              string            `bun:"bib_id,pk" json:"bib_id"`
	EventID            string            `bun:"event_id,notnull" json:"event_id"`
	SellerID           string            `bun:"seller_id,notnull" json:"seller_id"`
	BuyerID            string            `bun:"buyer_id,nullzero" json:"buyer_id,omitempty"`
	RegistrationNumber string            `bun:"registration_number,notnull" json:"registration_number"`
	Price              float64           `bun:"price" json:"price"`
	OriginalPrice      float64           `bun:"original_price,nullzero" json:"original_price,omitempty"`
	Status             BibStatus         `bun:"status,notnull" json:"status"`
	Visibility         BibVisibility     `bun:"visibility" json:"visibility"`
	ListingToken       string            `bun:"listing_token,nullzero" json:"-"`
	OptionValues       map[string]string `bun:"option_values,type:jsonb" json:"option_values,omitempty"`
	RejectionReason    string            `bun:"rejection_reason,nullzero" json:"rejection_reason,omitempty"`
	Revision           int64             `bun:"revision,notnull" json:"revision"`
	CreatedAt          time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time         `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type BibRegistrationRequest struct {
	EventID            string            `json:"event_id"`
	RegistrationNumber string            `json:"registration_number"`
	OriginalPrice      float64           `json:"original_price,omitempty"`
	OptionValues       map[string]string `json:"option_values,omitempty"`
}

type ListingRequest struct {
	Price        float64           `json:"price"`
	Visibility   BibVisibility     `json:"visibility"`
	OptionValues map[string]string `json:"option_values,omitempty"`
}

type RejectionRequest struct {
	Reason string `json:"reason"`
}

type BibResponse struct {
	BibID      string        `json:"bib_id"`
	EventID    string        `json:"event_id"`
	Status     BibStatus     `json:"status"`
	Price      float64       `json:"price"`
	Visibility BibVisibility `json:"visibility"`
}
