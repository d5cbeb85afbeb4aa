package models

import (
	"time"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxSucceeded TransactionStatus = "succeeded"
	TxFailed    TransactionStatus = "failed"
	TxRefunded  TransactionStatus = "refunded"
)

type Transaction struct {
	TransactionID string            `json:"transaction_id"`
	BibID         string            `json:"bib_id"`
	BuyerID       string            `json:"buyer_id"`
	SellerID      string            `json:"seller_id"`
	Amount        float64           `json:"amount"`
	PlatformFee   float64           `json:"platform_fee"`
	Currency      string            `json:"currency"`
	Provider      string            `json:"provider"`
	PaymentRef    string            `json:"payment_ref,omitempty"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at,omitempty"`
}

type PurchaseRequest struct {
	BibID        string `json:"bib_id"`
	Provider     string `json:"provider,omitempty"`
	ListingToken string `json:"listing_token,omitempty"`
}

type PurchaseResponse struct {
	TransactionID string            `json:"transaction_id"`
	BibID         string            `json:"bib_id"`
	Amount        float64           `json:"amount"`
	PlatformFee   float64           `json:"platform_fee"`
	Status        TransactionStatus `json:"status"`
}
