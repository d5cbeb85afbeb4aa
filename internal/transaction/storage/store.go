package storage

import (
	"bib-resale/internal/models"
)

type Store interface {
	SaveTransaction(tx *models.Transaction) error
	GetTransaction(id string) (*models.Transaction, error)
	GetActiveTransactionByBib(bibID string) (*models.Transaction, error)
	UpdateTransactionStatus(id string, status models.TransactionStatus, paymentRef string) error
	ListTransactionsBySeller(sellerID string, limit, offset int) ([]*models.Transaction, error)

	Close() error
	HealthCheck() error
}
