package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"bib-resale/internal/config"
	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

// PostgreSQLStore persists transactions over plain database/sql. The
// transaction archive is append-mostly and only ever written by the purchase
// coordinator that created the row, so it needs no revision column.
type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a transaction store on an existing
// connection, sharing the pool with the rest of the service.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	s := &PostgreSQLStore{db: db, log: log}
	if err := s.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize transaction tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize transaction tables: %w", err)
	}
	log.Info("DATABASE", "Transaction storage initialized")
	return s, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "transactions", "Connecting to PostgreSQL")

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgreSQLStoreWithDB(db, log)
}

func (s *PostgreSQLStore) initTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id VARCHAR(64) PRIMARY KEY,
		bib_id         VARCHAR(64) NOT NULL,
		buyer_id       VARCHAR(64) NOT NULL,
		seller_id      VARCHAR(64) NOT NULL,
		amount         NUMERIC(10,2) NOT NULL,
		platform_fee   NUMERIC(10,2) NOT NULL,
		currency       VARCHAR(8) NOT NULL,
		provider       VARCHAR(16) NOT NULL,
		payment_ref    VARCHAR(128),
		status         VARCHAR(16) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_bib ON transactions (bib_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions (seller_id);`

	_, err := s.db.Exec(query)
	return err
}

func (s *PostgreSQLStore) SaveTransaction(tx *models.Transaction) error {
	query := `
	INSERT INTO transactions
		(transaction_id, bib_id, buyer_id, seller_id, amount, platform_fee, currency, provider, payment_ref, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.Exec(query,
		tx.TransactionID, tx.BibID, tx.BuyerID, tx.SellerID,
		tx.Amount, tx.PlatformFee, tx.Currency, tx.Provider,
		nullable(tx.PaymentRef), string(tx.Status), tx.CreatedAt)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("failed to save transaction %s: %v", tx.TransactionID, err))
		return err
	}
	return nil
}

func (s *PostgreSQLStore) GetTransaction(id string) (*models.Transaction, error) {
	query := `
	SELECT transaction_id, bib_id, buyer_id, seller_id, amount, platform_fee, currency, provider,
	       COALESCE(payment_ref, ''), status, created_at, COALESCE(updated_at, created_at)
	FROM transactions WHERE transaction_id = $1`

	return s.scanTransaction(s.db.QueryRow(query, id))
}

// GetActiveTransactionByBib returns the one non-failed transaction for a bib,
// if any. The coordinator uses it to enforce the single-active-sale rule.
func (s *PostgreSQLStore) GetActiveTransactionByBib(bibID string) (*models.Transaction, error) {
	query := `
	SELECT transaction_id, bib_id, buyer_id, seller_id, amount, platform_fee, currency, provider,
	       COALESCE(payment_ref, ''), status, created_at, COALESCE(updated_at, created_at)
	FROM transactions WHERE bib_id = $1 AND status != 'failed'
	ORDER BY created_at DESC LIMIT 1`

	return s.scanTransaction(s.db.QueryRow(query, bibID))
}

func (s *PostgreSQLStore) UpdateTransactionStatus(id string, status models.TransactionStatus, paymentRef string) error {
	query := `
	UPDATE transactions
	SET status = $2, payment_ref = COALESCE(NULLIF($3, ''), payment_ref), updated_at = NOW()
	WHERE transaction_id = $1`

	res, err := s.db.Exec(query, id, string(status), paymentRef)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("failed to update transaction %s: %v", id, err))
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgreSQLStore) ListTransactionsBySeller(sellerID string, limit, offset int) ([]*models.Transaction, error) {
	query := `
	SELECT transaction_id, bib_id, buyer_id, seller_id, amount, platform_fee, currency, provider,
	       COALESCE(payment_ref, ''), status, created_at, COALESCE(updated_at, created_at)
	FROM transactions WHERE seller_id = $1
	ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(query, sellerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgreSQLStore) scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var status string
	err := row.Scan(&tx.TransactionID, &tx.BibID, &tx.BuyerID, &tx.SellerID,
		&tx.Amount, &tx.PlatformFee, &tx.Currency, &tx.Provider,
		&tx.PaymentRef, &status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.Status = models.TransactionStatus(status)
	return &tx, nil
}

func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
