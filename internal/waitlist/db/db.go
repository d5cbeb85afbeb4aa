package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

type DB struct {
	Bun *bun.DB
}

// CreateEntry inserts a waitlist entry. The unique (event_id, user_id) index
// is the real duplicate guard; violations surface as store.ErrDuplicate.
func (d *DB) CreateEntry(entry models.WaitlistEntry) error {
	_, err := d.Bun.NewInsert().Model(&entry).Exec(context.Background())
	return mapErr(err)
}

func (d *DB) GetByEventAndUser(eventID, userID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, mapErr(err)
	}
	return &entry, nil
}

// ListUnnotified returns the entries for an event that have not been
// notified yet, oldest first.
func (d *DB) ListUnnotified(eventID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Where("notified_at IS NULL").
		Order("created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, mapErr(err)
	}
	return entries, nil
}

// MarkNotified stamps notified_at, but only if it is still unset. Returns
// false when another notification got there first.
func (d *DB) MarkNotified(entryID string, notifiedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.WaitlistEntry)(nil)).
		Set("notified_at = ?", notifiedAt).
		Where("entry_id = ?", entryID).
		Where("notified_at IS NULL").
		Exec(context.Background())
	if err != nil {
		return false, mapErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	return rows > 0, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	default:
		return err
	}
}

// isUniqueViolation matches both the postgres and sqlite phrasings so the
// same layer works in production and under the test dialect.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
