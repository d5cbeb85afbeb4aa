package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

type DB struct {
	Bun *bun.DB
}

// CreateBib inserts a new bib at revision 1.
func (d *DB) CreateBib(bib models.Bib) error {
	if bib.Revision == 0 {
		bib.Revision = 1
	}
	_, err := d.Bun.NewInsert().Model(&bib).Exec(context.Background())
	return mapErr(err)
}

// GetBibByID fetches one bib by its ID.
func (d *DB) GetBibByID(id string) (*models.Bib, error) {
	var bib models.Bib
	err := d.Bun.NewSelect().
		Model(&bib).
		Where("bib_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, mapErr(err)
	}
	return &bib, nil
}

// GetBibByToken fetches a private listing through its access token.
func (d *DB) GetBibByToken(token string) (*models.Bib, error) {
	var bib models.Bib
	err := d.Bun.NewSelect().
		Model(&bib).
		Where("listing_token = ?", token).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, mapErr(err)
	}
	return &bib, nil
}

// ListBibsByEvent returns the bibs for an event, newest first. When
// listedOnly is set, only purchasable public listings are returned.
func (d *DB) ListBibsByEvent(eventID string, listedOnly bool) ([]models.Bib, error) {
	var bibs []models.Bib
	q := d.Bun.NewSelect().
		Model(&bibs).
		Where("event_id = ?", eventID).
		Order("created_at DESC")
	if listedOnly {
		q = q.Where("status = ?", models.BibListedPublic)
	}
	if err := q.Scan(context.Background()); err != nil {
		return nil, mapErr(err)
	}
	return bibs, nil
}

// CountByEventAndRegistration reports how many bibs already carry a
// registration number within an event. Used to reject duplicates up front;
// the unique index is the real guard.
func (d *DB) CountByEventAndRegistration(eventID, registrationNumber string) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Bib)(nil)).
		Where("event_id = ?", eventID).
		Where("registration_number = ?", registrationNumber).
		Count(context.Background())
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// ListExpiredCandidates returns listed bibs whose event start date has
// passed, for the expiry sweep.
func (d *DB) ListExpiredCandidates(now time.Time) ([]models.Bib, error) {
	var bibs []models.Bib
	err := d.Bun.NewSelect().
		Model(&bibs).
		Join("JOIN events e ON e.id = bib.event_id").
		Where("bib.status IN (?)", bun.In([]models.BibStatus{models.BibListedPublic, models.BibListedPrivate})).
		Where("e.start_date < ?", now).
		Scan(context.Background())
	if err != nil {
		return nil, mapErr(err)
	}
	return bibs, nil
}

// UpdateBib performs a compare-and-swap write: the row is only updated when
// its stored revision still equals expectedRevision. This is the sole
// concurrency primitive the rest of the system relies on.
func (d *DB) UpdateBib(bib models.Bib, expectedRevision int64) error {
	bib.Revision = expectedRevision + 1
	bib.UpdatedAt = time.Now()

	res, err := d.Bun.NewUpdate().
		Model(&bib).
		Column("buyer_id", "price", "status", "visibility", "listing_token",
			"option_values", "rejection_reason", "revision", "updated_at").
		Where("bib_id = ?", bib.BibID).
		Where("revision = ?", expectedRevision).
		Exec(context.Background())
	if err != nil {
		return mapErr(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if rows == 0 {
		// Distinguish a lost race from a missing record.
		if _, getErr := d.GetBibByID(bib.BibID); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrRevisionConflict
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	default:
		return err
	}
}
