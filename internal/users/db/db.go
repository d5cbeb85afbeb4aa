package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

type DB struct {
	Bun *bun.DB
}

// UpsertUser creates the user or refreshes the profile fields when the
// identity provider replays the notification. The original created_at is
// kept on replay.
func (d *DB) UpsertUser(user models.User) error {
	_, err := d.Bun.NewInsert().
		Model(&user).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("full_name = EXCLUDED.full_name").
		Exec(context.Background())
	return err
}

// GetUserByID fetches one user profile.
func (d *DB) GetUserByID(id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
