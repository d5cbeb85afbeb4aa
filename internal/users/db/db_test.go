package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"bib-resale/internal/models"
	"bib-resale/internal/store"
	"bib-resale/internal/users/db"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := bunDB.ResetModel(context.Background(), (*models.User)(nil)); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	return &db.DB{Bun: bunDB}
}

func TestUpsertUserCreatesAndRefreshes(t *testing.T) {
	d := setupTestDB(t)

	user := models.User{
		ID:        "user-1",
		Email:     "runner@example.com",
		FullName:  "Ada Runner",
		CreatedAt: time.Now().Round(time.Second),
	}
	require.NoError(t, d.UpsertUser(user))

	got, err := d.GetUserByID("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Runner", got.FullName)

	// A replayed notification updates the profile instead of failing.
	user.FullName = "Ada R. Runner"
	user.CreatedAt = time.Now().Add(time.Hour)
	require.NoError(t, d.UpsertUser(user))

	got, err = d.GetUserByID("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada R. Runner", got.FullName)
}

func TestGetUserByIDMissing(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.GetUserByID("missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
