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
	"bib-resale/internal/waitlist/db"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if err := bunDB.ResetModel(context.Background(), (*models.WaitlistEntry)(nil)); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	return &db.DB{Bun: bunDB}
}

func sampleEntry(id, userID string) models.WaitlistEntry {
	return models.WaitlistEntry{
		EntryID:   id,
		EventID:   "event-1",
		UserID:    userID,
		Options:   map[string]string{"size": "M"},
		CreatedAt: time.Now().Round(time.Second),
	}
}

func TestCreateAndGetEntry(t *testing.T) {
	d := setupTestDB(t)

	entry := sampleEntry("entry-1", "user-1")
	require.NoError(t, d.CreateEntry(entry))

	got, err := d.GetByEventAndUser("event-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "entry-1", got.EntryID)
	assert.Equal(t, "M", got.Options["size"])
	assert.False(t, got.Notified())

	_, err = d.GetByEventAndUser("event-1", "stranger")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateEntryDuplicate(t *testing.T) {
	d := setupTestDB(t)

	require.NoError(t, d.CreateEntry(sampleEntry("entry-1", "user-1")))

	err := d.CreateEntry(sampleEntry("entry-2", "user-1"))
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestListUnnotified(t *testing.T) {
	d := setupTestDB(t)

	require.NoError(t, d.CreateEntry(sampleEntry("entry-1", "user-1")))
	require.NoError(t, d.CreateEntry(sampleEntry("entry-2", "user-2")))

	notified := sampleEntry("entry-3", "user-3")
	notified.NotifiedAt = time.Now()
	require.NoError(t, d.CreateEntry(notified))

	entries, err := d.ListUnnotified("event-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.Notified())
	}
}

func TestMarkNotifiedStampsOnlyOnce(t *testing.T) {
	d := setupTestDB(t)

	require.NoError(t, d.CreateEntry(sampleEntry("entry-1", "user-1")))

	stamped, err := d.MarkNotified("entry-1", time.Now())
	require.NoError(t, err)
	assert.True(t, stamped)

	// Second stamp loses against the already-set notified_at.
	stamped, err = d.MarkNotified("entry-1", time.Now())
	require.NoError(t, err)
	assert.False(t, stamped)

	got, err := d.GetByEventAndUser("event-1", "user-1")
	require.NoError(t, err)
	assert.True(t, got.Notified())
}

func TestMarkNotifiedUnknownEntry(t *testing.T) {
	d := setupTestDB(t)

	stamped, err := d.MarkNotified("ghost", time.Now())
	require.NoError(t, err)
	assert.False(t, stamped)
}
