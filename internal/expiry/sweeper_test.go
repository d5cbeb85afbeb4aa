package expiry_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"bib-resale/internal/bib"
	"bib-resale/internal/expiry"
	"bib-resale/internal/logger"
	"bib-resale/internal/models"
)

// Mock implementations
type MockCandidateLister struct {
	mock.Mock
}

func (m *MockCandidateLister) ListExpiredCandidates(now time.Time) ([]models.Bib, error) {
	args := m.Called(now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bib), args.Error(1)
}

type MockExpirer struct {
	mock.Mock
}

func (m *MockExpirer) MarkExpired(bibID string) error {
	args := m.Called(bibID)
	return args.Error(0)
}

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client
}

// Tests start here
func TestSweepExpiresCandidates(t *testing.T) {
	mockLister := new(MockCandidateLister)
	mockBibs := new(MockExpirer)
	sweeper := expiry.NewSweeper(mockLister, mockBibs, setupTestRedis(t), time.Minute, logger.NewLogger())

	candidates := []models.Bib{
		{BibID: "bib-1", Status: models.BibListedPublic},
		{BibID: "bib-2", Status: models.BibListedPrivate},
	}
	mockLister.On("ListExpiredCandidates", mock.AnythingOfType("time.Time")).Return(candidates, nil)
	mockBibs.On("MarkExpired", "bib-1").Return(nil)
	mockBibs.On("MarkExpired", "bib-2").Return(nil)

	sweeper.Sweep(context.Background())

	mockBibs.AssertExpectations(t)
}

func TestSweepToleratesLostRaces(t *testing.T) {
	mockLister := new(MockCandidateLister)
	mockBibs := new(MockExpirer)
	sweeper := expiry.NewSweeper(mockLister, mockBibs, setupTestRedis(t), time.Minute, logger.NewLogger())

	candidates := []models.Bib{
		{BibID: "bib-sold-meanwhile", Status: models.BibListedPublic},
		{BibID: "bib-still-listed", Status: models.BibListedPublic},
	}
	mockLister.On("ListExpiredCandidates", mock.AnythingOfType("time.Time")).Return(candidates, nil)
	// A purchase won the race on the first bib.
	mockBibs.On("MarkExpired", "bib-sold-meanwhile").Return(bib.ErrConcurrentModification)
	mockBibs.On("MarkExpired", "bib-still-listed").Return(nil)

	sweeper.Sweep(context.Background())

	mockBibs.AssertExpectations(t)
}

func TestSweepLockKeepsOneSweepInFlight(t *testing.T) {
	client := setupTestRedis(t)

	mockLister := new(MockCandidateLister)
	mockBibs := new(MockExpirer)
	sweeper := expiry.NewSweeper(mockLister, mockBibs, client, time.Minute, logger.NewLogger())

	// Another instance holds the lock.
	ok, err := client.SetNX(context.Background(), "expiry_sweep_lock", "other-instance", time.Minute).Result()
	assert.NoError(t, err)
	assert.True(t, ok)

	sweeper.Sweep(context.Background())

	mockLister.AssertNotCalled(t, "ListExpiredCandidates", mock.Anything)
	mockBibs.AssertNotCalled(t, "MarkExpired", mock.Anything)
}

func TestSweepReleasesLock(t *testing.T) {
	client := setupTestRedis(t)

	mockLister := new(MockCandidateLister)
	mockBibs := new(MockExpirer)
	sweeper := expiry.NewSweeper(mockLister, mockBibs, client, time.Minute, logger.NewLogger())

	mockLister.On("ListExpiredCandidates", mock.AnythingOfType("time.Time")).Return([]models.Bib{}, nil)

	sweeper.Sweep(context.Background())

	exists, err := client.Exists(context.Background(), "expiry_sweep_lock").Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), exists, "lock must be released after the sweep")
}
