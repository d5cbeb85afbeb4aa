package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bib-resale/internal/bib"
	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

const sweepLockKey = "expiry_sweep_lock"

type CandidateLister interface {
	ListExpiredCandidates(now time.Time) ([]models.Bib, error)
}

type Expirer interface {
	MarkExpired(bibID string) error
}

// Sweeper periodically expires listed bibs whose event has already started.
// The Redis lock keeps at most one sweep in flight across all instances.
type Sweeper struct {
	Candidates CandidateLister
	Bibs       Expirer
	Redis      *redis.Client
	Interval   time.Duration
	Logger     *logger.Logger
}

func NewSweeper(candidates CandidateLister, bibs Expirer, redisClient *redis.Client, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		Candidates: candidates,
		Bibs:       bibs,
		Redis:      redisClient,
		Interval:   interval,
		Logger:     log,
	}
}

// Run sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. It is safe to call from multiple processes: only the
// lock holder actually sweeps.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.Redis != nil {
		ok, err := s.Redis.SetNX(ctx, sweepLockKey, time.Now().Format(time.RFC3339), s.Interval).Result()
		if err != nil {
			s.Logger.Warn("EXPIRY", fmt.Sprintf("failed to acquire sweep lock: %v", err))
			return
		}
		if !ok {
			return
		}
		defer s.Redis.Del(context.Background(), sweepLockKey)
	}

	var candidates []models.Bib
	err := store.Retry(ctx, 3, 200*time.Millisecond, func() error {
		var listErr error
		candidates, listErr = s.Candidates.ListExpiredCandidates(time.Now())
		return listErr
	})
	if err != nil {
		s.Logger.Error("EXPIRY", fmt.Sprintf("failed to list expiry candidates: %v", err))
		return
	}
	if len(candidates) == 0 {
		return
	}

	expired := 0
	for _, candidate := range candidates {
		if err := s.Bibs.MarkExpired(candidate.BibID); err != nil {
			// A concurrent sale or withdrawal winning the race is fine; the
			// bib simply is no longer a candidate.
			if errors.Is(err, bib.ErrConcurrentModification) || errors.Is(err, bib.ErrInvalidTransition) {
				continue
			}
			s.Logger.Warn("EXPIRY", fmt.Sprintf("failed to expire bib %s: %v", candidate.BibID, err))
			continue
		}
		expired++
	}

	s.Logger.Info("EXPIRY", fmt.Sprintf("sweep expired %d of %d candidates", expired, len(candidates)))
}
