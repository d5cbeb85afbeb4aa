package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every storage layer. Callers match them with
// errors.Is so the concrete backend (bun/postgres, lib/pq) stays swappable.
var (
	ErrNotFound         = errors.New("record not found")
	ErrRevisionConflict = errors.New("revision conflict")
	ErrDuplicate        = errors.New("duplicate record")
	ErrUnavailable      = errors.New("store unavailable")
)

// IsRetryable reports whether an error is a transient store failure worth
// retrying. Revision conflicts are never retryable here: the caller has to
// re-read the record and decide for itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Retry runs fn with bounded exponential backoff while it keeps returning
// ErrUnavailable. Any other error stops the loop immediately.
func Retry(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	backoff := initial
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
