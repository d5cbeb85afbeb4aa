package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis, so the tests
// need no real Redis server.
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

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	return client
}

func TestFirstNotificationClaimsOnce(t *testing.T) {
	d := NewDedupe(setupTestRedis(t))

	first, err := d.FirstNotification("entry-1", "bib-1")
	require.NoError(t, err)
	assert.True(t, first, "first claim should win")

	first, err = d.FirstNotification("entry-1", "bib-1")
	require.NoError(t, err)
	assert.False(t, first, "repeated claim must lose")
}

func TestFirstNotificationIsPerPair(t *testing.T) {
	d := NewDedupe(setupTestRedis(t))

	first, err := d.FirstNotification("entry-1", "bib-1")
	require.NoError(t, err)
	assert.True(t, first)

	// Same entry, different bib availability: its own marker.
	first, err = d.FirstNotification("entry-1", "bib-2")
	require.NoError(t, err)
	assert.True(t, first)

	// Different entry, same bib.
	first, err = d.FirstNotification("entry-2", "bib-1")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestClearReopensMarker(t *testing.T) {
	d := NewDedupe(setupTestRedis(t))

	first, err := d.FirstNotification("entry-1", "bib-1")
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, d.Clear("entry-1", "bib-1"))

	first, err = d.FirstNotification("entry-1", "bib-1")
	require.NoError(t, err)
	assert.True(t, first, "cleared marker can be claimed again")
}

func TestMarkerTTLFromEnvironment(t *testing.T) {
	d := NewDedupe(setupTestRedis(t))

	t.Setenv("WAITLIST_MARKER_TTL_HOURS", "not-a-number")
	assert.Equal(t, float64(24), d.markerTTL().Hours())

	t.Setenv("WAITLIST_MARKER_TTL_HOURS", "6")
	assert.Equal(t, float64(6), d.markerTTL().Hours())
}
