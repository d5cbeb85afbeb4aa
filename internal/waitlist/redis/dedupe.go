package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Dedupe records which (entry, bib) notification pairs have already fired,
// so re-running a notification pass for the same bib availability never
// notifies a buyer twice. SetNX is the arbiter, same as a lock key.
type Dedupe struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewDedupe(client *redis.Client) *Dedupe {
	return &Dedupe{Client: client, Logger: log.Default()}
}

// markerTTL returns how long a fired-notification marker is kept. The marker
// only needs to outlive notification passes for the same bib, not the entry.
func (d *Dedupe) markerTTL() time.Duration {
	defaultTTL := 24 * time.Hour

	ttlStr := os.Getenv("WAITLIST_MARKER_TTL_HOURS")
	if ttlStr == "" {
		return defaultTTL
	}
	ttlHours, err := strconv.Atoi(ttlStr)
	if err != nil {
		d.Logger.Println("REDIS: Invalid WAITLIST_MARKER_TTL_HOURS value '" + ttlStr + "', using default 24 hours")
		return defaultTTL
	}
	return time.Duration(ttlHours) * time.Hour
}

// FirstNotification claims the (entry, bib) pair, returning true exactly once.
func (d *Dedupe) FirstNotification(entryID, bibID string) (bool, error) {
	key := fmt.Sprintf("waitlist_notify:%s:%s", entryID, bibID)
	ok, err := d.Client.SetNX(context.Background(), key, time.Now().Format(time.RFC3339), d.markerTTL()).Result()
	return ok, err
}

// Clear removes a marker, used when a notification could not be delivered and
// should be attempted again by a later pass.
func (d *Dedupe) Clear(entryID, bibID string) error {
	key := fmt.Sprintf("waitlist_notify:%s:%s", entryID, bibID)
	_, err := d.Client.Del(context.Background(), key).Result()
	return err
}
