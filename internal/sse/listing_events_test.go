package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bib-resale/internal/models"
)

func TestSubscribersReceiveListings(t *testing.T) {
	e := NewListingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := e.SubscribeToEvent(ctx, "event-1")
	ch2 := e.SubscribeToEvent(ctx, "event-1")
	other := e.SubscribeToEvent(ctx, "event-2")

	notice := models.ListingNotice{EventID: "event-1", BibID: "bib-1", Timestamp: time.Now()}
	e.EmitListing(notice)

	for _, ch := range []chan models.ListingNotice{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "bib-1", got.BibID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the listing")
		}
	}

	select {
	case got := <-other:
		t.Fatalf("event-2 subscriber received listing for %s", got.EventID)
	default:
	}
}

func TestCancelledSubscriberIsRemoved(t *testing.T) {
	e := NewListingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.SubscribeToEvent(ctx, "event-1")
	cancel()

	// The channel closes once the removal goroutine runs.
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after context cancellation")
	}

	// Emitting afterwards must not panic or deliver anything.
	e.EmitListing(models.ListingNotice{EventID: "event-1", BibID: "bib-2"})
}

func TestEmitDuringUnsubscribeDoesNotPanic(t *testing.T) {
	e := NewListingEventEmitter()
	done := make(chan struct{})

	// Broadcast continuously while subscribers come and go; a channel
	// closed between snapshot and send would panic the emitter.
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			e.EmitListing(models.ListingNotice{EventID: "event-1", BibID: "bib-x"})
		}
	}()

	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch := e.SubscribeToEvent(ctx, "event-1")
		cancel()
		// Drain until removal closes the channel.
		for range ch {
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emitter did not finish broadcasting")
	}
}

func TestSlowSubscriberDoesNotBlockEmit(t *testing.T) {
	e := NewListingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.SubscribeToEvent(ctx, "event-1")

	// Fill the buffer and keep emitting; the emitter must not block.
	for i := 0; i < 25; i++ {
		e.EmitListing(models.ListingNotice{EventID: "event-1", BibID: "bib-x"})
	}

	require.Len(t, ch, 10)
}
