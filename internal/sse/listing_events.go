package sse

import (
	"context"
	"sync"

	"bib-resale/internal/models"
)

// ListingEventEmitter manages SSE connections and broadcasts newly listed
// bibs to buyers watching an event. Waitlist notifications are delivered
// through it as well.
type ListingEventEmitter struct {
	eventClients     map[string][]chan models.ListingNotice
	eventClientMutex sync.RWMutex
}

func NewListingEventEmitter() *ListingEventEmitter {
	return &ListingEventEmitter{
		eventClients: make(map[string][]chan models.ListingNotice),
	}
}

// SubscribeToEvent adds a client to an event's listing feed. The client is
// removed when its context ends.
func (e *ListingEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) chan models.ListingNotice {
	clientChan := make(chan models.ListingNotice, 10)

	e.eventClientMutex.Lock()
	e.eventClients[eventID] = append(e.eventClients[eventID], clientChan)
	e.eventClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(eventID, clientChan)
	}()

	return clientChan
}

// EmitListing broadcasts a newly available bib to every subscriber of its
// event. Slow clients are skipped rather than blocking the emitter.
func (e *ListingEventEmitter) EmitListing(notice models.ListingNotice) {
	// The read lock is held across the sends: removeClient closes channels
	// under the write lock, so no channel can close mid-broadcast. The
	// sends never block, so nothing stalls under the lock either.
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()

	for _, clientChan := range e.eventClients[notice.EventID] {
		select {
		case clientChan <- notice:
		default:
		}
	}
}

func (e *ListingEventEmitter) removeClient(eventID string, clientChan chan models.ListingNotice) {
	e.eventClientMutex.Lock()
	defer e.eventClientMutex.Unlock()

	clients := e.eventClients[eventID]
	for i, c := range clients {
		if c == clientChan {
			e.eventClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(c)
			break
		}
	}
	if len(e.eventClients[eventID]) == 0 {
		delete(e.eventClients, eventID)
	}
}
