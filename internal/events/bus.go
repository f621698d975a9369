// Package events carries listing change notifications from the auction
// service to viewers and the leaderboard. Delivery is at-least-once: a
// subscriber may see an event twice and must treat events as hints to
// re-read state, never as the state itself.
package events

import (
	"context"
	"errors"

	"livestock/internal/models"
)

type Bus interface {
	Publish(ctx context.Context, event models.ListingEvent) error
	// Subscribe streams events for one listing, or for every listing when
	// listingId is empty. The channel is closed once ctx is done.
	Subscribe(ctx context.Context, listingId string) (<-chan models.ListingEvent, error)
	Close() error
}

const subscriberBuffer = 64

var errBusClosed = errors.New("events: bus is closed")
