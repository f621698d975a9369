package models

import "time"

type EventType string

const (
	EventListingCreated EventType = "listing_created"
	EventBidAccepted    EventType = "bid_accepted"
	EventListingClosed  EventType = "listing_closed"
	EventListingSettled EventType = "listing_settled"
)

// ListingEvent is a change notification for one listing. Delivery is
// at-least-once, consumers must tolerate duplicates.
type ListingEvent struct {
	Type      EventType `json:"type"`
	ListingId string    `json:"listingId"`
	Listing   Listing   `json:"listing"`
	Bid       *Bid      `json:"bid,omitempty"`
	At        time.Time `json:"at"`
}
