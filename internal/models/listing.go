package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingActive  ListingStatus = "Active"
	ListingClosed  ListingStatus = "Closed"
	ListingSettled ListingStatus = "Settled"
)

func ValidListingStatus(s ListingStatus) bool {
	switch s {
	case ListingActive, ListingClosed, ListingSettled:
		return true
	default:
		return false
	}
}

// CloseReason records what moved a listing out of Active.
type CloseReason string

const (
	CloseExpired  CloseReason = "Expired"
	CloseCanceled CloseReason = "Canceled"
)

type Listing struct {
	Id                string          `json:"id"`
	SellerId          string          `json:"sellerId"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	ImageURLs         []string        `json:"imageUrls"`
	StartingBid       decimal.Decimal `json:"startingBid"`
	BidIncrement      decimal.Decimal `json:"bidIncrement"`
	CurrentHighestBid decimal.Decimal `json:"currentHighestBid"`
	HighestBidderId   string          `json:"highestBidderId,omitempty"`
	HighestBidderName string          `json:"highestBidderName,omitempty"`
	BidCount          int             `json:"bidCount"`
	EndTime           time.Time       `json:"endTime"`
	Status            ListingStatus   `json:"status"`
	CloseReason       CloseReason     `json:"closeReason,omitempty"`
	WinnerId          string          `json:"winnerId,omitempty"`
	ClosedAt          time.Time       `json:"closedAt,omitempty"`
	SettledAt         time.Time       `json:"settledAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"-"`
}

// MinNextBid is the lowest amount the next bid may carry.
func (l Listing) MinNextBid() decimal.Decimal {
	return l.CurrentHighestBid.Add(l.BidIncrement)
}

// Expired reports whether the listing is past its end time at now.
func (l Listing) Expired(now time.Time) bool {
	return !now.Before(l.EndTime)
}

// OpenAt reports whether bids may be accepted at now.
func (l Listing) OpenAt(now time.Time) bool {
	return l.Status == ListingActive && !l.Expired(now)
}

// ApplyBid advances the snapshot by one accepted bid.
func (l Listing) ApplyBid(bid Bid) Listing {
	l.CurrentHighestBid = bid.Amount
	l.HighestBidderId = bid.BidderId
	l.HighestBidderName = bid.BidderName
	l.BidCount++
	l.UpdatedAt = bid.CreatedAt
	return l
}
