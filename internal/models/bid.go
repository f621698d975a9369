package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the exclusive upper bound of any money value, the widest
// amount the ledger columns hold.
var MaxAmount = decimal.New(1, 12)

type Bid struct {
	Id             string          `json:"id"`
	ListingId      string          `json:"listingId"`
	BidderId       string          `json:"bidderId"`
	BidderName     string          `json:"bidderName"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type LeaderboardEntry struct {
	BidderId    string          `json:"bidderId"`
	BidderName  string          `json:"bidderName"`
	MaxAmount   decimal.Decimal `json:"maxAmount"`
	LastBidTime time.Time       `json:"lastBidTime"`
}
