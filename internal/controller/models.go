package controller

import (
	"encoding/json"
	"fmt"
	"time"

	"livestock/internal/models"

	"github.com/shopspring/decimal"
)

// New application request

type NewApplicationReq struct {
	UserId    string   `json:"userId"`
	Documents []string `json:"documents"`
}

func ParseNewApplicationReq(data []byte) (*NewApplicationReq, error) {
	a := &NewApplicationReq{}

	err := json.Unmarshal(data, a)
	if err != nil {
		return nil, err
	}

	if len(a.UserId) == 0 {
		return nil, fmt.Errorf("empty userId supplied")
	}
	if err = checkLengthLimit(a.UserId, "userId", 100); err != nil {
		return nil, err
	}
	if len(a.Documents) > 20 {
		return nil, fmt.Errorf("too many documents supplied: %d / %d", len(a.Documents), 20)
	}
	for _, doc := range a.Documents {
		if err = checkLengthLimit(doc, "documents", 500); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// New listing request

type NewListingReq struct {
	SellerId     string          `json:"sellerId"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ImageURLs    []string        `json:"imageUrls"`
	StartingBid  decimal.Decimal `json:"startingBid"`
	BidIncrement decimal.Decimal `json:"bidIncrement"`
	EndTime      time.Time       `json:"endTime"`
}

func ParseNewListingReq(data []byte) (*NewListingReq, error) {
	l := &NewListingReq{}

	err := json.Unmarshal(data, l)
	if err != nil {
		return nil, err
	}

	if len(l.SellerId) == 0 {
		return nil, fmt.Errorf("empty sellerId supplied")
	}
	if len(l.Title) == 0 {
		return nil, fmt.Errorf("empty title supplied")
	}
	if l.EndTime.IsZero() {
		return nil, fmt.Errorf("empty endTime supplied")
	}
	if err = checkLengthLimit(l.SellerId, "sellerId", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(l.Title, "title", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(l.Description, "description", 2000); err != nil {
		return nil, err
	}
	if len(l.ImageURLs) > 10 {
		return nil, fmt.Errorf("too many images supplied: %d / %d", len(l.ImageURLs), 10)
	}
	for _, u := range l.ImageURLs {
		if err = checkLengthLimit(u, "imageUrls", 500); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// New bid request

type NewBidReq struct {
	BidderId       string          `json:"bidderId"`
	BidderName     string          `json:"bidderName"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

func ParseNewBidReq(data []byte) (*NewBidReq, error) {
	b := &NewBidReq{}

	err := json.Unmarshal(data, b)
	if err != nil {
		return nil, err
	}

	if len(b.BidderId) == 0 {
		return nil, fmt.Errorf("empty bidderId supplied")
	}
	if err = checkLengthLimit(b.BidderId, "bidderId", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(b.BidderName, "bidderName", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(b.IdempotencyKey, "idempotencyKey", 100); err != nil {
		return nil, err
	}

	return b, nil
}

// Settle request

type SettleReq struct {
	SellerId string `json:"sellerId"`
	// WinnerId overrides the highest bidder when set.
	WinnerId string `json:"winnerId"`
}

func ParseSettleReq(data []byte) (*SettleReq, error) {
	s := &SettleReq{}

	err := json.Unmarshal(data, s)
	if err != nil {
		return nil, err
	}

	if len(s.SellerId) == 0 {
		return nil, fmt.Errorf("empty sellerId supplied")
	}
	if err = checkLengthLimit(s.WinnerId, "winnerId", 100); err != nil {
		return nil, err
	}

	return s, nil
}

// Watch stream message

type WatchMessage struct {
	// Type is "snapshot" for the initial state, "tick" for countdown
	// updates, otherwise the type of the event that caused the message.
	Type             string                    `json:"type"`
	Listing          *models.Listing           `json:"listing,omitempty"`
	Leaderboard      []models.LeaderboardEntry `json:"leaderboard,omitempty"`
	RemainingSeconds int64                     `json:"remainingSeconds"`
}

// Service

func checkLengthLimit(str, fieldName string, limit int) error {
	if len(str) > limit {
		return fmt.Errorf("field '%s' exceeds length limit: %d / %d", fieldName, len(str), limit)
	}
	return nil
}
