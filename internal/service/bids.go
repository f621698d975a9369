package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livestock/internal/leaderboard"
	"livestock/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PlaceBidRequest struct {
	ListingId      string
	BidderId       string
	BidderName     string
	Amount         decimal.Decimal
	IdempotencyKey string
}

type BidResult struct {
	Bid     models.Bid     `json:"bid"`
	Listing models.Listing `json:"listing"`
	// Replayed is set when the idempotency key matched an earlier accepted bid.
	Replayed bool `json:"replayed"`
}

// ValidateBid checks a bid against a listing snapshot. It must be called
// with the snapshot locked, see Store.CommitBid. Checks run in a fixed
// order: closed auction, amount too low, seller bidding on own listing.
func ValidateBid(l models.Listing, bidderId string, amount decimal.Decimal, now time.Time) error {
	if !l.OpenAt(now) {
		return models.ErrAuctionClosed
	}

	if minBid := l.MinNextBid(); amount.LessThan(minBid) {
		return fmt.Errorf("%w: minimum next bid is %s", models.ErrBidTooLow, minBid.StringFixed(2))
	}

	if bidderId == l.SellerId {
		return models.ErrSelfBid
	}

	return nil
}

// PlaceBid validates a bid against the current snapshot and appends it to
// the ledger in one atomic step. Of two racing bids the one committed
// second is checked against the first, never against the snapshot both
// bidders saw.
func (s *Service) PlaceBid(ctx context.Context, req PlaceBidRequest) (BidResult, error) {
	if len(req.ListingId) == 0 || len(req.BidderId) == 0 {
		return BidResult{}, fmt.Errorf("service.Service.PlaceBid: %w: listing and bidder are required", models.ErrInvalidBid)
	}
	if !validAmount(req.Amount) {
		return BidResult{}, fmt.Errorf("service.Service.PlaceBid: %w: amount must be positive, below %s, with at most two decimals", models.ErrInvalidBid, models.MaxAmount)
	}

	start := time.Now()
	var result BidResult
	err := s.retry(ctx, "bid", func() error {
		var err error
		result, err = s.commitBid(ctx, req)
		return err
	})
	s.metrics.BidCommitDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.BidsRejected.WithLabelValues(rejectReason(err)).Inc()

		if errors.Is(err, models.ErrAuctionClosed) {
			s.closeIfExpired(ctx, req.ListingId)
		}
		if models.IsValidation(err) || models.IsNotFound(err) {
			s.log.Debug("bid rejected",
				zap.String("listing_id", req.ListingId),
				zap.String("bidder_id", req.BidderId),
				zap.String("amount", req.Amount.String()),
				zap.Error(err))
		} else {
			s.log.Error("bid failed",
				zap.String("listing_id", req.ListingId),
				zap.String("bidder_id", req.BidderId),
				zap.Error(err))
		}
		return BidResult{}, fmt.Errorf("service.Service.PlaceBid: %w", err)
	}

	if result.Replayed {
		return result, nil
	}

	s.metrics.BidsAccepted.Inc()
	s.log.Info("bid accepted",
		zap.String("listing_id", result.Listing.Id),
		zap.String("bid_id", result.Bid.Id),
		zap.String("bidder_id", result.Bid.BidderId),
		zap.String("amount", result.Bid.Amount.String()),
		zap.Int("bid_count", result.Listing.BidCount))
	s.publish(ctx, models.EventBidAccepted, result.Listing, &result.Bid)

	return result, nil
}

func (s *Service) commitBid(ctx context.Context, req PlaceBidRequest) (BidResult, error) {
	listing, bid, err := s.store.CommitBid(ctx, req.ListingId, req.IdempotencyKey, func(l models.Listing) (models.Bid, error) {
		now := s.clock.Now()
		if err := ValidateBid(l, req.BidderId, req.Amount, now); err != nil {
			return models.Bid{}, err
		}
		return models.Bid{
			Id:         s.newId(),
			BidderId:   req.BidderId,
			BidderName: req.BidderName,
			Amount:     req.Amount,
			CreatedAt:  now,
		}, nil
	})

	if errors.Is(err, models.ErrDuplicateBid) {
		if bid.BidderId != req.BidderId || !bid.Amount.Equal(req.Amount) {
			return BidResult{}, models.ErrIdempotencyReuse
		}
		return BidResult{Bid: bid, Listing: listing, Replayed: true}, nil
	}
	if err != nil {
		return BidResult{}, err
	}

	return BidResult{Bid: bid, Listing: listing}, nil
}

// closeIfExpired turns a bid that hit an expired but still Active listing
// into the durable close.
func (s *Service) closeIfExpired(ctx context.Context, listingId string) {
	if _, _, err := s.CloseExpired(ctx, listingId); err != nil {
		s.log.Warn("close after late bid failed", zap.String("listing_id", listingId), zap.Error(err))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrListingNotFound):
		return "listing_not_found"
	case errors.Is(err, models.ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, models.ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, models.ErrSelfBid):
		return "self_bid"
	case errors.Is(err, models.ErrIdempotencyReuse):
		return "idempotency_reuse"
	case models.IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}

// ListBids returns the ledger of a listing in acceptance order.
func (s *Service) ListBids(ctx context.Context, listingId string) ([]models.Bid, error) {
	if _, err := s.store.GetListing(ctx, listingId); err != nil {
		return nil, fmt.Errorf("service.Service.ListBids: %w", err)
	}

	bids, err := s.store.ListBids(ctx, listingId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ListBids: %w", err)
	}
	return bids, nil
}

// TopBidders ranks the best bid of each bidder on a listing.
func (s *Service) TopBidders(ctx context.Context, listingId string, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		n = s.cfg.LeaderboardSize
	}
	if n <= 0 {
		n = leaderboard.DefaultSize
	}

	if _, err := s.GetListing(ctx, listingId); err != nil {
		return nil, fmt.Errorf("service.Service.TopBidders: %w", err)
	}

	entries, err := s.leaders.Top(ctx, listingId, n)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TopBidders: %w", err)
	}
	return entries, nil
}

type WinnerResult struct {
	Listing models.Listing `json:"listing"`
	// WinningBid is the highest accepted bid, nil when nobody bid.
	WinningBid *models.Bid `json:"winningBid,omitempty"`
	// WinnerId is the settled buyer when the seller overrode the ledger,
	// otherwise the author of WinningBid.
	WinnerId string `json:"winnerId,omitempty"`
}

// Winner derives the outcome of a closed auction from its ledger.
func (s *Service) Winner(ctx context.Context, listingId string) (WinnerResult, error) {
	listing, err := s.GetListing(ctx, listingId)
	if err != nil {
		return WinnerResult{}, fmt.Errorf("service.Service.Winner: %w", err)
	}
	if listing.Status == models.ListingActive {
		return WinnerResult{}, fmt.Errorf("service.Service.Winner: %w", models.ErrAuctionActive)
	}
	// a canceled auction has no winner whatever its ledger holds
	if listing.CloseReason == models.CloseCanceled {
		return WinnerResult{Listing: listing}, nil
	}

	bids, err := s.store.ListBids(ctx, listingId)
	if err != nil {
		return WinnerResult{}, fmt.Errorf("service.Service.Winner: %w", err)
	}

	result := WinnerResult{Listing: listing, WinnerId: listing.WinnerId}
	for i := range bids {
		if result.WinningBid == nil || bids[i].Amount.GreaterThan(result.WinningBid.Amount) {
			result.WinningBid = &bids[i]
		}
	}
	if len(result.WinnerId) == 0 && result.WinningBid != nil {
		result.WinnerId = result.WinningBid.BidderId
	}

	return result, nil
}
