package service

import (
	"context"
	"fmt"
	"time"

	"livestock/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateListingRequest struct {
	SellerId     string
	Title        string
	Description  string
	ImageURLs    []string
	StartingBid  decimal.Decimal
	BidIncrement decimal.Decimal
	EndTime      time.Time
}

func validAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.LessThan(models.MaxAmount) && d.Equal(d.Round(2))
}

// CreateListing opens a bid-type listing. Only sellers with an approved
// application may post one.
func (s *Service) CreateListing(ctx context.Context, req CreateListingRequest) (models.Listing, error) {
	now := s.clock.Now()

	switch {
	case len(req.SellerId) == 0:
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w: seller is required", models.ErrInvalidListing)
	case len(req.Title) == 0:
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w: title is required", models.ErrInvalidListing)
	case !validAmount(req.StartingBid):
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w: starting bid must be positive, below %s, with at most two decimals", models.ErrInvalidListing, models.MaxAmount)
	case !validAmount(req.BidIncrement):
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w: bid increment must be positive, below %s, with at most two decimals", models.ErrInvalidListing, models.MaxAmount)
	case !req.BidIncrement.LessThan(req.StartingBid):
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w: bid increment must be less than starting bid", models.ErrInvalidListing)
	case !req.EndTime.After(now):
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w: end time must be in the future", models.ErrInvalidListing)
	}

	eligibility, found, err := s.store.GetEligibility(ctx, req.SellerId)
	if err != nil {
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w", err)
	}
	if !found || eligibility.Status != models.ApprovalApproved {
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w", models.ErrSellerNotApproved)
	}

	listing := models.Listing{
		Id:                s.newId(),
		SellerId:          req.SellerId,
		Title:             req.Title,
		Description:       req.Description,
		ImageURLs:         req.ImageURLs,
		StartingBid:       req.StartingBid,
		BidIncrement:      req.BidIncrement,
		CurrentHighestBid: req.StartingBid,
		EndTime:           req.EndTime.UTC(),
		Status:            models.ListingActive,
		CreatedAt:         now,
	}
	if listing.ImageURLs == nil {
		listing.ImageURLs = []string{}
	}

	listing, err = s.store.AddListing(ctx, listing)
	if err != nil {
		return models.Listing{}, fmt.Errorf("service.Service.CreateListing: %w", err)
	}

	s.log.Info("listing created",
		zap.String("listing_id", listing.Id),
		zap.String("seller_id", listing.SellerId),
		zap.Time("end_time", listing.EndTime))
	s.publish(ctx, models.EventListingCreated, listing, nil)

	return listing, nil
}

// GetListing reads a listing. An Active listing past its end time is
// closed by the read, so callers never see an expired auction as open.
func (s *Service) GetListing(ctx context.Context, id string) (models.Listing, error) {
	listing, err := s.store.GetListing(ctx, id)
	if err != nil {
		return listing, fmt.Errorf("service.Service.GetListing: %w", err)
	}

	if listing.Status == models.ListingActive && listing.Expired(s.clock.Now()) {
		listing, _, err = s.CloseExpired(ctx, id)
		if err != nil {
			return listing, fmt.Errorf("service.Service.GetListing: %w", err)
		}
	}

	return listing, nil
}

func (s *Service) ListListings(ctx context.Context, status models.ListingStatus, limit, offset int) ([]models.Listing, error) {
	if len(status) > 0 && !models.ValidListingStatus(status) {
		return nil, fmt.Errorf("service.Service.ListListings: %w: unknown status %q", models.ErrValidation, status)
	}

	// expired listings still stored as Active would otherwise land on the
	// wrong page, the store pages before they are closed
	if status == models.ListingActive || status == models.ListingClosed {
		if _, err := s.SweepExpired(ctx); err != nil {
			return nil, fmt.Errorf("service.Service.ListListings: %w", err)
		}
	}

	listings, err := s.store.ListListings(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ListListings: %w", err)
	}

	now := s.clock.Now()
	result := listings[:0]
	for _, l := range listings {
		if l.Status == models.ListingActive && l.Expired(now) {
			l, _, err = s.CloseExpired(ctx, l.Id)
			if err != nil {
				return nil, fmt.Errorf("service.Service.ListListings: %w", err)
			}
		}
		if len(status) == 0 || l.Status == status {
			result = append(result, l)
		}
	}

	return result, nil
}

// CancelListing lets the seller end an Active auction early. No winner is
// recorded for a canceled listing. A listing already past its end time
// is closed as expired instead, keeping its winner.
func (s *Service) CancelListing(ctx context.Context, sellerId, id string) (models.Listing, error) {
	var reason models.CloseReason
	var listing models.Listing

	err := s.retry(ctx, "cancel", func() error {
		var err error
		listing, err = s.store.UpdateListing(ctx, id, func(l models.Listing) (models.Listing, error) {
			if l.SellerId != sellerId {
				return l, models.ErrForbidden
			}
			if l.Status != models.ListingActive {
				return l, models.ErrInvalidTransition
			}

			now := s.clock.Now()
			if l.Expired(now) {
				reason = models.CloseExpired
				return closeListing(l, models.CloseExpired, now), nil
			}

			reason = models.CloseCanceled
			l = closeListing(l, models.CloseCanceled, now)
			l.WinnerId = ""
			return l, nil
		})
		return err
	})
	if err != nil {
		return listing, fmt.Errorf("service.Service.CancelListing: %w", err)
	}

	s.metrics.ListingsClosed.WithLabelValues(string(reason)).Inc()
	s.log.Info("listing closed",
		zap.String("listing_id", listing.Id),
		zap.String("reason", string(reason)))
	s.publish(ctx, models.EventListingClosed, listing, nil)

	return listing, nil
}

// MarkSold settles a closed auction. An empty winnerId settles to the
// highest bidder; any other value overrides the ledger outcome.
func (s *Service) MarkSold(ctx context.Context, sellerId, id, winnerId string) (models.Listing, error) {
	// an expired Active listing goes through Closed first
	if _, err := s.GetListing(ctx, id); err != nil {
		return models.Listing{}, fmt.Errorf("service.Service.MarkSold: %w", err)
	}

	var listing models.Listing
	err := s.retry(ctx, "settle", func() error {
		var err error
		listing, err = s.store.UpdateListing(ctx, id, func(l models.Listing) (models.Listing, error) {
			if l.SellerId != sellerId {
				return l, models.ErrForbidden
			}
			if l.Status != models.ListingClosed || l.CloseReason == models.CloseCanceled {
				return l, models.ErrInvalidTransition
			}

			winner := winnerId
			if len(winner) == 0 {
				winner = l.HighestBidderId
			}
			if len(winner) == 0 {
				return l, models.ErrNoWinner
			}

			now := s.clock.Now()
			l.Status = models.ListingSettled
			l.WinnerId = winner
			l.SettledAt = now
			l.UpdatedAt = now
			return l, nil
		})
		return err
	})
	if err != nil {
		return listing, fmt.Errorf("service.Service.MarkSold: %w", err)
	}

	s.metrics.ListingsSettled.Inc()
	fields := []zap.Field{
		zap.String("listing_id", listing.Id),
		zap.String("winner_id", listing.WinnerId),
	}
	if listing.WinnerId != listing.HighestBidderId {
		fields = append(fields, zap.String("highest_bidder_id", listing.HighestBidderId), zap.Bool("override", true))
	}
	s.log.Info("listing settled", fields...)
	s.publish(ctx, models.EventListingSettled, listing, nil)

	return listing, nil
}
