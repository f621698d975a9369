package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"livestock/internal/models"

	"go.uber.org/zap"
)

// Clock is the time source for every auction decision.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Countdown emits the time left until endTime, right away and then once per
// tick, rounded down to whole ticks. The last value is zero, after which the
// channel closes. Cancelling ctx stops the countdown and nothing else: the
// listing is closed by CloseExpired, not by its viewers.
func (s *Service) Countdown(ctx context.Context, endTime time.Time) <-chan time.Duration {
	out := make(chan time.Duration, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.countdownTick)
		defer ticker.Stop()

		for {
			remaining := endTime.Sub(s.clock.Now()).Truncate(s.countdownTick)
			if remaining < 0 {
				remaining = 0
			}

			select {
			case out <- remaining:
			case <-ctx.Done():
				return
			}
			if remaining == 0 {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

var errNotDue = errors.New("listing is not due to close")

// CloseExpired moves a listing from Active to Closed if its end time has
// passed. The transition is a conditional update, so any number of callers
// (sweeper ticks, bid attempts, reads, restarts) close it exactly once.
// closed reports whether this call made the transition.
func (s *Service) CloseExpired(ctx context.Context, listingId string) (listing models.Listing, closed bool, err error) {
	err = s.retry(ctx, "close", func() error {
		listing, err = s.store.UpdateListing(ctx, listingId, func(l models.Listing) (models.Listing, error) {
			now := s.clock.Now()
			if l.Status != models.ListingActive || !l.Expired(now) {
				return l, errNotDue
			}
			return closeListing(l, models.CloseExpired, now), nil
		})
		return err
	})

	if errors.Is(err, errNotDue) {
		return listing, false, nil
	}
	if err != nil {
		return listing, false, fmt.Errorf("service.Service.CloseExpired: %w", err)
	}

	s.metrics.ListingsClosed.WithLabelValues(string(models.CloseExpired)).Inc()
	s.log.Info("listing closed",
		zap.String("listing_id", listing.Id),
		zap.String("winner_id", listing.WinnerId),
		zap.String("highest_bid", listing.CurrentHighestBid.String()))
	s.publish(ctx, models.EventListingClosed, listing, nil)

	return listing, true, nil
}

func closeListing(l models.Listing, reason models.CloseReason, now time.Time) models.Listing {
	l.Status = models.ListingClosed
	l.CloseReason = reason
	l.WinnerId = l.HighestBidderId
	l.ClosedAt = now
	l.UpdatedAt = now
	return l
}

// SweepExpired closes every Active listing past its end time and returns
// how many this call closed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.store.ExpiredListings(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("service.Service.SweepExpired: %w", err)
	}

	count := 0
	var errs []error
	for _, id := range ids {
		_, closed, err := s.CloseExpired(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if closed {
			count++
		}
	}

	return count, errors.Join(errs...)
}

// RunSweeper is the server side driver of auction closing. It sweeps once
// on start, which also covers listings that expired while the process was
// down, then every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		count, err := s.SweepExpired(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", zap.Error(err))
		} else if count > 0 {
			s.log.Debug("sweep closed listings", zap.Int("count", count))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
