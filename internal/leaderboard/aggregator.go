package leaderboard

import (
	"context"
	"fmt"
	"sync"

	"livestock/internal/events"
	"livestock/internal/models"

	"go.uber.org/zap"
)

// Ledger is the read side the aggregator ranks from.
type Ledger interface {
	GetListing(ctx context.Context, id string) (models.Listing, error)
	ListBids(ctx context.Context, listingId string) ([]models.Bid, error)
}

type board struct {
	bidCount int
	entries  []models.LeaderboardEntry
}

// Aggregator keeps a ranked view per listing, rebuilt from the ledger
// whenever a bid is accepted. A cached view is only served while its bid
// count matches the listing snapshot, so a missed notification costs a
// recompute, never a stale answer.
type Aggregator struct {
	ledger Ledger
	bus    events.Bus
	size   int
	log    *zap.Logger

	mu     sync.RWMutex
	boards map[string]board
}

func NewAggregator(ledger Ledger, bus events.Bus, size int, log *zap.Logger) *Aggregator {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		ledger: ledger,
		bus:    bus,
		size:   size,
		log:    log.Named("leaderboard"),
		boards: make(map[string]board),
	}
}

// Run maintains the cache from change notifications until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	ch, err := a.bus.Subscribe(ctx, "")
	if err != nil {
		return fmt.Errorf("leaderboard.Aggregator.Run: %w", err)
	}

	for event := range ch {
		if event.Type == models.EventListingClosed || event.Type == models.EventListingSettled {
			// no more bids, reads rank straight from the ledger
			a.drop(event.ListingId)
			continue
		}
		if event.Type != models.EventBidAccepted {
			continue
		}
		if a.fresh(event.ListingId, event.Listing.BidCount) {
			// duplicate or already covered by a later recompute
			continue
		}
		if _, err := a.refresh(ctx, event.ListingId, event.Listing.BidCount); err != nil {
			a.log.Warn("leaderboard refresh failed", zap.String("listing_id", event.ListingId), zap.Error(err))
		}
	}
	return ctx.Err()
}

func (a *Aggregator) fresh(listingId string, bidCount int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.boards[listingId]
	return ok && b.bidCount >= bidCount
}

func (a *Aggregator) drop(listingId string) {
	a.mu.Lock()
	delete(a.boards, listingId)
	a.mu.Unlock()
}

func (a *Aggregator) refresh(ctx context.Context, listingId string, bidCount int) ([]models.LeaderboardEntry, error) {
	bids, err := a.ledger.ListBids(ctx, listingId)
	if err != nil {
		return nil, err
	}
	entries := TopBidders(bids, a.size)
	if len(bids) > bidCount {
		bidCount = len(bids)
	}

	a.mu.Lock()
	if b, ok := a.boards[listingId]; !ok || b.bidCount <= bidCount {
		a.boards[listingId] = board{bidCount: bidCount, entries: entries}
	}
	a.mu.Unlock()

	return entries, nil
}

// Top returns up to n leaders of a listing. Requests beyond the cached
// size are ranked straight from the ledger.
func (a *Aggregator) Top(ctx context.Context, listingId string, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		n = a.size
	}
	if n > a.size {
		bids, err := a.ledger.ListBids(ctx, listingId)
		if err != nil {
			return nil, fmt.Errorf("leaderboard.Aggregator.Top: %w", err)
		}
		return TopBidders(bids, n), nil
	}

	listing, err := a.ledger.GetListing(ctx, listingId)
	if err != nil {
		return nil, fmt.Errorf("leaderboard.Aggregator.Top: %w", err)
	}
	if listing.Status != models.ListingActive {
		bids, err := a.ledger.ListBids(ctx, listingId)
		if err != nil {
			return nil, fmt.Errorf("leaderboard.Aggregator.Top: %w", err)
		}
		return TopBidders(bids, n), nil
	}

	a.mu.RLock()
	b, ok := a.boards[listingId]
	a.mu.RUnlock()

	entries := b.entries
	if !ok || b.bidCount != listing.BidCount {
		entries, err = a.refresh(ctx, listingId, listing.BidCount)
		if err != nil {
			return nil, fmt.Errorf("leaderboard.Aggregator.Top: %w", err)
		}
	}

	if len(entries) > n {
		entries = entries[:n]
	}
	result := make([]models.LeaderboardEntry, len(entries))
	copy(result, entries)
	return result, nil
}
