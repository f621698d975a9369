// Package memory is an in-process store with the same atomicity guarantees
// as the postgres repository: every listing has its own lock, so writes to
// one listing are serialized while different listings proceed in parallel.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"livestock/internal/models"
)

type listingEntry struct {
	mu      sync.Mutex
	listing models.Listing
	bids    []models.Bid
	keys    map[string]int
}

type eligibilityEntry struct {
	mu     sync.Mutex
	record models.SellerEligibility
	found  bool
}

type Store struct {
	mu          sync.RWMutex
	listings    map[string]*listingEntry
	eligibility map[string]*eligibilityEntry
}

func NewStore() *Store {
	return &Store{
		listings:    make(map[string]*listingEntry),
		eligibility: make(map[string]*eligibilityEntry),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) entry(id string) (*listingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.listings[id]
	return e, ok
}

//// Listings

func (s *Store) AddListing(ctx context.Context, l models.Listing) (models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return l, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.Id]; ok {
		return l, fmt.Errorf("memory.Store.AddListing: listing %s already exists: %w", l.Id, models.ErrConflict)
	}
	l.UpdatedAt = l.CreatedAt
	s.listings[l.Id] = &listingEntry{listing: l, keys: make(map[string]int)}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return models.Listing{}, err
	}

	e, ok := s.entry(id)
	if !ok {
		return models.Listing{}, fmt.Errorf("memory.Store.GetListing: %w", models.ErrListingNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listing, nil
}

func (s *Store) ListListings(ctx context.Context, status models.ListingStatus, limit, offset int) ([]models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]*listingEntry, 0, len(s.listings))
	for _, e := range s.listings {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var result []models.Listing
	for _, e := range entries {
		e.mu.Lock()
		l := e.listing
		e.mu.Unlock()
		if len(status) == 0 || l.Status == status {
			result = append(result, l)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EndTime.Equal(result[j].EndTime) {
			return result[i].Id < result[j].Id
		}
		return result[i].EndTime.Before(result[j].EndTime)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ExpiredListings(ctx context.Context, now time.Time) ([]string, error) {
	listings, err := s.ListListings(ctx, models.ListingActive, 0, 0)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, l := range listings {
		if l.Expired(now) {
			ids = append(ids, l.Id)
		}
	}
	return ids, nil
}

func (s *Store) UpdateListing(ctx context.Context, id string, fn func(models.Listing) (models.Listing, error)) (models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return models.Listing{}, err
	}

	e, ok := s.entry(id)
	if !ok {
		return models.Listing{}, fmt.Errorf("memory.Store.UpdateListing: %w", models.ErrListingNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := fn(e.listing)
	if err != nil {
		return result, fmt.Errorf("memory.Store.UpdateListing: %w", err)
	}

	// only lifecycle fields may change here, the bid snapshot belongs to CommitBid
	updated := e.listing
	updated.Status = result.Status
	updated.CloseReason = result.CloseReason
	updated.WinnerId = result.WinnerId
	updated.ClosedAt = result.ClosedAt
	updated.SettledAt = result.SettledAt
	updated.UpdatedAt = result.UpdatedAt
	e.listing = updated
	return updated, nil
}

//// Bids

func (s *Store) CommitBid(ctx context.Context, listingId, idempotencyKey string, validate func(models.Listing) (models.Bid, error)) (models.Listing, models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return models.Listing{}, models.Bid{}, err
	}

	e, ok := s.entry(listingId)
	if !ok {
		return models.Listing{}, models.Bid{}, fmt.Errorf("memory.Store.CommitBid: %w", models.ErrListingNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(idempotencyKey) > 0 {
		if i, ok := e.keys[idempotencyKey]; ok {
			return e.listing, e.bids[i], models.ErrDuplicateBid
		}
	}

	bid, err := validate(e.listing)
	if err != nil {
		return e.listing, bid, fmt.Errorf("memory.Store.CommitBid: %w", err)
	}
	bid.ListingId = listingId
	bid.IdempotencyKey = idempotencyKey

	e.bids = append(e.bids, bid)
	if len(idempotencyKey) > 0 {
		e.keys[idempotencyKey] = len(e.bids) - 1
	}
	e.listing = e.listing.ApplyBid(bid)

	return e.listing, bid, nil
}

func (s *Store) ListBids(ctx context.Context, listingId string) ([]models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := s.entry(listingId)
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]models.Bid, len(e.bids))
	copy(result, e.bids)
	return result, nil
}

//// Eligibility

func (s *Store) GetEligibility(ctx context.Context, userId string) (models.SellerEligibility, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.SellerEligibility{}, false, err
	}

	s.mu.RLock()
	e, ok := s.eligibility[userId]
	s.mu.RUnlock()
	if !ok {
		return models.SellerEligibility{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, e.found, nil
}

func (s *Store) UpdateEligibility(ctx context.Context, userId string, fn func(e models.SellerEligibility, found bool) (models.SellerEligibility, error)) (models.SellerEligibility, error) {
	if err := ctx.Err(); err != nil {
		return models.SellerEligibility{}, err
	}

	s.mu.Lock()
	e, ok := s.eligibility[userId]
	if !ok {
		e = &eligibilityEntry{record: models.SellerEligibility{UserId: userId, Status: models.ApprovalNone}}
		s.eligibility[userId] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := fn(e.record, e.found)
	if err != nil {
		return result, fmt.Errorf("memory.Store.UpdateEligibility: %w", err)
	}
	e.record = result
	e.found = true
	return result, nil
}
