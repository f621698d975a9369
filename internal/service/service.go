package service

import (
	"context"
	"fmt"
	"time"

	"livestock/internal/config"
	"livestock/internal/events"
	"livestock/internal/leaderboard"
	"livestock/internal/metrics"
	"livestock/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the document store the auction core runs on. UpdateListing,
// CommitBid and UpdateEligibility are atomic per key: fn runs against the
// latest committed record while concurrent writers of the same key wait.
type Store interface {
	AddListing(ctx context.Context, l models.Listing) (models.Listing, error)
	GetListing(ctx context.Context, id string) (models.Listing, error)
	ListListings(ctx context.Context, status models.ListingStatus, limit, offset int) ([]models.Listing, error)
	ExpiredListings(ctx context.Context, now time.Time) ([]string, error)
	UpdateListing(ctx context.Context, id string, fn func(models.Listing) (models.Listing, error)) (models.Listing, error)

	CommitBid(ctx context.Context, listingId, idempotencyKey string, validate func(models.Listing) (models.Bid, error)) (models.Listing, models.Bid, error)
	ListBids(ctx context.Context, listingId string) ([]models.Bid, error)

	GetEligibility(ctx context.Context, userId string) (models.SellerEligibility, bool, error)
	UpdateEligibility(ctx context.Context, userId string, fn func(e models.SellerEligibility, found bool) (models.SellerEligibility, error)) (models.SellerEligibility, error)
}

type Service struct {
	store   Store
	bus     events.Bus
	leaders *leaderboard.Aggregator
	clock   Clock
	cfg     config.AuctionConfig
	metrics *metrics.Metrics
	log     *zap.Logger
	newId   func() string

	countdownTick time.Duration
}

type Option func(*Service)

func WithBus(bus events.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithConfig(cfg config.AuctionConfig) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithCountdownTick changes the countdown granularity, one second by default.
func WithCountdownTick(d time.Duration) Option {
	return func(s *Service) {
		s.countdownTick = d
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: RealClock{},
		cfg: config.AuctionConfig{
			BidMaxRetries:   3,
			BidRetryBackoff: 20 * time.Millisecond,
			CooldownStep:    72 * time.Hour,
			LeaderboardSize: leaderboard.DefaultSize,
			SweepInterval:   5 * time.Second,
		},
		newId:         uuid.NewString,
		countdownTick: time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("service")
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.bus == nil {
		s.bus = events.NewLocalBus(s.log)
	}
	s.leaders = leaderboard.NewAggregator(store, s.bus, s.cfg.LeaderboardSize, s.log)

	return s
}

// Leaderboard exposes the aggregator so the app can run it.
func (s *Service) Leaderboard() *leaderboard.Aggregator {
	return s.leaders
}

// Watch subscribes to change notifications of one listing.
func (s *Service) Watch(ctx context.Context, listingId string) (<-chan models.ListingEvent, error) {
	ch, err := s.bus.Subscribe(ctx, listingId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.Watch: %w", err)
	}
	return ch, nil
}

//// Service

func (s *Service) publish(ctx context.Context, eventType models.EventType, listing models.Listing, bid *models.Bid) {
	event := models.ListingEvent{
		Type:      eventType,
		ListingId: listing.Id,
		Listing:   listing,
		Bid:       bid,
		At:        s.clock.Now(),
	}

	// the change is already committed, a lost notification only delays viewers
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish listing event",
			zap.String("listing_id", listing.Id),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

// retry runs op until it succeeds, fails with a non-transient error or the
// retry budget is spent. Validation and not-found errors are returned at
// once, they would fail the same way again.
func (s *Service) retry(ctx context.Context, name string, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !models.IsTransient(err) || attempt >= s.cfg.BidMaxRetries {
			return err
		}

		s.metrics.Retries.WithLabelValues(name).Inc()
		s.log.Debug("retrying after transient error",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		timer := time.NewTimer(s.cfg.BidRetryBackoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
