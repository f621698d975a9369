package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"livestock/internal/config"
	"livestock/internal/metrics"
	"livestock/internal/models"
	"livestock/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc     *Service
	clock   *ManualClock
	store   *memory.Store
	metrics *metrics.Metrics
}

func testConfig() config.AuctionConfig {
	return config.AuctionConfig{
		BidMaxRetries:   3,
		BidRetryBackoff: time.Millisecond,
		CooldownStep:    72 * time.Hour,
		LeaderboardSize: 5,
		SweepInterval:   10 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:   NewManualClock(t0),
		store:   memory.NewStore(),
		metrics: metrics.New(),
	}
	base := []Option{
		WithClock(env.clock),
		WithConfig(testConfig()),
		WithMetrics(env.metrics),
		WithLogger(zaptest.NewLogger(t)),
	}
	env.svc = NewService(env.store, append(base, opts...)...)
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (env *testEnv) approveSeller(t *testing.T, sellerId string) {
	t.Helper()
	ctx := context.Background()

	_, err := env.svc.SubmitApplication(ctx, sellerId, []string{"herd-registration.pdf"})
	require.NoError(t, err)
	_, err = env.svc.ReviewApplication(ctx, sellerId, models.ApprovalApproved)
	require.NoError(t, err)
}

// newListing creates a listing of an approved seller: starting bid 100,
// increment 5, one hour to go.
func (env *testEnv) newListing(t *testing.T, sellerId string) models.Listing {
	t.Helper()

	if e, found, _ := env.store.GetEligibility(context.Background(), sellerId); !found || e.Status != models.ApprovalApproved {
		env.approveSeller(t, sellerId)
	}

	listing, err := env.svc.CreateListing(context.Background(), CreateListingRequest{
		SellerId:     sellerId,
		Title:        "Angus heifers, 12 head",
		Description:  "Bred heifers, due in spring",
		StartingBid:  dec("100"),
		BidIncrement: dec("5"),
		EndTime:      env.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return listing
}

func (env *testEnv) bid(t *testing.T, listingId, bidderId, amount string) (BidResult, error) {
	t.Helper()
	return env.svc.PlaceBid(context.Background(), PlaceBidRequest{
		ListingId:  listingId,
		BidderId:   bidderId,
		BidderName: "Bidder " + bidderId,
		Amount:     dec(amount),
	})
}

// flakyStore fails the first failures bid commits with a transient error.
type flakyStore struct {
	*memory.Store
	failures int32
	calls    atomic.Int32
}

func (f *flakyStore) CommitBid(ctx context.Context, listingId, idempotencyKey string, validate func(models.Listing) (models.Bid, error)) (models.Listing, models.Bid, error) {
	if f.calls.Add(1) <= f.failures {
		return models.Listing{}, models.Bid{}, fmt.Errorf("flaky: %w", models.ErrConflict)
	}
	return f.Store.CommitBid(ctx, listingId, idempotencyKey, validate)
}

func TestRetryTransientCommit(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore(), failures: 2}
	env := newTestEnv(t)
	env.store = store.Store
	env.svc = NewService(store, WithClock(env.clock), WithConfig(testConfig()), WithMetrics(env.metrics), WithLogger(zaptest.NewLogger(t)))

	listing := env.newListing(t, "seller")

	result, err := env.bid(t, listing.Id, "buyer", "105")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Listing.BidCount)
	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.Retries.WithLabelValues("bid")))
}

func TestRetryBudgetExhausted(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore(), failures: 100}
	env := newTestEnv(t)
	env.store = store.Store
	env.svc = NewService(store, WithClock(env.clock), WithConfig(testConfig()), WithMetrics(env.metrics), WithLogger(zaptest.NewLogger(t)))

	listing := env.newListing(t, "seller")

	_, err := env.bid(t, listing.Id, "buyer", "105")
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	assert.Equal(t, int32(testConfig().BidMaxRetries+1), store.calls.Load())

	stored, err := env.store.GetListing(context.Background(), listing.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.BidCount)
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore()}
	env := newTestEnv(t)
	env.store = store.Store
	env.svc = NewService(store, WithClock(env.clock), WithConfig(testConfig()), WithMetrics(env.metrics), WithLogger(zaptest.NewLogger(t)))

	listing := env.newListing(t, "seller")

	_, err := env.bid(t, listing.Id, "buyer", "101")
	assert.ErrorIs(t, err, models.ErrBidTooLow)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.BidsRejected.WithLabelValues("bid_too_low")))
}

func TestWatch(t *testing.T) {
	env := newTestEnv(t)
	listing := env.newListing(t, "seller")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := env.svc.Watch(ctx, listing.Id)
	require.NoError(t, err)

	_, err = env.bid(t, listing.Id, "buyer", "110")
	require.NoError(t, err)

	select {
	case event := <-ch:
		assert.Equal(t, models.EventBidAccepted, event.Type)
		assert.Equal(t, listing.Id, event.ListingId)
		assert.Equal(t, 1, event.Listing.BidCount)
		require.NotNil(t, event.Bid)
		assert.True(t, dec("110").Equal(event.Bid.Amount))
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 5*time.Millisecond)
}
