package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"livestock/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestSubmitApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	status, err := env.svc.CheckStatus(ctx, "rancher")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalNone, status.Status)

	e, err := env.svc.SubmitApplication(ctx, "rancher", []string{"brand-certificate.jpg"})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, e.Status)
	assert.Equal(t, t0, e.CreatedAt)
	assert.Equal(t, []string{"brand-certificate.jpg"}, e.Documents)

	_, err = env.svc.SubmitApplication(ctx, "rancher", nil)
	assert.ErrorIs(t, err, models.ErrAlreadyPending)
	assert.ErrorIs(t, err, models.ErrCooldownActive)

	status, err = env.svc.CheckStatus(ctx, "rancher")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, status.Status)
	assert.Zero(t, status.CooldownRemaining)

	_, err = env.svc.ReviewApplication(ctx, "rancher", models.ApprovalApproved)
	require.NoError(t, err)

	_, err = env.svc.SubmitApplication(ctx, "rancher", nil)
	assert.ErrorIs(t, err, models.ErrAlreadyApproved)

	_, err = env.svc.SubmitApplication(ctx, "", nil)
	assert.ErrorIs(t, err, models.ErrInvalidApplication)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Applications.WithLabelValues("submitted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.Applications.WithLabelValues("refused")))
}

func TestConcurrentSubmissionsCreateOnePending(t *testing.T) {
	env := newTestEnv(t)

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.SubmitApplication(context.Background(), "rancher", nil)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyPending)
	}
	assert.Equal(t, 1, accepted)
}

func TestCooldownEscalation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reject := func() models.SellerEligibility {
		t.Helper()
		_, err := env.svc.SubmitApplication(ctx, "rancher", nil)
		require.NoError(t, err)
		e, err := env.svc.ReviewApplication(ctx, "rancher", models.ApprovalRejected)
		require.NoError(t, err)
		return e
	}

	e := reject()
	assert.Equal(t, 1, e.RejectionCount)
	assert.Equal(t, env.clock.Now().Add(3*day), e.CooldownEnd)

	env.clock.Set(e.CooldownEnd)
	e = reject()
	assert.Equal(t, 2, e.RejectionCount)
	assert.Equal(t, env.clock.Now().Add(6*day), e.CooldownEnd)

	env.clock.Set(e.CooldownEnd)
	e = reject()
	assert.Equal(t, 3, e.RejectionCount)
	assert.Equal(t, env.clock.Now().Add(9*day), e.CooldownEnd)
	assert.Equal(t, env.clock.Now(), e.LastRejectionAt)

	env.clock.Set(e.CooldownEnd.Add(-time.Hour))
	_, err := env.svc.SubmitApplication(ctx, "rancher", nil)
	assert.ErrorIs(t, err, models.ErrCooldownActive)

	status, err := env.svc.CheckStatus(ctx, "rancher")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, status.Status)
	assert.Equal(t, time.Hour, status.CooldownRemaining)

	env.clock.Set(e.CooldownEnd.Add(time.Second))
	accepted, err := env.svc.SubmitApplication(ctx, "rancher", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, accepted.Status)
	assert.Equal(t, 3, accepted.RejectionCount)
}

func TestReviewApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ReviewApplication(ctx, "nobody", models.ApprovalApproved)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = env.svc.ReviewApplication(ctx, "nobody", models.ApprovalPending)
	assert.ErrorIs(t, err, models.ErrInvalidDecision)

	_, err = env.svc.SubmitApplication(ctx, "rancher", nil)
	require.NoError(t, err)

	approved, err := env.svc.ReviewApplication(ctx, "rancher", models.ApprovalApproved)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approved.Status)

	_, err = env.svc.ReviewApplication(ctx, "rancher", models.ApprovalRejected)
	assert.ErrorIs(t, err, models.ErrNoPendingApplication)

	banned, err := env.svc.ReviewApplication(ctx, "rancher", models.ApprovalBanned)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalBanned, banned.Status)
	assert.Equal(t, 1, banned.RejectionCount)
	assert.Equal(t, t0.Add(3*day), banned.CooldownEnd)

	_, err = env.svc.CreateListing(ctx, CreateListingRequest{
		SellerId:     "rancher",
		Title:        "Dorper ewes",
		StartingBid:  dec("300"),
		BidIncrement: dec("10"),
		EndTime:      t0.Add(time.Hour),
	})
	assert.ErrorIs(t, err, models.ErrSellerNotApproved)

	_, err = env.svc.ReviewApplication(ctx, "rancher", models.ApprovalBanned)
	assert.ErrorIs(t, err, models.ErrNoPendingApplication)
}
