package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livestock/internal/models"

	"go.uber.org/zap"
)

// SubmitApplication files a request to become a bidding-listing seller.
// The status check and the write happen under one lock, so of two
// concurrent submissions exactly one becomes Pending.
func (s *Service) SubmitApplication(ctx context.Context, userId string, documents []string) (models.SellerEligibility, error) {
	if len(userId) == 0 {
		return models.SellerEligibility{}, fmt.Errorf("service.Service.SubmitApplication: %w: user is required", models.ErrInvalidApplication)
	}
	if documents == nil {
		documents = []string{}
	}

	var result models.SellerEligibility
	err := s.retry(ctx, "application", func() error {
		var err error
		result, err = s.store.UpdateEligibility(ctx, userId, func(e models.SellerEligibility, found bool) (models.SellerEligibility, error) {
			now := s.clock.Now()
			if err := e.CanApply(now); err != nil {
				if remaining := e.CooldownRemaining(now); remaining > 0 {
					return e, fmt.Errorf("%w: %s remaining", err, remaining.Round(time.Second))
				}
				return e, err
			}

			if !found {
				e.CreatedAt = now
			}
			e.Status = models.ApprovalPending
			e.Documents = documents
			e.UpdatedAt = now
			return e, nil
		})
		return err
	})

	if err != nil {
		if errors.Is(err, models.ErrCooldownActive) {
			s.metrics.Applications.WithLabelValues("refused").Inc()
		}
		return result, fmt.Errorf("service.Service.SubmitApplication: %w", err)
	}

	s.metrics.Applications.WithLabelValues("submitted").Inc()
	s.log.Info("seller application submitted",
		zap.String("user_id", userId),
		zap.Int("rejection_count", result.RejectionCount))

	return result, nil
}

// CheckStatus reports where a user stands. Users who never applied get
// status None.
func (s *Service) CheckStatus(ctx context.Context, userId string) (models.EligibilityStatus, error) {
	if len(userId) == 0 {
		return models.EligibilityStatus{}, fmt.Errorf("service.Service.CheckStatus: %w: user is required", models.ErrInvalidApplication)
	}

	e, found, err := s.store.GetEligibility(ctx, userId)
	if err != nil {
		return models.EligibilityStatus{}, fmt.Errorf("service.Service.CheckStatus: %w", err)
	}
	if !found {
		return models.EligibilityStatus{UserId: userId, Status: models.ApprovalNone}, nil
	}

	return models.EligibilityStatus{
		UserId:            userId,
		Status:            e.Status,
		RejectionCount:    e.RejectionCount,
		CooldownEnd:       e.CooldownEnd,
		CooldownRemaining: e.CooldownRemaining(s.clock.Now()),
	}, nil
}

// ReviewApplication applies an admin decision. Approve and reject need a
// Pending application; a ban may also revoke an approval.
func (s *Service) ReviewApplication(ctx context.Context, userId string, decision models.ApprovalStatus) (models.SellerEligibility, error) {
	if !models.ValidReviewDecision(decision) {
		return models.SellerEligibility{}, fmt.Errorf("service.Service.ReviewApplication: %w: %q", models.ErrInvalidDecision, decision)
	}

	var result models.SellerEligibility
	err := s.retry(ctx, "review", func() error {
		var err error
		result, err = s.store.UpdateEligibility(ctx, userId, func(e models.SellerEligibility, found bool) (models.SellerEligibility, error) {
			if !found {
				return e, models.ErrUserNotFound
			}

			switch {
			case e.Status == models.ApprovalPending:
			case decision == models.ApprovalBanned && e.Status == models.ApprovalApproved:
			default:
				return e, models.ErrNoPendingApplication
			}

			now := s.clock.Now()
			if decision == models.ApprovalApproved {
				e.Status = models.ApprovalApproved
				e.UpdatedAt = now
				return e, nil
			}
			return e.Reject(decision, now, s.cfg.CooldownStep), nil
		})
		return err
	})
	if err != nil {
		return result, fmt.Errorf("service.Service.ReviewApplication: %w", err)
	}

	s.metrics.Applications.WithLabelValues(strings.ToLower(string(decision))).Inc()
	s.log.Info("seller application reviewed",
		zap.String("user_id", userId),
		zap.String("decision", string(decision)),
		zap.Int("rejection_count", result.RejectionCount),
		zap.Time("cooldown_end", result.CooldownEnd))

	return result, nil
}
