package models

import "time"

type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "None"
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
	ApprovalBanned   ApprovalStatus = "Banned"
)

func ValidApprovalStatus(s ApprovalStatus) bool {
	switch s {
	case ApprovalNone, ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalBanned:
		return true
	default:
		return false
	}
}

// ValidReviewDecision reports whether s is an outcome an admin review may set.
func ValidReviewDecision(s ApprovalStatus) bool {
	switch s {
	case ApprovalApproved, ApprovalRejected, ApprovalBanned:
		return true
	default:
		return false
	}
}

type SellerEligibility struct {
	UserId          string         `json:"userId"`
	Status          ApprovalStatus `json:"status"`
	RejectionCount  int            `json:"rejectionCount"`
	LastRejectionAt time.Time      `json:"lastRejectionAt,omitempty"`
	CooldownEnd     time.Time      `json:"cooldownEnd,omitempty"`
	Documents       []string       `json:"documents"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"-"`
}

// CooldownRemaining is zero when the user may apply at now.
func (e SellerEligibility) CooldownRemaining(now time.Time) time.Duration {
	if e.CooldownEnd.IsZero() || !now.Before(e.CooldownEnd) {
		return 0
	}
	return e.CooldownEnd.Sub(now)
}

// CanApply tells whether a (re)submission is allowed at now.
func (e SellerEligibility) CanApply(now time.Time) error {
	switch e.Status {
	case ApprovalPending:
		return ErrAlreadyPending
	case ApprovalApproved:
		return ErrAlreadyApproved
	}
	if e.CooldownRemaining(now) > 0 {
		return ErrCooldownActive
	}
	return nil
}

// Reject applies a rejection (or ban) decided at now. Each rejection
// lengthens the cooldown by one more step.
func (e SellerEligibility) Reject(status ApprovalStatus, now time.Time, step time.Duration) SellerEligibility {
	e.Status = status
	e.RejectionCount++
	e.LastRejectionAt = now
	e.CooldownEnd = now.Add(time.Duration(e.RejectionCount) * step)
	e.UpdatedAt = now
	return e
}

// EligibilityStatus is the answer to a status check.
type EligibilityStatus struct {
	UserId            string         `json:"userId"`
	Status            ApprovalStatus `json:"status"`
	RejectionCount    int            `json:"rejectionCount"`
	CooldownEnd       time.Time      `json:"cooldownEnd,omitempty"`
	CooldownRemaining time.Duration  `json:"cooldownRemaining"`
}
