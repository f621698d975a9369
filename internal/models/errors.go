package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every sentinel below wraps exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("temporarily unavailable, try again")
)

var (
	ErrListingNotFound = fmt.Errorf("%w: listing does not exist", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user does not exist", ErrNotFound)

	ErrAuctionClosed = fmt.Errorf("%w: auction is closed", ErrValidation)
	ErrBidTooLow     = fmt.Errorf("%w: bid must be higher than current highest bid", ErrValidation)
	ErrSelfBid       = fmt.Errorf("%w: seller cannot bid on own listing", ErrValidation)
	ErrInvalidBid    = fmt.Errorf("%w: invalid bid", ErrValidation)

	ErrCooldownActive       = fmt.Errorf("%w: application cooldown is active", ErrValidation)
	ErrAlreadyPending       = fmt.Errorf("%w: application is already pending", ErrCooldownActive)
	ErrAlreadyApproved      = fmt.Errorf("%w: user is already approved", ErrCooldownActive)
	ErrNoPendingApplication = fmt.Errorf("%w: no pending application to review", ErrValidation)
	ErrInvalidApplication   = fmt.Errorf("%w: invalid application", ErrValidation)
	ErrInvalidDecision      = fmt.Errorf("%w: invalid review decision", ErrValidation)

	ErrInvalidListing    = fmt.Errorf("%w: invalid listing", ErrValidation)
	ErrSellerNotApproved = fmt.Errorf("%w: seller is not approved for bidding listings", ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: listing status does not allow this transition", ErrValidation)
	ErrNoWinner          = fmt.Errorf("%w: listing has no bids to settle", ErrValidation)
	ErrAuctionActive     = fmt.Errorf("%w: auction is still active", ErrValidation)
	ErrIdempotencyReuse  = fmt.Errorf("%w: idempotency key was used for a different bid", ErrValidation)
	ErrForbidden         = errors.New("provided user does not have permission for this operation")
	ErrDuplicateBid      = errors.New("bid with this idempotency key already exists")
	ErrConflict          = fmt.Errorf("%w: concurrent update conflict", ErrTransient)
	ErrStoreUnavailable  = fmt.Errorf("%w: store unreachable", ErrTransient)
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
