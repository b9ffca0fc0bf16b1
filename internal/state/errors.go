package state

import "errors"

// Sentinel errors for deterministic command rejection. The core maps these to
// typed failure outcomes; they deliberately carry no dynamic context so that
// replay produces byte-identical results.
var (
	ErrUnauthorized            = errors.New("caller not authorized for operation")
	ErrUnconfigured            = errors.New("required collaborator address not configured")
	ErrPoolNotFound            = errors.New("pool not found")
	ErrPoolInactive            = errors.New("pool is deactivated")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrNoActiveDeposit         = errors.New("no active deposit for caller in pool")
	ErrLockPeriodNotElapsed    = errors.New("deposit lock period has not elapsed")
	ErrInsufficientPoolBalance = errors.New("insufficient pool balance")
	ErrCoverNotFound           = errors.New("cover product not found")
	ErrCoverInactive           = errors.New("cover product is deactivated")
	ErrCoverAlreadyActive      = errors.New("caller already holds an active cover for product")
	ErrInvalidCoverDuration    = errors.New("cover duration outside allowed range")
	ErrCapacityExceeded        = errors.New("cover product capacity exceeded")
	ErrPremiumMismatch         = errors.New("paid premium does not match quoted premium")
	ErrNoClaimableReward       = errors.New("no claimable LP reward")
	ErrProposalNotFound        = errors.New("proposal not found")
	ErrAlreadyVoted            = errors.New("voter already voted on proposal")
	ErrVotingClosed            = errors.New("voting window has closed")
	ErrVotingStillOpen         = errors.New("voting window is still open")
	ErrAlreadyExecuted         = errors.New("proposal already executed")
)
