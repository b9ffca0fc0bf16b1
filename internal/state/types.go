package state

import (
	"time"

	"CoverLedger/internal/event"
)

// RiskCategory buckets cover products and pools by the class of loss event
// they underwrite.
type RiskCategory int32

const (
	RiskSlashing RiskCategory = iota
	RiskSmartContract
	RiskStablecoin
	RiskProtocol
)

func (rc RiskCategory) String() string {
	switch rc {
	case RiskSlashing:
		return "slashing"
	case RiskSmartContract:
		return "smart_contract"
	case RiskStablecoin:
		return "stablecoin"
	case RiskProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// DepositStatus tracks the lifecycle of an LP deposit
type DepositStatus int32

const (
	DepositActive DepositStatus = iota
	DepositWithdrawn
)

// ProposalStatus tracks the claim-adjudication state machine:
// Pending → Passing → Executed, or Pending → Rejected.
// Passing is an optimistic, reversible flag for observability only; the
// binding pass/fail determination happens at execution.
type ProposalStatus int32

const (
	ProposalPending ProposalStatus = iota
	ProposalPassing
	ProposalExecuted
	ProposalRejected
)

func (ps ProposalStatus) String() string {
	switch ps {
	case ProposalPending:
		return "pending"
	case ProposalPassing:
		return "passing"
	case ProposalExecuted:
		return "executed"
	case ProposalRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Pool is the custodial ledger of LP capital backing cover products.
// Invariant: TotalValueLocked == sum(active deposits) − sum(claims paid).
type Pool struct {
	ID               uint64
	RiskCategory     RiskCategory
	Name             string
	APY              int64 // Whole percent
	MinLockDays      int64
	TotalValueLocked int64
	IsActive         bool
	Version          int64
}

// Deposit is one LP's position in a pool. One record per (depositor, pool).
type Deposit struct {
	Depositor    event.Address
	PoolID       uint64
	Amount       int64
	StartTime    time.Time
	LockDays     int64
	DailyPayout  int64 // Fixed at deposit time, never re-derived
	LastPayoutAt time.Time
	Status       DepositStatus
	Version      int64
}

// UnlocksAt returns the earliest time the principal can be withdrawn
func (d *Deposit) UnlocksAt() time.Time {
	return d.StartTime.Add(time.Duration(d.LockDays) * 24 * time.Hour)
}

// CoverProduct is an underwritten insurance product with a maximum payable
// capacity, sold against a specific pool.
type CoverProduct struct {
	ID             uint64
	ContentRef     string
	RiskCategory   RiskCategory
	Name           string
	Chains         string
	Capacity       int64
	PremiumRateBps int64
	PoolID         uint64
	IsActive       bool
	Version        int64
}

// UserCover is an individual policyholder's position against a CoverProduct.
// CoverValue is only ever debited (by claim settlement), never increased.
type UserCover struct {
	Holder       event.Address
	CoverID      uint64
	CoverValue   int64
	PremiumPaid  int64
	PurchasedAt  time.Time
	DurationDays int64
	ClaimPaid    int64
	IsActive     bool
	Version      int64
}

// ExpiresAt returns the end of the covered period
func (uc *UserCover) ExpiresAt() time.Time {
	return uc.PurchasedAt.Add(time.Duration(uc.DurationDays) * 24 * time.Hour)
}

// Expired reports whether the cover period has elapsed
func (uc *UserCover) Expired(now time.Time) bool {
	return !now.Before(uc.ExpiresAt())
}

// Live reports whether the cover still counts against product capacity and
// can be settled.
func (uc *UserCover) Live(now time.Time) bool {
	return uc.IsActive && uc.CoverValue > 0 && !uc.Expired(now)
}

// Proposal is a claim-adjudication request subject to token-weighted voting.
// Proposals are never deleted; terminal ones remain as an audit trail.
type Proposal struct {
	ID           uint64
	Claimant     event.Address
	RiskCategory RiskCategory
	CoverID      uint64
	EvidenceRef  string
	Description  string
	PoolID       uint64
	ClaimAmount  int64
	VotesFor     int64
	VotesAgainst int64
	Status       ProposalStatus
	CreatedAt    time.Time
	Executed     bool
	PaidAmount   int64 // Effective (clamped) amount settled at execution
	Version      int64
}
