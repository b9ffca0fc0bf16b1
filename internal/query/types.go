package query

import "time"

// Responses carry as_of_sequence so callers can reason about projection
// freshness relative to the event log head.

// PoolResponse describes a liquidity pool with its ledger-backed balances.
type PoolResponse struct {
	PoolID           uint64 `json:"pool_id"`
	RiskCategory     string `json:"risk_category"`
	Name             string `json:"name"`
	APY              int64  `json:"apy"`
	MinLockDays      int64  `json:"min_lock_days"`
	TotalValueLocked int64  `json:"total_value_locked"`
	CapitalBalance   int64  `json:"capital_balance"`
	PremiumBalance   int64  `json:"premium_balance"`
	IsActive         bool   `json:"is_active"`
	Version          int64  `json:"version"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// DepositResponse describes one LP position in a pool.
type DepositResponse struct {
	Depositor    string    `json:"depositor"`
	PoolID       uint64    `json:"pool_id"`
	Amount       int64     `json:"amount"`
	StartTime    time.Time `json:"start_time"`
	LockDays     int64     `json:"lock_days"`
	UnlocksAt    time.Time `json:"unlocks_at"`
	DailyPayout  int64     `json:"daily_payout"`
	LastPayoutAt time.Time `json:"last_payout_at"`
	Status       int32     `json:"status"`
	Version      int64     `json:"version"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// CoverProductResponse describes a purchasable cover product.
type CoverProductResponse struct {
	CoverID        uint64 `json:"cover_id"`
	ContentRef     string `json:"content_ref"`
	RiskCategory   string `json:"risk_category"`
	Name           string `json:"name"`
	Chains         string `json:"chains"`
	Capacity       int64  `json:"capacity"`
	PremiumRateBps int64  `json:"premium_rate_bps"`
	PoolID         uint64 `json:"pool_id"`
	IsActive       bool   `json:"is_active"`
	Version        int64  `json:"version"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// UserCoverResponse describes a policyholder position.
type UserCoverResponse struct {
	Holder       string    `json:"holder"`
	CoverID      uint64    `json:"cover_id"`
	CoverValue   int64     `json:"cover_value"`
	PremiumPaid  int64     `json:"premium_paid"`
	PurchasedAt  time.Time `json:"purchased_at"`
	DurationDays int64     `json:"duration_days"`
	ExpiresAt    time.Time `json:"expires_at"`
	ClaimPaid    int64     `json:"claim_paid"`
	IsActive     bool      `json:"is_active"`
	Version      int64     `json:"version"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// VoteResponse is one recorded vote on a proposal.
type VoteResponse struct {
	Voter    string `json:"voter"`
	Support  bool   `json:"support"`
	Sequence int64  `json:"sequence"`
}

// ProposalResponse describes a claim proposal and its tally. Votes are
// populated only on single-proposal detail queries.
type ProposalResponse struct {
	ProposalID   uint64    `json:"proposal_id"`
	Claimant     string    `json:"claimant"`
	RiskCategory string    `json:"risk_category"`
	CoverID      uint64    `json:"cover_id"`
	EvidenceRef  string    `json:"evidence_ref"`
	Description  string    `json:"description"`
	PoolID       uint64    `json:"pool_id"`
	ClaimAmount  int64     `json:"claim_amount"`
	VotesFor     int64     `json:"votes_for"`
	VotesAgainst int64     `json:"votes_against"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	Executed     bool      `json:"executed"`
	PaidAmount   int64     `json:"paid_amount"`
	Version      int64     `json:"version"`
	AsOfSequence int64     `json:"as_of_sequence"`

	Votes []VoteResponse `json:"votes,omitempty"`
}

// JournalHistoryEntry is one double-entry row from the event log.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Counterparty  string `json:"counterparty"`
	Timestamp     int64  `json:"timestamp"`
}

// EventHistoryEntry is one applied event from the log.
type EventHistoryEntry struct {
	Sequence       int64     `json:"sequence"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	PoolID         *int64    `json:"pool_id,omitempty"`
	Payload        []byte    `json:"payload"`
	StateHash      []byte    `json:"state_hash"`
	Timestamp      time.Time `json:"timestamp"`
}

// IntegrityReport summarizes hash-chain and zero-sum checks over the log.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	GlobalImbalance int64   `json:"global_imbalance"`
	AsOfSequence    int64   `json:"as_of_sequence"`
}
