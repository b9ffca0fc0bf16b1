package ledger

import (
	"fmt"
)

// BalanceTracker maintains in-memory account balances.
// Not thread-safe; only accessed from the single-threaded protocol core.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// PoolCapital returns the journaled TVL for a pool
func (bt *BalanceTracker) PoolCapital(poolID uint64) int64 {
	return bt.GetBalance(NewPoolAccountKey(poolID, SubTypeCapital))
}

// PoolPremium returns the undistributed premium income for a pool.
// This is the cap on what claimPayoutForLP can pay out.
func (bt *BalanceTracker) PoolPremium(poolID uint64) int64 {
	return bt.GetBalance(NewPoolAccountKey(poolID, SubTypePremium))
}

// ValidatePoolNonNegative checks that neither pool account is overdrawn
func (bt *BalanceTracker) ValidatePoolNonNegative(poolID uint64) error {
	if capital := bt.PoolCapital(poolID); capital < 0 {
		return fmt.Errorf("pool %d has negative capital: %d", poolID, capital)
	}
	if premium := bt.PoolPremium(poolID); premium < 0 {
		return fmt.Errorf("pool %d has negative premium balance: %d", poolID, premium)
	}
	return nil
}

// ComputeGlobalBalance sums every account. Double entry means the total is
// always zero; anything else is a corrupted ledger.
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances (for snapshot creation)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	result := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		result[k] = v
	}
	return result
}

// SetBalance directly sets an account balance (used for snapshot restore)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}
