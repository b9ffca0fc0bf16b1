package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is balanced and well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidatePoolAccounts verifies neither pool account went negative after apply
func (v *InvariantValidator) ValidatePoolAccounts(poolID uint64) error {
	return v.tracker.ValidatePoolNonNegative(poolID)
}

// ValidateTVLMatches verifies the pool manager's TVL counter agrees with the
// journaled capital account. The counter and the ledger are written by the
// same serialized core step, so any divergence is a bug, not a race.
func (v *InvariantValidator) ValidateTVLMatches(poolID uint64, counterTVL int64) error {
	journaled := v.tracker.PoolCapital(poolID)
	if journaled != counterTVL {
		return fmt.Errorf("pool %d TVL mismatch: counter=%d, journaled=%d",
			poolID, counterTVL, journaled)
	}
	return nil
}

// ValidateGlobalBalance verifies the ledger is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}
