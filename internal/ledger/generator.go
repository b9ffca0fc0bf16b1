package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from protocol operations
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// GenerateDeposit creates journals for an LP deposit.
// Moves funds: external:deposits → pool:capital
func (jg *JournalGenerator) GenerateDeposit(
	eventRef string,
	poolID uint64,
	depositor string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %d", amount)
	}

	return jg.singleEntryBatch(Journal{
		EventRef:      eventRef,
		DebitAccount:  NewPoolAccountKey(poolID, SubTypeCapital),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits),
		Amount:        amount,
		JournalType:   JournalTypeDeposit,
		Counterparty:  depositor,
		Timestamp:     timestamp,
	}), nil
}

// GenerateWithdrawal creates journals for an LP withdrawing principal.
// Moves funds: pool:capital → external:payouts
func (jg *JournalGenerator) GenerateWithdrawal(
	eventRef string,
	poolID uint64,
	depositor string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if capital := jg.balanceTracker.PoolCapital(poolID); capital < amount {
		return nil, fmt.Errorf("withdrawal pre-check: pool %d capital %d < %d", poolID, capital, amount)
	}

	return jg.singleEntryBatch(Journal{
		EventRef:      eventRef,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalPayouts),
		CreditAccount: NewPoolAccountKey(poolID, SubTypeCapital),
		Amount:        amount,
		JournalType:   JournalTypeWithdrawal,
		Counterparty:  depositor,
		Timestamp:     timestamp,
	}), nil
}

// GeneratePremium creates journals for premium collected on a cover purchase.
// Moves funds: external:deposits → pool:premium
func (jg *JournalGenerator) GeneratePremium(
	eventRef string,
	poolID uint64,
	holder string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("premium must be positive: %d", amount)
	}

	return jg.singleEntryBatch(Journal{
		EventRef:      eventRef,
		DebitAccount:  NewPoolAccountKey(poolID, SubTypePremium),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits),
		Amount:        amount,
		JournalType:   JournalTypePremium,
		Counterparty:  holder,
		Timestamp:     timestamp,
	}), nil
}

// GenerateClaimPayout creates journals for a governance-approved claim.
// Moves funds: pool:capital → external:payouts
// This is the single path by which protocol funds leave a pool for a claim.
func (jg *JournalGenerator) GenerateClaimPayout(
	eventRef string,
	poolID uint64,
	recipient string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if capital := jg.balanceTracker.PoolCapital(poolID); capital < amount {
		return nil, fmt.Errorf("claim payout pre-check: pool %d capital %d < %d", poolID, capital, amount)
	}

	return jg.singleEntryBatch(Journal{
		EventRef:      eventRef,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalPayouts),
		CreditAccount: NewPoolAccountKey(poolID, SubTypeCapital),
		Amount:        amount,
		JournalType:   JournalTypeClaimPayout,
		Counterparty:  recipient,
		Timestamp:     timestamp,
	}), nil
}

// GenerateLPPayout creates journals for an LP claiming accrued premium yield.
// Moves funds: pool:premium → external:payouts
func (jg *JournalGenerator) GenerateLPPayout(
	eventRef string,
	poolID uint64,
	claimer string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if premium := jg.balanceTracker.PoolPremium(poolID); premium < amount {
		return nil, fmt.Errorf("lp payout pre-check: pool %d premium %d < %d", poolID, premium, amount)
	}

	return jg.singleEntryBatch(Journal{
		EventRef:      eventRef,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalPayouts),
		CreditAccount: NewPoolAccountKey(poolID, SubTypePremium),
		Amount:        amount,
		JournalType:   JournalTypeLPPayout,
		Counterparty:  claimer,
		Timestamp:     timestamp,
	}), nil
}

// EmptyBatch creates a journal-free batch for state-only events
// (pool/cover administration, proposal creation, votes).
func (jg *JournalGenerator) EmptyBatch(eventRef string, timestamp int64) *Batch {
	batch := &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  []Journal{},
	}
	jg.sequence++
	return batch
}

func (jg *JournalGenerator) singleEntryBatch(j Journal) *Batch {
	batchID := uuid.New()

	j.JournalID = uuid.New()
	j.BatchID = batchID
	j.Sequence = jg.sequence

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  j.EventRef,
		Sequence:  jg.sequence,
		Timestamp: j.Timestamp,
		Journals:  []Journal{j},
	}
	jg.sequence++

	return batch
}

// SetSequence resets the generator sequence (used for snapshot restore)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}
