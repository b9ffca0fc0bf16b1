package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"CoverLedger/internal/observability"
	"CoverLedger/internal/state"
)

// ProjectionOutput mirrors the data projection workers need. The orchestrator
// bridges between core.CoreOutput and this to avoid an import cycle.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	PoolID         *int64
	JournalEntries []JournalEntry
	Delta          []byte // JSON-encoded entity delta
	Payload        []byte // JSON-encoded event payload
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
	Counterparty  string
}

// entityDelta matches core.EntityDelta's wire shape.
type entityDelta struct {
	Pools      []*state.Pool         `json:"pools,omitempty"`
	Deposits   []*state.Deposit      `json:"deposits,omitempty"`
	Products   []*state.CoverProduct `json:"products,omitempty"`
	UserCovers []*state.UserCover    `json:"user_covers,omitempty"`
	Proposals  []*state.Proposal     `json:"proposals,omitempty"`
}

// ProjectionWorker maintains the read-side tables: account balances derived
// from journal entries, and entity tables upserted from the core's delta.
// The projection channel is non-blocking with drop; anything missed can be
// rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Projections are eventually consistent and rebuildable,
				// so failures are logged and skipped rather than retried.
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if len(output.Delta) > 0 {
		var delta entityDelta
		if err := json.Unmarshal(output.Delta, &delta); err != nil {
			return fmt.Errorf("decode delta: %w", err)
		}
		if err := pw.upsertEntities(ctx, tx, &delta, output.Sequence); err != nil {
			return err
		}
	}

	if output.EventType == "VoteCast" && len(output.Payload) > 0 {
		if err := pw.insertVoteProjection(ctx, tx, output); err != nil {
			return fmt.Errorf("vote projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// insertVoteProjection records each cast vote. Tallies live on the proposal
// row; this table answers "who voted which way".
func (pw *ProjectionWorker) insertVoteProjection(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var vote struct {
		Voter    string `json:"Voter"`
		Proposal uint64 `json:"Proposal"`
		Support  bool   `json:"Support"`
	}
	if err := json.Unmarshal(output.Payload, &vote); err != nil {
		return fmt.Errorf("decode vote payload: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.votes (proposal_id, voter, support, sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (proposal_id, voter) DO NOTHING
	`, vote.Proposal, vote.Voter, vote.Support, output.Sequence)
	return err
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	// Debit increases the account, credit decreases it, matching the
	// in-memory balance tracker convention.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`, j.DebitAccount, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, -$2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $2, last_sequence = $3
	`, j.CreditAccount, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) upsertEntities(ctx context.Context, tx *sql.Tx, delta *entityDelta, seq int64) error {
	for _, p := range delta.Pools {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.pools
				(pool_id, risk_category, name, apy, min_lock_days, total_value_locked, is_active, version, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (pool_id) DO UPDATE SET
				risk_category = $2, name = $3, apy = $4, min_lock_days = $5,
				total_value_locked = $6, is_active = $7, version = $8, last_sequence = $9
		`, p.ID, p.RiskCategory.String(), p.Name, p.APY, p.MinLockDays,
			p.TotalValueLocked, p.IsActive, p.Version, seq); err != nil {
			return fmt.Errorf("pool projection: %w", err)
		}
	}

	for _, d := range delta.Deposits {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.deposits
				(depositor, pool_id, amount, start_time, lock_days, daily_payout, last_payout_at, status, version, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (depositor, pool_id) DO UPDATE SET
				amount = $3, start_time = $4, lock_days = $5, daily_payout = $6,
				last_payout_at = $7, status = $8, version = $9, last_sequence = $10
		`, string(d.Depositor), d.PoolID, d.Amount, d.StartTime, d.LockDays,
			d.DailyPayout, d.LastPayoutAt, int32(d.Status), d.Version, seq); err != nil {
			return fmt.Errorf("deposit projection: %w", err)
		}
	}

	for _, p := range delta.Products {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.cover_products
				(cover_id, content_ref, risk_category, name, chains, capacity, premium_rate_bps, pool_id, is_active, version, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (cover_id) DO UPDATE SET
				content_ref = $2, risk_category = $3, name = $4, chains = $5,
				capacity = $6, premium_rate_bps = $7, pool_id = $8,
				is_active = $9, version = $10, last_sequence = $11
		`, p.ID, p.ContentRef, p.RiskCategory.String(), p.Name, p.Chains,
			p.Capacity, p.PremiumRateBps, p.PoolID, p.IsActive, p.Version, seq); err != nil {
			return fmt.Errorf("cover product projection: %w", err)
		}
	}

	for _, uc := range delta.UserCovers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.user_covers
				(holder, cover_id, cover_value, premium_paid, purchased_at, duration_days, claim_paid, is_active, version, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (holder, cover_id) DO UPDATE SET
				cover_value = $3, premium_paid = $4, purchased_at = $5, duration_days = $6,
				claim_paid = $7, is_active = $8, version = $9, last_sequence = $10
		`, string(uc.Holder), uc.CoverID, uc.CoverValue, uc.PremiumPaid, uc.PurchasedAt,
			uc.DurationDays, uc.ClaimPaid, uc.IsActive, uc.Version, seq); err != nil {
			return fmt.Errorf("user cover projection: %w", err)
		}
	}

	for _, pr := range delta.Proposals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.proposals
				(proposal_id, claimant, risk_category, cover_id, evidence_ref, description, pool_id,
				 claim_amount, votes_for, votes_against, status, created_at, executed, paid_amount, version, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (proposal_id) DO UPDATE SET
				votes_for = $9, votes_against = $10, status = $11,
				executed = $13, paid_amount = $14, version = $15, last_sequence = $16
		`, pr.ID, string(pr.Claimant), pr.RiskCategory.String(), pr.CoverID, pr.EvidenceRef,
			pr.Description, pr.PoolID, pr.ClaimAmount, pr.VotesFor, pr.VotesAgainst,
			pr.Status.String(), pr.CreatedAt, pr.Executed, pr.PaidAmount, pr.Version, seq); err != nil {
			return fmt.Errorf("proposal projection: %w", err)
		}
	}

	return nil
}

// RebuildProjections rebuilds the balance projection from the event log.
// Entity tables are rebuilt by replaying the core and re-emitting deltas.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debits add, credits subtract
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
