package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QueryService provides read-only access to the projection tables and the
// event log. Queries never touch the core's in-memory state; freshness is
// expressed via as_of_sequence from the projection watermark.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetPool returns a pool with its journaled capital and premium balances
// alongside the projected TVL counter.
func (qs *QueryService) GetPool(ctx context.Context, poolID uint64) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p PoolResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT pool_id, risk_category, name, apy, min_lock_days, total_value_locked, is_active, version
		FROM projections.pools
		WHERE pool_id = $1
	`, poolID).Scan(
		&p.PoolID, &p.RiskCategory, &p.Name, &p.APY, &p.MinLockDays,
		&p.TotalValueLocked, &p.IsActive, &p.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	capitalPath := fmt.Sprintf("pool:%d:capital", poolID)
	premiumPath := fmt.Sprintf("pool:%d:premium", poolID)

	if p.CapitalBalance, err = qs.getProjectedBalance(ctx, capitalPath); err != nil {
		return nil, err
	}
	if p.PremiumBalance, err = qs.getProjectedBalance(ctx, premiumPath); err != nil {
		return nil, err
	}

	return &p, nil
}

// ListPools returns all pools, optionally filtered to active ones.
func (qs *QueryService) ListPools(ctx context.Context, activeOnly bool) ([]PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT pool_id, risk_category, name, apy, min_lock_days, total_value_locked, is_active, version
		FROM projections.pools
	`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY pool_id"

	rows, err := qs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []PoolResponse
	for rows.Next() {
		var p PoolResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PoolID, &p.RiskCategory, &p.Name, &p.APY, &p.MinLockDays,
			&p.TotalValueLocked, &p.IsActive, &p.Version,
		); err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}

	return pools, rows.Err()
}

// GetUserDeposit returns one LP's position in a pool.
func (qs *QueryService) GetUserDeposit(ctx context.Context, depositor string, poolID uint64) (*DepositResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var d DepositResponse
	d.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT depositor, pool_id, amount, start_time, lock_days, daily_payout, last_payout_at, status, version
		FROM projections.deposits
		WHERE depositor = $1 AND pool_id = $2
	`, depositor, poolID).Scan(
		&d.Depositor, &d.PoolID, &d.Amount, &d.StartTime, &d.LockDays,
		&d.DailyPayout, &d.LastPayoutAt, &d.Status, &d.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.UnlocksAt = d.StartTime.Add(time.Duration(d.LockDays) * 24 * time.Hour)
	return &d, nil
}

// GetAvailableCovers returns active cover products, optionally filtered by
// risk category.
func (qs *QueryService) GetAvailableCovers(ctx context.Context, riskCategory *string) ([]CoverProductResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT cover_id, content_ref, risk_category, name, chains, capacity, premium_rate_bps, pool_id, is_active, version
		FROM projections.cover_products
		WHERE is_active = TRUE
	`
	args := []interface{}{}
	if riskCategory != nil {
		query += " AND risk_category = $1"
		args = append(args, *riskCategory)
	}
	query += " ORDER BY cover_id"

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []CoverProductResponse
	for rows.Next() {
		var p CoverProductResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.CoverID, &p.ContentRef, &p.RiskCategory, &p.Name, &p.Chains,
			&p.Capacity, &p.PremiumRateBps, &p.PoolID, &p.IsActive, &p.Version,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// GetUserCoverInfo returns a holder's position against a cover product.
func (qs *QueryService) GetUserCoverInfo(ctx context.Context, holder string, coverID uint64) (*UserCoverResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var uc UserCoverResponse
	uc.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT holder, cover_id, cover_value, premium_paid, purchased_at, duration_days, claim_paid, is_active, version
		FROM projections.user_covers
		WHERE holder = $1 AND cover_id = $2
	`, holder, coverID).Scan(
		&uc.Holder, &uc.CoverID, &uc.CoverValue, &uc.PremiumPaid, &uc.PurchasedAt,
		&uc.DurationDays, &uc.ClaimPaid, &uc.IsActive, &uc.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	uc.ExpiresAt = uc.PurchasedAt.Add(time.Duration(uc.DurationDays) * 24 * time.Hour)
	return &uc, nil
}

// GetProposalDetails returns a claim proposal with its running tally.
func (qs *QueryService) GetProposalDetails(ctx context.Context, proposalID uint64) (*ProposalResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var pr ProposalResponse
	pr.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT proposal_id, claimant, risk_category, cover_id, evidence_ref, description, pool_id,
		       claim_amount, votes_for, votes_against, status, created_at, executed, paid_amount, version
		FROM projections.proposals
		WHERE proposal_id = $1
	`, proposalID).Scan(
		&pr.ProposalID, &pr.Claimant, &pr.RiskCategory, &pr.CoverID, &pr.EvidenceRef,
		&pr.Description, &pr.PoolID, &pr.ClaimAmount, &pr.VotesFor, &pr.VotesAgainst,
		&pr.Status, &pr.CreatedAt, &pr.Executed, &pr.PaidAmount, &pr.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	voteRows, err := qs.db.QueryContext(ctx, `
		SELECT voter, support, sequence
		FROM projections.votes
		WHERE proposal_id = $1
		ORDER BY sequence ASC
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var v VoteResponse
		if err := voteRows.Scan(&v.Voter, &v.Support, &v.Sequence); err != nil {
			return nil, err
		}
		pr.Votes = append(pr.Votes, v)
	}
	if err := voteRows.Err(); err != nil {
		return nil, err
	}

	return &pr, nil
}

// ListProposals returns proposals newest-first with cursor pagination.
func (qs *QueryService) ListProposals(ctx context.Context, limit int, beforeID *uint64) ([]ProposalResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT proposal_id, claimant, risk_category, cover_id, evidence_ref, description, pool_id,
		       claim_amount, votes_for, votes_against, status, created_at, executed, paid_amount, version
		FROM projections.proposals
	`
	args := []interface{}{}
	argIdx := 1

	if beforeID != nil {
		query += fmt.Sprintf(" WHERE proposal_id < $%d", argIdx)
		args = append(args, *beforeID)
		argIdx++
	}

	query += " ORDER BY proposal_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []ProposalResponse
	for rows.Next() {
		var pr ProposalResponse
		pr.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&pr.ProposalID, &pr.Claimant, &pr.RiskCategory, &pr.CoverID, &pr.EvidenceRef,
			&pr.Description, &pr.PoolID, &pr.ClaimAmount, &pr.VotesFor, &pr.VotesAgainst,
			&pr.Status, &pr.CreatedAt, &pr.Executed, &pr.PaidAmount, &pr.Version,
		); err != nil {
			return nil, err
		}
		proposals = append(proposals, pr)
	}

	return proposals, rows.Err()
}

// GetJournalHistory returns journal entries touching an address's accounts,
// newest-first with cursor pagination. The address matches either side of the
// entry or its counterparty tag.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	address string,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, counterparty, timestamp
		FROM event_log.journal
		WHERE (counterparty = $1 OR debit_account LIKE $2 OR credit_account LIKE $2)
	`
	args := []interface{}{address, address + "%"}
	argIdx := 3

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.Counterparty, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetEventHistory returns applied events for a pool, newest-first.
func (qs *QueryService) GetEventHistory(
	ctx context.Context,
	poolID *uint64,
	limit int,
	afterSequence *int64,
) ([]EventHistoryEntry, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, pool_id, payload, state_hash, timestamp
		FROM event_log.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if poolID != nil {
		query += fmt.Sprintf(" AND pool_id = $%d", argIdx)
		args = append(args, *poolID)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventHistoryEntry
	for rows.Next() {
		var e EventHistoryEntry
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.PoolID,
			&e.Payload, &e.StateHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash-chain continuity in the event log and the
// global zero-sum invariant over projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{AsOfSequence: asOfSeq}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every journal moves value between two accounts, so the sum over all
	// projected balances must be zero.
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM projections.balances
	`).Scan(&report.GlobalImbalance)
	if err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.GlobalImbalance == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
