package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager creates and loads state snapshots for recovery. A snapshot
// captures everything the core holds in memory: ledger balances, pools,
// deposits, cover products, user covers, proposals, vote records, governance
// token balances, recent idempotency keys, and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serialized form of core.SnapshotState. Balances are
// keyed by account path string because struct-keyed maps do not survive JSON.
type SnapshotData struct {
	Sequence        int64               `json:"sequence"`
	StateHash       []byte              `json:"state_hash"`
	Balances        map[string]int64    `json:"balances"`
	Pools           []PoolSnapshot      `json:"pools"`
	Deposits        []DepositSnapshot   `json:"deposits"`
	Products        []ProductSnapshot   `json:"products"`
	UserCovers      []UserCoverSnapshot `json:"user_covers"`
	Proposals       []ProposalSnapshot  `json:"proposals"`
	Votes           []VoteSnapshot      `json:"votes"`
	TokenBalances   map[string]int64    `json:"token_balances"`
	IdempotencyKeys []string            `json:"idempotency_keys"`
	CreatedAt       time.Time           `json:"created_at"`
}

// PoolSnapshot is a serializable pool.
type PoolSnapshot struct {
	ID               uint64 `json:"id"`
	RiskCategory     int32  `json:"risk_category"`
	Name             string `json:"name"`
	APY              int64  `json:"apy"`
	MinLockDays      int64  `json:"min_lock_days"`
	TotalValueLocked int64  `json:"total_value_locked"`
	IsActive         bool   `json:"is_active"`
	Version          int64  `json:"version"`
}

// DepositSnapshot is a serializable LP deposit.
type DepositSnapshot struct {
	Depositor    string    `json:"depositor"`
	PoolID       uint64    `json:"pool_id"`
	Amount       int64     `json:"amount"`
	StartTime    time.Time `json:"start_time"`
	LockDays     int64     `json:"lock_days"`
	DailyPayout  int64     `json:"daily_payout"`
	LastPayoutAt time.Time `json:"last_payout_at"`
	Status       int32     `json:"status"`
	Version      int64     `json:"version"`
}

// ProductSnapshot is a serializable cover product.
type ProductSnapshot struct {
	ID             uint64 `json:"id"`
	ContentRef     string `json:"content_ref"`
	RiskCategory   int32  `json:"risk_category"`
	Name           string `json:"name"`
	Chains         string `json:"chains"`
	Capacity       int64  `json:"capacity"`
	PremiumRateBps int64  `json:"premium_rate_bps"`
	PoolID         uint64 `json:"pool_id"`
	IsActive       bool   `json:"is_active"`
	Version        int64  `json:"version"`
}

// UserCoverSnapshot is a serializable policyholder position.
type UserCoverSnapshot struct {
	Holder       string    `json:"holder"`
	CoverID      uint64    `json:"cover_id"`
	CoverValue   int64     `json:"cover_value"`
	PremiumPaid  int64     `json:"premium_paid"`
	PurchasedAt  time.Time `json:"purchased_at"`
	DurationDays int64     `json:"duration_days"`
	ClaimPaid    int64     `json:"claim_paid"`
	IsActive     bool      `json:"is_active"`
	Version      int64     `json:"version"`
}

// ProposalSnapshot is a serializable claim proposal.
type ProposalSnapshot struct {
	ID           uint64    `json:"id"`
	Claimant     string    `json:"claimant"`
	RiskCategory int32     `json:"risk_category"`
	CoverID      uint64    `json:"cover_id"`
	EvidenceRef  string    `json:"evidence_ref"`
	Description  string    `json:"description"`
	PoolID       uint64    `json:"pool_id"`
	ClaimAmount  int64     `json:"claim_amount"`
	VotesFor     int64     `json:"votes_for"`
	VotesAgainst int64     `json:"votes_against"`
	Status       int32     `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	Executed     bool      `json:"executed"`
	PaidAmount   int64     `json:"paid_amount"`
	Version      int64     `json:"version"`
}

// VoteSnapshot records that a voter has voted on a proposal.
type VoteSnapshot struct {
	Voter      string `json:"voter"`
	ProposalID uint64 `json:"proposal_id"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot. Snapshots are verified separately after a
// replay check, so they are written unverified.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start. Events after snapshot.Sequence are replayed on top by the caller.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as usable for recovery.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom pages events from a given sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, pool_id, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.PoolID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
