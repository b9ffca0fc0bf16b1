package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"CoverLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates and converts raw commands
// before handing them to the core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PoolCreate":
		return parsePoolCreate(raw.Data)
	case "PoolUpdate":
		return parsePoolUpdate(raw.Data)
	case "PoolDeactivate":
		return parsePoolDeactivate(raw.Data)
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "CoverCreate":
		return parseCoverCreate(raw.Data)
	case "CoverCapacityUpdate":
		return parseCoverCapacityUpdate(raw.Data)
	case "CoverDeactivate":
		return parseCoverDeactivate(raw.Data)
	case "CoverPurchase":
		return parseCoverPurchase(raw.Data)
	case "LPPayoutClaim":
		return parseLPPayoutClaim(raw.Data)
	case "ProposalCreate":
		return parseProposalCreate(raw.Data)
	case "VoteCast":
		return parseVoteCast(raw.Data)
	case "ProposalExecute":
		return parseProposalExecute(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type poolCreateJSON struct {
	CommandID    string `json:"command_id"`
	Actor        string `json:"actor"`
	RiskCategory int32  `json:"risk_category"`
	Name         string `json:"name"`
	APY          int64  `json:"apy"`
	MinLockDays  int64  `json:"min_lock_days"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parsePoolCreate(data []byte) (*event.PoolCreate, error) {
	var j poolCreateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolCreate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if j.Actor == "" {
		return nil, fmt.Errorf("parse PoolCreate: actor required")
	}

	return &event.PoolCreate{
		CommandID:    commandID,
		Actor:        event.Address(j.Actor),
		RiskCategory: j.RiskCategory,
		Name:         j.Name,
		APY:          j.APY,
		MinLockDays:  j.MinLockDays,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type poolUpdateJSON struct {
	CommandID   string `json:"command_id"`
	Actor       string `json:"actor"`
	PoolID      uint64 `json:"pool_id"`
	APY         int64  `json:"apy"`
	MinLockDays int64  `json:"min_lock_days"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePoolUpdate(data []byte) (*event.PoolUpdate, error) {
	var j poolUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolUpdate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}

	return &event.PoolUpdate{
		CommandID:   commandID,
		Actor:       event.Address(j.Actor),
		Pool:        j.PoolID,
		APY:         j.APY,
		MinLockDays: j.MinLockDays,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type poolDeactivateJSON struct {
	CommandID   string `json:"command_id"`
	Actor       string `json:"actor"`
	PoolID      uint64 `json:"pool_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePoolDeactivate(data []byte) (*event.PoolDeactivate, error) {
	var j poolDeactivateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolDeactivate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}

	return &event.PoolDeactivate{
		CommandID: commandID,
		Actor:     event.Address(j.Actor),
		Pool:      j.PoolID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type depositJSON struct {
	CommandID   string `json:"command_id"`
	Depositor   string `json:"depositor"`
	PoolID      uint64 `json:"pool_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if j.Depositor == "" {
		return nil, fmt.Errorf("parse Deposit: depositor required")
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse Deposit: amount must be positive, got %d", j.Amount)
	}

	return &event.Deposit{
		CommandID: commandID,
		Depositor: event.Address(j.Depositor),
		Pool:      j.PoolID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type withdrawJSON struct {
	CommandID   string `json:"command_id"`
	Depositor   string `json:"depositor"`
	PoolID      uint64 `json:"pool_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdraw(data []byte) (*event.Withdraw, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if j.Depositor == "" {
		return nil, fmt.Errorf("parse Withdraw: depositor required")
	}

	return &event.Withdraw{
		CommandID: commandID,
		Depositor: event.Address(j.Depositor),
		Pool:      j.PoolID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type coverCreateJSON struct {
	CommandID      string `json:"command_id"`
	Actor          string `json:"actor"`
	PoolID         uint64 `json:"pool_id"`
	ContentRef     string `json:"content_ref"`
	RiskCategory   int32  `json:"risk_category"`
	Name           string `json:"name"`
	Chains         string `json:"chains"`
	Capacity       int64  `json:"capacity"`
	PremiumRateBps int64  `json:"premium_rate_bps"`
	Sequence       int64  `json:"sequence"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseCoverCreate(data []byte) (*event.CoverCreate, error) {
	var j coverCreateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverCreate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}

	return &event.CoverCreate{
		CommandID:      commandID,
		Actor:          event.Address(j.Actor),
		Pool:           j.PoolID,
		ContentRef:     j.ContentRef,
		RiskCategory:   j.RiskCategory,
		Name:           j.Name,
		Chains:         j.Chains,
		Capacity:       j.Capacity,
		PremiumRateBps: j.PremiumRateBps,
		Sequence:       j.Sequence,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type coverCapacityUpdateJSON struct {
	CommandID   string `json:"command_id"`
	Actor       string `json:"actor"`
	CoverID     uint64 `json:"cover_id"`
	Capacity    int64  `json:"capacity"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCoverCapacityUpdate(data []byte) (*event.CoverCapacityUpdate, error) {
	var j coverCapacityUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverCapacityUpdate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}

	return &event.CoverCapacityUpdate{
		CommandID: commandID,
		Actor:     event.Address(j.Actor),
		Cover:     j.CoverID,
		Capacity:  j.Capacity,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type coverDeactivateJSON struct {
	CommandID   string `json:"command_id"`
	Actor       string `json:"actor"`
	CoverID     uint64 `json:"cover_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCoverDeactivate(data []byte) (*event.CoverDeactivate, error) {
	var j coverDeactivateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverDeactivate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}

	return &event.CoverDeactivate{
		CommandID: commandID,
		Actor:     event.Address(j.Actor),
		Cover:     j.CoverID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type coverPurchaseJSON struct {
	CommandID   string `json:"command_id"`
	Holder      string `json:"holder"`
	CoverID     uint64 `json:"cover_id"`
	CoverValue  int64  `json:"cover_value"`
	PeriodDays  int64  `json:"period_days"`
	PremiumPaid int64  `json:"premium_paid"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCoverPurchase(data []byte) (*event.CoverPurchase, error) {
	var j coverPurchaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverPurchase: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if j.Holder == "" {
		return nil, fmt.Errorf("parse CoverPurchase: holder required")
	}
	if j.CoverValue <= 0 {
		return nil, fmt.Errorf("parse CoverPurchase: cover_value must be positive, got %d", j.CoverValue)
	}

	return &event.CoverPurchase{
		CommandID:   commandID,
		Holder:      event.Address(j.Holder),
		Cover:       j.CoverID,
		CoverValue:  j.CoverValue,
		PeriodDays:  j.PeriodDays,
		PremiumPaid: j.PremiumPaid,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type lpPayoutClaimJSON struct {
	CommandID   string `json:"command_id"`
	Claimer     string `json:"claimer"`
	PoolID      uint64 `json:"pool_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseLPPayoutClaim(data []byte) (*event.LPPayoutClaim, error) {
	var j lpPayoutClaimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LPPayoutClaim: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if j.Claimer == "" {
		return nil, fmt.Errorf("parse LPPayoutClaim: claimer required")
	}

	return &event.LPPayoutClaim{
		CommandID: commandID,
		Claimer:   event.Address(j.Claimer),
		Pool:      j.PoolID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type proposalCreateJSON struct {
	CommandID    string `json:"command_id"`
	Actor        string `json:"actor"`
	Claimant     string `json:"claimant"`
	RiskCategory int32  `json:"risk_category"`
	CoverID      uint64 `json:"cover_id"`
	EvidenceRef  string `json:"evidence_ref"`
	Description  string `json:"description"`
	PoolID       uint64 `json:"pool_id"`
	ClaimAmount  int64  `json:"claim_amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseProposalCreate(data []byte) (*event.ProposalCreate, error) {
	var j proposalCreateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProposalCreate: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	claimant := j.Claimant
	if claimant == "" {
		// The proposer claims for themselves unless stated otherwise
		claimant = j.Actor
	}
	if claimant == "" {
		return nil, fmt.Errorf("parse ProposalCreate: claimant required")
	}

	return &event.ProposalCreate{
		CommandID:    commandID,
		Actor:        event.Address(j.Actor),
		Claimant:     event.Address(claimant),
		RiskCategory: j.RiskCategory,
		Cover:        j.CoverID,
		EvidenceRef:  j.EvidenceRef,
		Description:  j.Description,
		Pool:         j.PoolID,
		ClaimAmount:  j.ClaimAmount,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type voteCastJSON struct {
	CommandID   string `json:"command_id"`
	Voter       string `json:"voter"`
	ProposalID  uint64 `json:"proposal_id"`
	Support     bool   `json:"support"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseVoteCast(data []byte) (*event.VoteCast, error) {
	var j voteCastJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VoteCast: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if j.Voter == "" {
		return nil, fmt.Errorf("parse VoteCast: voter required")
	}

	return &event.VoteCast{
		CommandID: commandID,
		Voter:     event.Address(j.Voter),
		Proposal:  j.ProposalID,
		Support:   j.Support,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type proposalExecuteJSON struct {
	CommandID   string `json:"command_id"`
	Actor       string `json:"actor"`
	ProposalID  uint64 `json:"proposal_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseProposalExecute(data []byte) (*event.ProposalExecute, error) {
	var j proposalExecuteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProposalExecute: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}

	return &event.ProposalExecute{
		CommandID: commandID,
		Actor:     event.Address(j.Actor),
		Proposal:  j.ProposalID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
