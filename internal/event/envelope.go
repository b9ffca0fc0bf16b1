package event

import (
	"time"
)

// Address is an opaque principal identifier (LP, policyholder, owner,
// governance binding). The core never interprets it beyond equality checks.
type Address string

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolCreate
	EventTypePoolUpdate
	EventTypePoolDeactivate
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeCoverCreate
	EventTypeCoverCapacityUpdate
	EventTypeCoverDeactivate
	EventTypeCoverPurchase
	EventTypeLPPayoutClaim
	EventTypeProposalCreate
	EventTypeVoteCast
	EventTypeProposalExecute
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pool context (nullable for events that do not touch a pool)
	PoolID *uint64

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement.
// Every event carries its own versioned timestamp: the core never reads
// wall-clock time, so lock periods and voting windows are judged against
// the timestamp the host environment stamped on the event.
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PoolID returns the pool context (nil for events outside a pool)
	PoolID() *uint64

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// OccurredAt returns the versioned input timestamp
	OccurredAt() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypePoolCreate:
		return "PoolCreate"
	case EventTypePoolUpdate:
		return "PoolUpdate"
	case EventTypePoolDeactivate:
		return "PoolDeactivate"
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeCoverCreate:
		return "CoverCreate"
	case EventTypeCoverCapacityUpdate:
		return "CoverCapacityUpdate"
	case EventTypeCoverDeactivate:
		return "CoverDeactivate"
	case EventTypeCoverPurchase:
		return "CoverPurchase"
	case EventTypeLPPayoutClaim:
		return "LPPayoutClaim"
	case EventTypeProposalCreate:
		return "ProposalCreate"
	case EventTypeVoteCast:
		return "VoteCast"
	case EventTypeProposalExecute:
		return "ProposalExecute"
	default:
		return "Unknown"
	}
}
