package event

import (
	"time"

	"github.com/google/uuid"
)

type CoverCreate struct {
	CommandID      uuid.UUID
	Actor          Address
	Pool           uint64
	ContentRef     string
	RiskCategory   int32
	Name           string
	Chains         string
	Capacity       int64
	PremiumRateBps int64
	Sequence       int64
	Timestamp      time.Time
}

func (c *CoverCreate) IdempotencyKey() string { return c.CommandID.String() }
func (c *CoverCreate) EventType() EventType   { return EventTypeCoverCreate }
func (c *CoverCreate) PoolID() *uint64        { return &c.Pool }
func (c *CoverCreate) SourceSequence() int64  { return c.Sequence }
func (c *CoverCreate) OccurredAt() time.Time  { return c.Timestamp }

type CoverCapacityUpdate struct {
	CommandID uuid.UUID
	Actor     Address
	Cover     uint64
	Capacity  int64
	Sequence  int64
	Timestamp time.Time
}

func (c *CoverCapacityUpdate) IdempotencyKey() string { return c.CommandID.String() }
func (c *CoverCapacityUpdate) EventType() EventType   { return EventTypeCoverCapacityUpdate }
func (c *CoverCapacityUpdate) PoolID() *uint64        { return nil }
func (c *CoverCapacityUpdate) SourceSequence() int64  { return c.Sequence }
func (c *CoverCapacityUpdate) OccurredAt() time.Time  { return c.Timestamp }

type CoverDeactivate struct {
	CommandID uuid.UUID
	Actor     Address
	Cover     uint64
	Sequence  int64
	Timestamp time.Time
}

func (c *CoverDeactivate) IdempotencyKey() string { return c.CommandID.String() }
func (c *CoverDeactivate) EventType() EventType   { return EventTypeCoverDeactivate }
func (c *CoverDeactivate) PoolID() *uint64        { return nil }
func (c *CoverDeactivate) SourceSequence() int64  { return c.Sequence }
func (c *CoverDeactivate) OccurredAt() time.Time  { return c.Timestamp }

type CoverPurchase struct {
	CommandID   uuid.UUID
	Holder      Address
	Cover       uint64
	CoverValue  int64
	PeriodDays  int64
	PremiumPaid int64
	Sequence    int64
	Timestamp   time.Time
}

func (c *CoverPurchase) IdempotencyKey() string { return c.CommandID.String() }
func (c *CoverPurchase) EventType() EventType   { return EventTypeCoverPurchase }
func (c *CoverPurchase) PoolID() *uint64        { return nil }
func (c *CoverPurchase) SourceSequence() int64  { return c.Sequence }
func (c *CoverPurchase) OccurredAt() time.Time  { return c.Timestamp }

// LPPayoutClaim is the pull side of the premium yield stream: an LP asks for
// the days of daily payout accrued since their last claim.
type LPPayoutClaim struct {
	CommandID uuid.UUID
	Claimer   Address
	Pool      uint64
	Sequence  int64
	Timestamp time.Time
}

func (l *LPPayoutClaim) IdempotencyKey() string { return l.CommandID.String() }
func (l *LPPayoutClaim) EventType() EventType   { return EventTypeLPPayoutClaim }
func (l *LPPayoutClaim) PoolID() *uint64        { return &l.Pool }
func (l *LPPayoutClaim) SourceSequence() int64  { return l.Sequence }
func (l *LPPayoutClaim) OccurredAt() time.Time  { return l.Timestamp }
