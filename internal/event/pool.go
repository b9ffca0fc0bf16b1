package event

import (
	"time"

	"github.com/google/uuid"
)

type PoolCreate struct {
	CommandID    uuid.UUID
	Actor        Address
	RiskCategory int32
	Name         string
	APY          int64
	MinLockDays  int64
	Sequence     int64
	Timestamp    time.Time
}

func (p *PoolCreate) IdempotencyKey() string { return p.CommandID.String() }
func (p *PoolCreate) EventType() EventType   { return EventTypePoolCreate }
func (p *PoolCreate) PoolID() *uint64        { return nil }
func (p *PoolCreate) SourceSequence() int64  { return p.Sequence }
func (p *PoolCreate) OccurredAt() time.Time  { return p.Timestamp }

type PoolUpdate struct {
	CommandID   uuid.UUID
	Actor       Address
	Pool        uint64
	APY         int64
	MinLockDays int64
	Sequence    int64
	Timestamp   time.Time
}

func (p *PoolUpdate) IdempotencyKey() string { return p.CommandID.String() }
func (p *PoolUpdate) EventType() EventType   { return EventTypePoolUpdate }
func (p *PoolUpdate) PoolID() *uint64        { return &p.Pool }
func (p *PoolUpdate) SourceSequence() int64  { return p.Sequence }
func (p *PoolUpdate) OccurredAt() time.Time  { return p.Timestamp }

type PoolDeactivate struct {
	CommandID uuid.UUID
	Actor     Address
	Pool      uint64
	Sequence  int64
	Timestamp time.Time
}

func (p *PoolDeactivate) IdempotencyKey() string { return p.CommandID.String() }
func (p *PoolDeactivate) EventType() EventType   { return EventTypePoolDeactivate }
func (p *PoolDeactivate) PoolID() *uint64        { return &p.Pool }
func (p *PoolDeactivate) SourceSequence() int64  { return p.Sequence }
func (p *PoolDeactivate) OccurredAt() time.Time  { return p.Timestamp }

type Deposit struct {
	CommandID uuid.UUID
	Depositor Address
	Pool      uint64
	Amount    int64 // Settlement-asset base units
	Sequence  int64
	Timestamp time.Time
}

func (d *Deposit) IdempotencyKey() string { return d.CommandID.String() }
func (d *Deposit) EventType() EventType   { return EventTypeDeposit }
func (d *Deposit) PoolID() *uint64        { return &d.Pool }
func (d *Deposit) SourceSequence() int64  { return d.Sequence }
func (d *Deposit) OccurredAt() time.Time  { return d.Timestamp }

type Withdraw struct {
	CommandID uuid.UUID
	Depositor Address
	Pool      uint64
	Sequence  int64
	Timestamp time.Time
}

func (w *Withdraw) IdempotencyKey() string { return w.CommandID.String() }
func (w *Withdraw) EventType() EventType   { return EventTypeWithdraw }
func (w *Withdraw) PoolID() *uint64        { return &w.Pool }
func (w *Withdraw) SourceSequence() int64  { return w.Sequence }
func (w *Withdraw) OccurredAt() time.Time  { return w.Timestamp }
