package event

import (
	"time"

	"github.com/google/uuid"
)

type ProposalCreate struct {
	CommandID    uuid.UUID
	Actor        Address
	Claimant     Address
	RiskCategory int32
	Cover        uint64
	EvidenceRef  string
	Description  string
	Pool         uint64
	ClaimAmount  int64
	Sequence     int64
	Timestamp    time.Time
}

func (p *ProposalCreate) IdempotencyKey() string { return p.CommandID.String() }
func (p *ProposalCreate) EventType() EventType   { return EventTypeProposalCreate }
func (p *ProposalCreate) PoolID() *uint64        { return &p.Pool }
func (p *ProposalCreate) SourceSequence() int64  { return p.Sequence }
func (p *ProposalCreate) OccurredAt() time.Time  { return p.Timestamp }

type VoteCast struct {
	CommandID uuid.UUID
	Voter     Address
	Proposal  uint64
	Support   bool
	Sequence  int64
	Timestamp time.Time
}

func (v *VoteCast) IdempotencyKey() string { return v.CommandID.String() }
func (v *VoteCast) EventType() EventType   { return EventTypeVoteCast }
func (v *VoteCast) PoolID() *uint64        { return nil }
func (v *VoteCast) SourceSequence() int64  { return v.Sequence }
func (v *VoteCast) OccurredAt() time.Time  { return v.Timestamp }

type ProposalExecute struct {
	CommandID uuid.UUID
	Actor     Address
	Proposal  uint64
	Sequence  int64
	Timestamp time.Time
}

func (p *ProposalExecute) IdempotencyKey() string { return p.CommandID.String() }
func (p *ProposalExecute) EventType() EventType   { return EventTypeProposalExecute }
func (p *ProposalExecute) PoolID() *uint64        { return nil }
func (p *ProposalExecute) SourceSequence() int64  { return p.Sequence }
func (p *ProposalExecute) OccurredAt() time.Time  { return p.Timestamp }
