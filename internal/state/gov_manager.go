package state

import (
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/premium"
)

// DefaultVotingWindow is how long a proposal accepts votes
const DefaultVotingWindow = 24 * time.Hour

// VoteKey records that a voter has voted on a proposal
type VoteKey struct {
	Voter    event.Address
	Proposal uint64
}

// ProposalParams carries the inputs to proposal creation
type ProposalParams struct {
	Claimant     event.Address
	RiskCategory RiskCategory
	CoverID      uint64
	EvidenceRef  string
	Description  string
	PoolID       uint64
	ClaimAmount  int64
}

// Execution is the outcome of executing a proposal. A passed proposal with a
// zero effective amount still executes; it just moves no money.
type Execution struct {
	ProposalID uint64
	Passed     bool
	Amount     int64
	Recipient  event.Address
	PoolID     uint64
	CoverID    uint64
}

// GovManager adjudicates claims by token-weighted vote. Voting weight is read
// from an external token source at vote time and frozen into the tally.
// Not safe for concurrent use.
type GovManager struct {
	self         event.Address
	token        GovTokenSource
	pools        *PoolManager
	covers       *CoverManager
	votingWindow time.Duration

	proposals      map[uint64]*Proposal
	votes          map[VoteKey]struct{}
	nextProposalID uint64
}

// NewGovManager wires the arbiter against the pool and cover managers. self
// is the principal this manager acts as when paying claims.
func NewGovManager(self event.Address, token GovTokenSource, pools *PoolManager, covers *CoverManager, votingWindow time.Duration) *GovManager {
	if votingWindow <= 0 {
		votingWindow = DefaultVotingWindow
	}
	return &GovManager{
		self:           self,
		token:          token,
		pools:          pools,
		covers:         covers,
		votingWindow:   votingWindow,
		proposals:      make(map[uint64]*Proposal),
		votes:          make(map[VoteKey]struct{}),
		nextProposalID: 1,
	}
}

func (gm *GovManager) Self() event.Address         { return gm.self }
func (gm *GovManager) VotingWindow() time.Duration { return gm.votingWindow }

// CreateProposal opens a claim for voting. The referenced pool and cover
// product must exist; whether the claimant actually holds live cover is
// checked at execution, not here.
func (gm *GovManager) CreateProposal(params ProposalParams, now time.Time) (*Proposal, error) {
	if gm.pools.GetPool(params.PoolID) == nil {
		return nil, ErrPoolNotFound
	}
	if gm.covers.GetCover(params.CoverID) == nil {
		return nil, ErrCoverNotFound
	}
	if params.ClaimAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	proposal := &Proposal{
		ID:           gm.nextProposalID,
		Claimant:     params.Claimant,
		RiskCategory: params.RiskCategory,
		CoverID:      params.CoverID,
		EvidenceRef:  params.EvidenceRef,
		Description:  params.Description,
		PoolID:       params.PoolID,
		ClaimAmount:  params.ClaimAmount,
		Status:       ProposalPending,
		CreatedAt:    now,
		Version:      1,
	}
	gm.proposals[proposal.ID] = proposal
	gm.nextProposalID++
	return proposal, nil
}

// Vote records a token-weighted vote. Each voter votes at most once per
// proposal; weight is the voter's token balance at this moment. A vote at
// exactly the window boundary is still accepted.
func (gm *GovManager) Vote(voter event.Address, proposalID uint64, support bool, now time.Time) (*Proposal, error) {
	proposal, ok := gm.proposals[proposalID]
	if !ok {
		return nil, ErrProposalNotFound
	}
	if proposal.Executed {
		return nil, ErrVotingClosed
	}
	if now.After(proposal.CreatedAt.Add(gm.votingWindow)) {
		return nil, ErrVotingClosed
	}
	key := VoteKey{Voter: voter, Proposal: proposalID}
	if _, voted := gm.votes[key]; voted {
		return nil, ErrAlreadyVoted
	}
	gm.votes[key] = struct{}{}

	weight := gm.token.BalanceOf(voter)
	if support {
		proposal.VotesFor += weight
	} else {
		proposal.VotesAgainst += weight
	}
	// Passing is advisory and flips back if the tally reverses
	if proposal.VotesFor > proposal.VotesAgainst {
		proposal.Status = ProposalPassing
	} else {
		proposal.Status = ProposalPending
	}
	proposal.Version++
	return proposal, nil
}

// ExecuteProposal finalizes a proposal after its voting window. A strict
// majority of votes-for passes; ties fail. A passed claim settles for the
// requested amount clamped to the claimant's remaining cover value and the
// pool's TVL, so a shrunken pool pays what it can rather than failing. A
// claimant with no live cover at execution time receives nothing but the
// proposal still terminates as executed.
func (gm *GovManager) ExecuteProposal(proposalID uint64, now time.Time) (*Execution, error) {
	proposal, ok := gm.proposals[proposalID]
	if !ok {
		return nil, ErrProposalNotFound
	}
	if proposal.Executed {
		return nil, ErrAlreadyExecuted
	}
	if now.Before(proposal.CreatedAt.Add(gm.votingWindow)) {
		return nil, ErrVotingStillOpen
	}

	exec := &Execution{
		ProposalID: proposalID,
		Recipient:  proposal.Claimant,
		PoolID:     proposal.PoolID,
		CoverID:    proposal.CoverID,
	}
	if proposal.VotesFor <= proposal.VotesAgainst {
		proposal.Executed = true
		proposal.Status = ProposalRejected
		proposal.Version++
		return exec, nil
	}
	exec.Passed = true

	var remaining int64
	if cover := gm.covers.GetUserCover(proposal.Claimant, proposal.CoverID); cover != nil && cover.Live(now) {
		remaining = cover.CoverValue
	}
	effective := premium.ClampClaim(proposal.ClaimAmount, remaining, gm.pools.GetPoolTVL(proposal.PoolID))
	if effective > 0 {
		// Policy state is debited before capital moves, so a failure
		// between the two cannot over-pay the claimant.
		settled, err := gm.covers.SettleClaim(gm.self, proposal.Claimant, proposal.CoverID, effective, now)
		if err != nil {
			return nil, err
		}
		if _, err := gm.pools.PayClaim(gm.self, proposal.PoolID, settled); err != nil {
			return nil, err
		}
		effective = settled
	}

	proposal.Executed = true
	proposal.Status = ProposalExecuted
	proposal.PaidAmount = effective
	proposal.Version++
	exec.Amount = effective
	return exec, nil
}

// GetProposal returns the proposal or nil
func (gm *GovManager) GetProposal(proposalID uint64) *Proposal {
	return gm.proposals[proposalID]
}

// HasVoted reports whether voter already voted on proposal
func (gm *GovManager) HasVoted(voter event.Address, proposalID uint64) bool {
	_, voted := gm.votes[VoteKey{Voter: voter, Proposal: proposalID}]
	return voted
}

// AllProposals returns copies of every proposal for snapshotting
func (gm *GovManager) AllProposals() []*Proposal {
	out := make([]*Proposal, 0, len(gm.proposals))
	for _, p := range gm.proposals {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// AllVotes returns every vote record for snapshotting
func (gm *GovManager) AllVotes() []VoteKey {
	out := make([]VoteKey, 0, len(gm.votes))
	for k := range gm.votes {
		out = append(out, k)
	}
	return out
}

// RestoreProposal installs a proposal during snapshot restore
func (gm *GovManager) RestoreProposal(proposal *Proposal) {
	gm.proposals[proposal.ID] = proposal
	if proposal.ID >= gm.nextProposalID {
		gm.nextProposalID = proposal.ID + 1
	}
}

// RestoreVote installs a vote record during snapshot restore
func (gm *GovManager) RestoreVote(key VoteKey) {
	gm.votes[key] = struct{}{}
}
