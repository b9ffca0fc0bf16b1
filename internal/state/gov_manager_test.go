package state_test

import (
	"errors"
	"testing"
	"time"

	"CoverLedger/internal/state"
)

// govFixture wires the full triad plus a token bank
type govFixture struct {
	pools  *state.PoolManager
	covers *state.CoverManager
	gov    *state.GovManager
	tokens *state.TokenBank
}

func newGovFixture(t *testing.T) *govFixture {
	t.Helper()
	pools := state.NewPoolManager(owner)
	covers := state.NewCoverManager(owner, coverAddr, pools)
	tokens := state.NewTokenBank()
	gov := state.NewGovManager(govAddr, tokens, pools, covers, state.DefaultVotingWindow)
	if err := pools.SetGovernance(owner, govAddr); err != nil {
		t.Fatalf("SetGovernance: %v", err)
	}
	if err := pools.SetCover(owner, coverAddr); err != nil {
		t.Fatalf("SetCover: %v", err)
	}
	if err := covers.SetGovernance(owner, govAddr); err != nil {
		t.Fatalf("covers.SetGovernance: %v", err)
	}
	return &govFixture{pools: pools, covers: covers, gov: gov, tokens: tokens}
}

// openClaim creates a funded pool, a cover product, a purchased cover for bob,
// and an open proposal claiming claimAmount.
func (f *govFixture) openClaim(t *testing.T, tvl, coverValue, claimAmount int64) *state.Proposal {
	t.Helper()
	pool, err := f.pools.CreatePool(owner, state.RiskSmartContract, "pool", 5, 28)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	if _, err := f.pools.Deposit(alice, pool.ID, tvl, baseTime); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	product, err := f.covers.CreateCover(owner, pool.ID, "ref", state.RiskSmartContract, "cover", "eth", tvl, 100)
	if err != nil {
		t.Fatalf("CreateCover: %v", err)
	}
	quote := coverValue * 100 * 365 / (10_000 * 365)
	if _, _, err := f.covers.PurchaseCover(bob, product.ID, coverValue, 365, quote, baseTime); err != nil {
		t.Fatalf("PurchaseCover: %v", err)
	}
	proposal, err := f.gov.CreateProposal(state.ProposalParams{
		Claimant:     bob,
		RiskCategory: state.RiskSmartContract,
		CoverID:      product.ID,
		EvidenceRef:  "ipfs://evidence",
		Description:  "exploit drained vault",
		PoolID:       pool.ID,
		ClaimAmount:  claimAmount,
	}, baseTime)
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	return proposal
}

// ============================================================================
// Test: proposal creation
// ============================================================================

func TestCreateProposal_ValidatesReferences(t *testing.T) {
	f := newGovFixture(t)
	params := state.ProposalParams{Claimant: bob, CoverID: 1, PoolID: 1, ClaimAmount: 100}
	if _, err := f.gov.CreateProposal(params, baseTime); !errors.Is(err, state.ErrPoolNotFound) {
		t.Errorf("missing pool: got %v, want ErrPoolNotFound", err)
	}

	f.pools.CreatePool(owner, state.RiskSlashing, "p", 5, 28)
	if _, err := f.gov.CreateProposal(params, baseTime); !errors.Is(err, state.ErrCoverNotFound) {
		t.Errorf("missing cover: got %v, want ErrCoverNotFound", err)
	}
}

// ============================================================================
// Test: voting
// ============================================================================

func TestVote_TokenWeightedTally(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)

	f.tokens.Mint(alice, 300)
	f.tokens.Mint(bob, 100)

	if _, err := f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("alice vote: %v", err)
	}
	if _, err := f.gov.Vote(bob, proposal.ID, false, baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("bob vote: %v", err)
	}
	if proposal.VotesFor != 300 || proposal.VotesAgainst != 100 {
		t.Errorf("tally: got for=%d against=%d, want 300, 100", proposal.VotesFor, proposal.VotesAgainst)
	}
	if proposal.Status != state.ProposalPassing {
		t.Errorf("status: got %v, want passing", proposal.Status)
	}
}

func TestVote_PassingFlipsBackWhenTallyReverses(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)

	f.tokens.Mint(alice, 100)
	f.tokens.Mint(bob, 200)

	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))
	if proposal.Status != state.ProposalPassing {
		t.Fatalf("after first vote: got %v, want passing", proposal.Status)
	}
	f.gov.Vote(bob, proposal.ID, false, baseTime.Add(2*time.Hour))
	if proposal.Status != state.ProposalPending {
		t.Errorf("after reversal: got %v, want pending", proposal.Status)
	}
}

func TestVote_DoubleVoteRejected(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	f.tokens.Mint(alice, 100)

	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))
	if _, err := f.gov.Vote(alice, proposal.ID, true, baseTime.Add(2*time.Hour)); !errors.Is(err, state.ErrAlreadyVoted) {
		t.Errorf("got %v, want ErrAlreadyVoted", err)
	}
	if proposal.VotesFor != 100 {
		t.Errorf("tally unchanged by rejected vote: got %d, want 100", proposal.VotesFor)
	}
}

func TestVote_WindowBoundary(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	f.tokens.Mint(alice, 100)
	f.tokens.Mint(bob, 100)

	end := baseTime.Add(state.DefaultVotingWindow)
	if _, err := f.gov.Vote(alice, proposal.ID, true, end); err != nil {
		t.Errorf("vote at exact window end: %v", err)
	}
	if _, err := f.gov.Vote(bob, proposal.ID, true, end.Add(time.Second)); !errors.Is(err, state.ErrVotingClosed) {
		t.Errorf("vote after window: got %v, want ErrVotingClosed", err)
	}
}

// ============================================================================
// Test: execution
// ============================================================================

func TestExecuteProposal_BeforeWindowRejected(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	if _, err := f.gov.ExecuteProposal(proposal.ID, baseTime.Add(time.Hour)); !errors.Is(err, state.ErrVotingStillOpen) {
		t.Errorf("got %v, want ErrVotingStillOpen", err)
	}
}

func TestExecuteProposal_PassedClaimMovesMoney(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	f.tokens.Mint(alice, 100)
	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))

	after := baseTime.Add(state.DefaultVotingWindow)
	exec, err := f.gov.ExecuteProposal(proposal.ID, after)
	if err != nil {
		t.Fatalf("ExecuteProposal: %v", err)
	}
	if !exec.Passed || exec.Amount != 20_000 || exec.Recipient != bob {
		t.Errorf("execution: got passed=%v amount=%d recipient=%s", exec.Passed, exec.Amount, exec.Recipient)
	}
	if got := f.pools.GetPoolTVL(1); got != 80_000 {
		t.Errorf("TVL after claim: got %d, want 80_000", got)
	}
	cover := f.covers.GetUserCover(bob, 1)
	if cover.CoverValue != 30_000 || cover.ClaimPaid != 20_000 {
		t.Errorf("cover after claim: value=%d paid=%d", cover.CoverValue, cover.ClaimPaid)
	}
	if proposal.Status != state.ProposalExecuted || proposal.PaidAmount != 20_000 {
		t.Errorf("proposal: status=%v paid=%d", proposal.Status, proposal.PaidAmount)
	}
}

func TestExecuteProposal_TieFails(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	f.tokens.Mint(alice, 100)
	f.tokens.Mint(bob, 100)
	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))
	f.gov.Vote(bob, proposal.ID, false, baseTime.Add(time.Hour))

	exec, err := f.gov.ExecuteProposal(proposal.ID, baseTime.Add(state.DefaultVotingWindow))
	if err != nil {
		t.Fatalf("ExecuteProposal: %v", err)
	}
	if exec.Passed || exec.Amount != 0 {
		t.Errorf("tie should fail: passed=%v amount=%d", exec.Passed, exec.Amount)
	}
	if proposal.Status != state.ProposalRejected {
		t.Errorf("status: got %v, want rejected", proposal.Status)
	}
	if got := f.pools.GetPoolTVL(1); got != 100_000 {
		t.Errorf("TVL unchanged on rejection: got %d, want 100_000", got)
	}
}

func TestExecuteProposal_SecondExecutionRejected(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	f.tokens.Mint(alice, 100)
	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))

	after := baseTime.Add(state.DefaultVotingWindow)
	if _, err := f.gov.ExecuteProposal(proposal.ID, after); err != nil {
		t.Fatalf("first execution: %v", err)
	}
	if _, err := f.gov.ExecuteProposal(proposal.ID, after.Add(time.Hour)); !errors.Is(err, state.ErrAlreadyExecuted) {
		t.Errorf("second execution: got %v, want ErrAlreadyExecuted", err)
	}
}

func TestExecuteProposal_ClampedToCoverValueAndTVL(t *testing.T) {
	f := newGovFixture(t)
	// Claim 80_000 against 50_000 of cover in a 100_000 pool
	proposal := f.openClaim(t, 100_000, 50_000, 80_000)
	f.tokens.Mint(alice, 100)
	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))

	exec, err := f.gov.ExecuteProposal(proposal.ID, baseTime.Add(state.DefaultVotingWindow))
	if err != nil {
		t.Fatalf("ExecuteProposal: %v", err)
	}
	if exec.Amount != 50_000 {
		t.Errorf("clamped to cover value: got %d, want 50_000", exec.Amount)
	}

	// A pool shrunken below the claim clamps to TVL instead
	f2 := newGovFixture(t)
	p2 := f2.openClaim(t, 30_000, 30_000, 30_000)
	f2.tokens.Mint(alice, 100)
	f2.gov.Vote(alice, p2.ID, true, baseTime.Add(time.Hour))
	if _, err := f2.pools.PayClaim(govAddr, 1, 25_000); err != nil {
		t.Fatalf("drain pool: %v", err)
	}
	exec2, err := f2.gov.ExecuteProposal(p2.ID, baseTime.Add(state.DefaultVotingWindow))
	if err != nil {
		t.Fatalf("ExecuteProposal: %v", err)
	}
	if exec2.Amount != 5_000 {
		t.Errorf("clamped to TVL: got %d, want 5_000", exec2.Amount)
	}
}

func TestExecuteProposal_NoLiveCoverPaysZeroButExecutes(t *testing.T) {
	f := newGovFixture(t)
	proposal := f.openClaim(t, 100_000, 50_000, 20_000)
	f.tokens.Mint(alice, 100)
	f.gov.Vote(alice, proposal.ID, true, baseTime.Add(time.Hour))

	// Consume the cover entirely before execution
	if _, err := f.covers.SettleClaim(govAddr, bob, 1, 50_000, baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("SettleClaim: %v", err)
	}
	exec, err := f.gov.ExecuteProposal(proposal.ID, baseTime.Add(state.DefaultVotingWindow))
	if err != nil {
		t.Fatalf("ExecuteProposal: %v", err)
	}
	if !exec.Passed || exec.Amount != 0 {
		t.Errorf("got passed=%v amount=%d, want passed with zero payout", exec.Passed, exec.Amount)
	}
	if proposal.Status != state.ProposalExecuted {
		t.Errorf("status: got %v, want executed", proposal.Status)
	}
}

// ============================================================================
// Test: token bank
// ============================================================================

func TestTokenBank_MintAndTransfer(t *testing.T) {
	tb := state.NewTokenBank()
	if err := tb.Mint(alice, 500); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := tb.Transfer(alice, bob, 200); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tb.BalanceOf(alice) != 300 || tb.BalanceOf(bob) != 200 {
		t.Errorf("balances: alice=%d bob=%d", tb.BalanceOf(alice), tb.BalanceOf(bob))
	}
	if err := tb.Transfer(bob, alice, 201); err == nil {
		t.Error("overdrawn transfer should fail")
	}
}
