package state

import (
	"sync"

	"CoverLedger/internal/event"
)

// GovTokenSource supplies voting weight. Implementations must be stable for
// a given (address, moment); the vote tally freezes the returned weight.
type GovTokenSource interface {
	BalanceOf(addr event.Address) int64
}

// TokenBank is an in-process governance token register. Unlike the managers
// it is safe for concurrent use: the HTTP surface mints and transfers while
// the core goroutine reads weights.
type TokenBank struct {
	mu       sync.RWMutex
	balances map[event.Address]int64
}

func NewTokenBank() *TokenBank {
	return &TokenBank{balances: make(map[event.Address]int64)}
}

func (tb *TokenBank) BalanceOf(addr event.Address) int64 {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.balances[addr]
}

// Mint credits voting tokens to an address
func (tb *TokenBank) Mint(addr event.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.balances[addr] += amount
	return nil
}

// Transfer moves voting tokens between addresses
func (tb *TokenBank) Transfer(from, to event.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.balances[from] < amount {
		return ErrInsufficientPoolBalance
	}
	tb.balances[from] -= amount
	tb.balances[to] += amount
	return nil
}

// Balances returns a copy of all balances for snapshotting
func (tb *TokenBank) Balances() map[event.Address]int64 {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	out := make(map[event.Address]int64, len(tb.balances))
	for addr, bal := range tb.balances {
		out[addr] = bal
	}
	return out
}

// RestoreBalance installs a balance during snapshot restore
func (tb *TokenBank) RestoreBalance(addr event.Address, amount int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.balances[addr] = amount
}
