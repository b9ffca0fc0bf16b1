package state

import (
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/premium"
)

// DepositKey identifies one LP position
type DepositKey struct {
	Depositor event.Address
	PoolID    uint64
}

// PoolManager owns all liquidity pool and deposit state. It is not safe for
// concurrent use; the core goroutine is the only caller.
type PoolManager struct {
	owner      event.Address
	governance event.Address
	cover      event.Address

	pools      map[uint64]*Pool
	deposits   map[DepositKey]*Deposit
	nextPoolID uint64
}

func NewPoolManager(owner event.Address) *PoolManager {
	return &PoolManager{
		owner:      owner,
		pools:      make(map[uint64]*Pool),
		deposits:   make(map[DepositKey]*Deposit),
		nextPoolID: 1,
	}
}

// SetGovernance binds the governance principal allowed to call PayClaim.
// Rebinding to the same address is a no-op; changing an established binding
// is rejected.
func (pm *PoolManager) SetGovernance(actor, governance event.Address) error {
	if actor != pm.owner {
		return ErrUnauthorized
	}
	if pm.governance != "" && pm.governance != governance {
		return ErrUnauthorized
	}
	pm.governance = governance
	return nil
}

// SetCover binds the cover underwriter principal allowed to advance LP
// payout clocks.
func (pm *PoolManager) SetCover(actor, cover event.Address) error {
	if actor != pm.owner {
		return ErrUnauthorized
	}
	if pm.cover != "" && pm.cover != cover {
		return ErrUnauthorized
	}
	pm.cover = cover
	return nil
}

func (pm *PoolManager) Governance() event.Address { return pm.governance }
func (pm *PoolManager) Cover() event.Address      { return pm.cover }
func (pm *PoolManager) Owner() event.Address      { return pm.owner }

// CreatePool registers a new pool with zero TVL. Owner only.
func (pm *PoolManager) CreatePool(actor event.Address, riskCategory RiskCategory, name string, apy, minLockDays int64) (*Pool, error) {
	if actor != pm.owner {
		return nil, ErrUnauthorized
	}
	if apy < 0 || minLockDays < 0 {
		return nil, ErrInvalidAmount
	}
	pool := &Pool{
		ID:           pm.nextPoolID,
		RiskCategory: riskCategory,
		Name:         name,
		APY:          apy,
		MinLockDays:  minLockDays,
		IsActive:     true,
		Version:      1,
	}
	pm.pools[pool.ID] = pool
	pm.nextPoolID++
	return pool, nil
}

// UpdatePool changes pool terms for future deposits. Existing deposits keep
// the terms captured at deposit time.
func (pm *PoolManager) UpdatePool(actor event.Address, poolID uint64, apy, minLockDays int64) (*Pool, error) {
	if actor != pm.owner {
		return nil, ErrUnauthorized
	}
	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if apy < 0 || minLockDays < 0 {
		return nil, ErrInvalidAmount
	}
	pool.APY = apy
	pool.MinLockDays = minLockDays
	pool.Version++
	return pool, nil
}

// DeactivatePool stops new deposits. Withdrawals and claim payouts against
// remaining TVL continue to work.
func (pm *PoolManager) DeactivatePool(actor event.Address, poolID uint64) (*Pool, error) {
	if actor != pm.owner {
		return nil, ErrUnauthorized
	}
	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	pool.IsActive = false
	pool.Version++
	return pool, nil
}

// Deposit locks LP capital into a pool. A repeat deposit tops up the existing
// position: the amount accumulates, the lock window and payout clock restart,
// and the daily payout is re-derived from the new total at the pool's current
// terms.
func (pm *PoolManager) Deposit(depositor event.Address, poolID uint64, amount int64, now time.Time) (*Deposit, error) {
	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if !pool.IsActive {
		return nil, ErrPoolInactive
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	key := DepositKey{Depositor: depositor, PoolID: poolID}
	dep, exists := pm.deposits[key]
	if !exists || dep.Status == DepositWithdrawn {
		dep = &Deposit{
			Depositor: depositor,
			PoolID:    poolID,
		}
		pm.deposits[key] = dep
	}
	dep.Amount += amount
	dep.StartTime = now
	dep.LockDays = pool.MinLockDays
	dep.DailyPayout = premium.DailyPayout(dep.Amount, pool.APY)
	dep.LastPayoutAt = now
	dep.Status = DepositActive
	dep.Version++

	pool.TotalValueLocked += amount
	pool.Version++
	return dep, nil
}

// Withdraw releases the full principal after the lock period. Succeeds at
// exactly the unlock boundary.
func (pm *PoolManager) Withdraw(depositor event.Address, poolID uint64, now time.Time) (*Deposit, int64, error) {
	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, 0, ErrPoolNotFound
	}
	key := DepositKey{Depositor: depositor, PoolID: poolID}
	dep, exists := pm.deposits[key]
	if !exists || dep.Status != DepositActive || dep.Amount <= 0 {
		return nil, 0, ErrNoActiveDeposit
	}
	if now.Before(dep.UnlocksAt()) {
		return nil, 0, ErrLockPeriodNotElapsed
	}
	amount := dep.Amount
	if amount > pool.TotalValueLocked {
		// Claims paid from the pool can leave less than the sum of
		// principals; the withdrawal is capped at what remains.
		amount = pool.TotalValueLocked
	}
	if amount <= 0 {
		return nil, 0, ErrInsufficientPoolBalance
	}

	dep.Amount = 0
	dep.Status = DepositWithdrawn
	dep.DailyPayout = 0
	dep.Version++

	pool.TotalValueLocked -= amount
	pool.Version++
	return dep, amount, nil
}

// PayClaim debits the pool for an approved claim payout. Governance only.
// The caller is responsible for clamping amount to TVL beforehand; an amount
// exceeding TVL is rejected rather than driven negative.
func (pm *PoolManager) PayClaim(caller event.Address, poolID uint64, amount int64) (*Pool, error) {
	if pm.governance == "" {
		return nil, ErrUnconfigured
	}
	if caller != pm.governance {
		return nil, ErrUnauthorized
	}
	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > pool.TotalValueLocked {
		return nil, ErrInsufficientPoolBalance
	}
	pool.TotalValueLocked -= amount
	pool.Version++
	return pool, nil
}

// AdvancePayoutClock moves an LP's premium payout clock forward by whole
// days. Cover underwriter only.
func (pm *PoolManager) AdvancePayoutClock(caller, depositor event.Address, poolID uint64, days int64) error {
	if pm.cover == "" {
		return ErrUnconfigured
	}
	if caller != pm.cover {
		return ErrUnauthorized
	}
	key := DepositKey{Depositor: depositor, PoolID: poolID}
	dep, exists := pm.deposits[key]
	if !exists || dep.Status != DepositActive {
		return ErrNoActiveDeposit
	}
	dep.LastPayoutAt = dep.LastPayoutAt.Add(time.Duration(days) * 24 * time.Hour)
	dep.Version++
	return nil
}

// GetPool returns the pool or nil
func (pm *PoolManager) GetPool(poolID uint64) *Pool {
	return pm.pools[poolID]
}

// GetPoolTVL returns the pool's counter TVL, 0 for unknown pools
func (pm *PoolManager) GetPoolTVL(poolID uint64) int64 {
	if pool, ok := pm.pools[poolID]; ok {
		return pool.TotalValueLocked
	}
	return 0
}

// GetUserDeposit returns the LP position or nil
func (pm *PoolManager) GetUserDeposit(depositor event.Address, poolID uint64) *Deposit {
	return pm.deposits[DepositKey{Depositor: depositor, PoolID: poolID}]
}

// AllPools returns copies of every pool for snapshotting
func (pm *PoolManager) AllPools() []*Pool {
	out := make([]*Pool, 0, len(pm.pools))
	for _, p := range pm.pools {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// AllDeposits returns copies of every deposit record for snapshotting
func (pm *PoolManager) AllDeposits() []*Deposit {
	out := make([]*Deposit, 0, len(pm.deposits))
	for _, d := range pm.deposits {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// RestorePool installs a pool during snapshot restore
func (pm *PoolManager) RestorePool(pool *Pool) {
	pm.pools[pool.ID] = pool
	if pool.ID >= pm.nextPoolID {
		pm.nextPoolID = pool.ID + 1
	}
}

// RestoreDeposit installs a deposit during snapshot restore
func (pm *PoolManager) RestoreDeposit(dep *Deposit) {
	pm.deposits[DepositKey{Depositor: dep.Depositor, PoolID: dep.PoolID}] = dep
}

// RestoreBindings installs collaborator addresses during snapshot restore
func (pm *PoolManager) RestoreBindings(governance, cover event.Address) {
	pm.governance = governance
	pm.cover = cover
}
