package state

import (
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/premium"
)

// Cover durations are bounded to keep premium quotes meaningful and capacity
// turnover predictable.
const (
	MinCoverDays = 28
	MaxCoverDays = 365
)

// CoverKey identifies one policyholder position
type CoverKey struct {
	Holder  event.Address
	CoverID uint64
}

// CoverManager owns cover products and policyholder positions. It reads pool
// state through the PoolManager but never mutates TVL directly; capital
// movements go through the ledger. Not safe for concurrent use.
type CoverManager struct {
	owner      event.Address
	self       event.Address
	governance event.Address
	pools      *PoolManager

	products    map[uint64]*CoverProduct
	userCovers  map[CoverKey]*UserCover
	nextCoverID uint64
}

// NewCoverManager wires the underwriter against the pool manager. self is the
// principal this manager acts as when calling pool operations.
func NewCoverManager(owner, self event.Address, pools *PoolManager) *CoverManager {
	return &CoverManager{
		owner:       owner,
		self:        self,
		pools:       pools,
		products:    make(map[uint64]*CoverProduct),
		userCovers:  make(map[CoverKey]*UserCover),
		nextCoverID: 1,
	}
}

// SetGovernance binds the principal allowed to settle claims
func (cm *CoverManager) SetGovernance(actor, governance event.Address) error {
	if actor != cm.owner {
		return ErrUnauthorized
	}
	if cm.governance != "" && cm.governance != governance {
		return ErrUnauthorized
	}
	cm.governance = governance
	return nil
}

func (cm *CoverManager) Self() event.Address { return cm.self }

// CreateCover registers a new cover product backed by an existing pool.
// Owner only.
func (cm *CoverManager) CreateCover(actor event.Address, poolID uint64, contentRef string, riskCategory RiskCategory, name, chains string, capacity, rateBps int64) (*CoverProduct, error) {
	if actor != cm.owner {
		return nil, ErrUnauthorized
	}
	if cm.pools.GetPool(poolID) == nil {
		return nil, ErrPoolNotFound
	}
	if capacity <= 0 || rateBps <= 0 {
		return nil, ErrInvalidAmount
	}
	product := &CoverProduct{
		ID:             cm.nextCoverID,
		ContentRef:     contentRef,
		RiskCategory:   riskCategory,
		Name:           name,
		Chains:         chains,
		Capacity:       capacity,
		PremiumRateBps: rateBps,
		PoolID:         poolID,
		IsActive:       true,
		Version:        1,
	}
	cm.products[product.ID] = product
	cm.nextCoverID++
	return product, nil
}

// UpdateCoverCapacity adjusts a product's maximum payable capacity. The new
// capacity cannot undercut cover already sold and live.
func (cm *CoverManager) UpdateCoverCapacity(actor event.Address, coverID uint64, capacity int64, now time.Time) (*CoverProduct, error) {
	if actor != cm.owner {
		return nil, ErrUnauthorized
	}
	product, ok := cm.products[coverID]
	if !ok {
		return nil, ErrCoverNotFound
	}
	if capacity <= 0 {
		return nil, ErrInvalidAmount
	}
	if capacity < cm.ActiveCoverValue(coverID, now) {
		return nil, ErrCapacityExceeded
	}
	product.Capacity = capacity
	product.Version++
	return product, nil
}

// DeactivateCover stops new purchases. Live covers remain claimable until
// they expire.
func (cm *CoverManager) DeactivateCover(actor event.Address, coverID uint64) (*CoverProduct, error) {
	if actor != cm.owner {
		return nil, ErrUnauthorized
	}
	product, ok := cm.products[coverID]
	if !ok {
		return nil, ErrCoverNotFound
	}
	product.IsActive = false
	product.Version++
	return product, nil
}

// PurchaseCover sells cover to a policyholder. premiumPaid must match the
// quote exactly; the caller computes the quote from the same product terms.
// The purchase is bounded by remaining product capacity and by the backing
// pool's TVL.
func (cm *CoverManager) PurchaseCover(holder event.Address, coverID uint64, coverValue, periodDays, premiumPaid int64, now time.Time) (*UserCover, int64, error) {
	product, ok := cm.products[coverID]
	if !ok {
		return nil, 0, ErrCoverNotFound
	}
	if !product.IsActive {
		return nil, 0, ErrCoverInactive
	}
	if coverValue <= 0 {
		return nil, 0, ErrInvalidAmount
	}
	if periodDays < MinCoverDays || periodDays > MaxCoverDays {
		return nil, 0, ErrInvalidCoverDuration
	}
	if cm.ActiveCoverValue(coverID, now)+coverValue > product.Capacity {
		return nil, 0, ErrInsufficientPoolBalance
	}
	if coverValue > cm.pools.GetPoolTVL(product.PoolID) {
		return nil, 0, ErrInsufficientPoolBalance
	}
	quote := premium.Quote(coverValue, product.PremiumRateBps, periodDays)
	if premiumPaid != quote {
		return nil, 0, ErrPremiumMismatch
	}

	key := CoverKey{Holder: holder, CoverID: coverID}
	if existing, exists := cm.userCovers[key]; exists && existing.Live(now) {
		return nil, 0, ErrCoverAlreadyActive
	}
	cover := &UserCover{
		Holder:       holder,
		CoverID:      coverID,
		CoverValue:   coverValue,
		PremiumPaid:  premiumPaid,
		PurchasedAt:  now,
		DurationDays: periodDays,
		IsActive:     true,
		Version:      1,
	}
	if prev, exists := cm.userCovers[key]; exists {
		cover.Version = prev.Version + 1
	}
	cm.userCovers[key] = cover
	return cover, quote, nil
}

// ClaimPayoutForLP pays out accrued daily premium to an LP. The payout is
// whole days elapsed since the last payout times the fixed daily rate, capped
// at availablePremium (the pool's segregated premium income). The payout
// clock always advances by the elapsed whole days, so premium forgone to the
// cap is not recoverable later.
func (cm *CoverManager) ClaimPayoutForLP(claimer event.Address, poolID uint64, availablePremium int64, now time.Time) (int64, error) {
	dep := cm.pools.GetUserDeposit(claimer, poolID)
	if dep == nil || dep.Status != DepositActive || dep.DailyPayout <= 0 {
		return 0, ErrNoClaimableReward
	}
	days := premium.WholeDays(dep.LastPayoutAt, now)
	if days <= 0 {
		return 0, ErrNoClaimableReward
	}
	amount := days * dep.DailyPayout
	if amount > availablePremium {
		amount = availablePremium
	}
	if amount <= 0 {
		return 0, ErrNoClaimableReward
	}
	if err := cm.pools.AdvancePayoutClock(cm.self, claimer, poolID, days); err != nil {
		return 0, err
	}
	return amount, nil
}

// SettleClaim debits a policyholder's cover for an approved claim. Governance
// only. The settled amount is capped at the remaining cover value; a fully
// consumed cover is deactivated.
func (cm *CoverManager) SettleClaim(caller, holder event.Address, coverID uint64, amount int64, now time.Time) (int64, error) {
	if cm.governance == "" {
		return 0, ErrUnconfigured
	}
	if caller != cm.governance {
		return 0, ErrUnauthorized
	}
	cover, ok := cm.userCovers[CoverKey{Holder: holder, CoverID: coverID}]
	if !ok || !cover.Live(now) {
		return 0, ErrCoverNotFound
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	settled := amount
	if settled > cover.CoverValue {
		settled = cover.CoverValue
	}
	cover.CoverValue -= settled
	cover.ClaimPaid += settled
	if cover.CoverValue == 0 {
		cover.IsActive = false
	}
	cover.Version++
	return settled, nil
}

// ActiveCoverValue sums cover value still live against a product at now.
// Expired and consumed covers drop out without any explicit expiry event.
func (cm *CoverManager) ActiveCoverValue(coverID uint64, now time.Time) int64 {
	var total int64
	for key, cover := range cm.userCovers {
		if key.CoverID != coverID {
			continue
		}
		if cover.Live(now) {
			total += cover.CoverValue
		}
	}
	return total
}

// GetCover returns the product or nil
func (cm *CoverManager) GetCover(coverID uint64) *CoverProduct {
	return cm.products[coverID]
}

// GetUserCover returns the policyholder position or nil
func (cm *CoverManager) GetUserCover(holder event.Address, coverID uint64) *UserCover {
	return cm.userCovers[CoverKey{Holder: holder, CoverID: coverID}]
}

// AvailableCovers returns all products currently open for purchase
func (cm *CoverManager) AvailableCovers() []*CoverProduct {
	out := make([]*CoverProduct, 0, len(cm.products))
	for _, p := range cm.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// AllProducts returns copies of every product for snapshotting
func (cm *CoverManager) AllProducts() []*CoverProduct {
	out := make([]*CoverProduct, 0, len(cm.products))
	for _, p := range cm.products {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// AllUserCovers returns copies of every policyholder position for snapshotting
func (cm *CoverManager) AllUserCovers() []*UserCover {
	out := make([]*UserCover, 0, len(cm.userCovers))
	for _, c := range cm.userCovers {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// RestoreProduct installs a product during snapshot restore
func (cm *CoverManager) RestoreProduct(product *CoverProduct) {
	cm.products[product.ID] = product
	if product.ID >= cm.nextCoverID {
		cm.nextCoverID = product.ID + 1
	}
}

// RestoreUserCover installs a policyholder position during snapshot restore
func (cm *CoverManager) RestoreUserCover(cover *UserCover) {
	cm.userCovers[CoverKey{Holder: cover.Holder, CoverID: cover.CoverID}] = cover
}

// RestoreGovernance installs the governance binding during snapshot restore
func (cm *CoverManager) RestoreGovernance(governance event.Address) {
	cm.governance = governance
}
