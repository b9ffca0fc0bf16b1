package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopePool AccountScope = iota
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Pool sub-types
	SubTypeCapital AccountSubType = iota // LP principal backing the pool (TVL)
	SubTypePremium                       // Premium income collected for the pool

	// External sub-types (boundary with the settlement-asset token)
	SubTypeExternalDeposits
	SubTypeExternalPayouts
)

// AccountKey is the in-memory key for balance tracking. The protocol settles
// in a single asset, so the key carries no asset dimension.
type AccountKey struct {
	Scope   AccountScope
	PoolID  uint64 // Zero for external accounts
	SubType AccountSubType
}

// NewPoolAccountKey creates a key for a pool-scoped account
func NewPoolAccountKey(poolID uint64, subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopePool,
		PoolID:  poolID,
		SubType: subType,
	}
}

// NewExternalAccountKey creates a key for an external boundary account
func NewExternalAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopePool:
		return fmt.Sprintf("pool:%d:%s", k.PoolID, k.subTypeName())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCapital:
		return "capital"
	case SubTypePremium:
		return "premium"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalPayouts:
		return "payouts"
	default:
		return "unknown"
	}
}

// ParseAccountPath reverses AccountPath. Used when restoring balances from a
// snapshot, where accounts are keyed by path.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) == 3 && parts[0] == "pool":
		poolID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse pool id in %q: %w", path, err)
		}
		sub, err := parseSubType(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return NewPoolAccountKey(poolID, sub), nil

	case len(parts) == 2 && parts[0] == "external":
		sub, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		return NewExternalAccountKey(sub), nil
	}

	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}

func parseSubType(name string) (AccountSubType, error) {
	switch name {
	case "capital":
		return SubTypeCapital, nil
	case "premium":
		return SubTypePremium, nil
	case "deposits":
		return SubTypeExternalDeposits, nil
	case "payouts":
		return SubTypeExternalPayouts, nil
	}
	return 0, fmt.Errorf("unknown account sub-type %q", name)
}
