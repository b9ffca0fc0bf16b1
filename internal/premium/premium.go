package premium

import (
	"math/big"
	"sync"
	"time"
)

const (
	// BpsScale is the basis-point denominator for premium rates
	BpsScale = 10_000

	// DaysPerYear is the accrual year used by both the LP yield stream and
	// premium pricing. Matches the protocol's 365-day convention.
	DaysPerYear = 365

	// APYScale is the denominator for whole-percent annual yield rates
	APYScale = 100
)

// Int128 pool for intermediate products that may overflow int64
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// mulDiv computes a * b * c / denom with int128 intermediates, truncating
// toward zero. All protocol accrual math rounds down: dust stays in the
// pool rather than being minted to a claimer.
func mulDiv(a, b, c, denom int64) int64 {
	x := getInt128()
	y := getInt128()

	x.Mul(big.NewInt(a), big.NewInt(b))
	if c != 1 {
		x.Mul(x, big.NewInt(c))
	}
	y.SetInt64(denom)
	x.Quo(x, y)

	result := x.Int64()
	putInt128(x)
	putInt128(y)
	return result
}

// DailyPayout returns an LP's fixed daily premium entitlement for a deposit:
// amount × apy / (100 × 365). The rate is set once at deposit time and never
// re-derived retroactively.
func DailyPayout(amount, apy int64) int64 {
	if amount <= 0 || apy <= 0 {
		return 0
	}
	return mulDiv(amount, apy, 1, APYScale*DaysPerYear)
}

// Quote returns the premium owed for a cover purchase:
// coverValue × rateBps × periodDays / (10000 × 365).
func Quote(coverValue, rateBps, periodDays int64) int64 {
	if coverValue <= 0 || rateBps <= 0 || periodDays <= 0 {
		return 0
	}
	return mulDiv(coverValue, rateBps, periodDays, BpsScale*DaysPerYear)
}

// ClampClaim bounds a claim request by the cover's remaining value and the
// pool's current TVL. Execution pays what is available instead of reverting.
func ClampClaim(requested, coverValue, poolTVL int64) int64 {
	clamped := requested
	if coverValue < clamped {
		clamped = coverValue
	}
	if poolTVL < clamped {
		clamped = poolTVL
	}
	if clamped < 0 {
		return 0
	}
	return clamped
}

// WholeDays returns the count of complete 24-hour periods between from and to.
// Partial days do not accrue; the remainder keeps accruing toward the next
// whole day.
func WholeDays(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / (24 * time.Hour))
}
