package premium_test

import (
	"testing"
	"time"

	"CoverLedger/internal/premium"
)

// ============================================================================
// Test: DailyPayout
// ============================================================================

func TestDailyPayout_Basic(t *testing.T) {
	// 7300 at 5% APY: 7300 * 5 / (100 * 365) = 1 per day
	if got := premium.DailyPayout(7_300, 5); got != 1 {
		t.Errorf("got %d, want 1", got)
	}

	// 1_000_000 at 10% APY: 1_000_000 * 10 / 36_500 = 273 (floor)
	if got := premium.DailyPayout(1_000_000, 10); got != 273 {
		t.Errorf("got %d, want 273", got)
	}
}

func TestDailyPayout_FloorsToZero(t *testing.T) {
	// Too small to earn a whole unit per day
	if got := premium.DailyPayout(100, 5); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestDailyPayout_NonPositiveInputs(t *testing.T) {
	if got := premium.DailyPayout(0, 5); got != 0 {
		t.Errorf("zero amount: got %d, want 0", got)
	}
	if got := premium.DailyPayout(-7_300, 5); got != 0 {
		t.Errorf("negative amount: got %d, want 0", got)
	}
	if got := premium.DailyPayout(7_300, 0); got != 0 {
		t.Errorf("zero apy: got %d, want 0", got)
	}
}

// ============================================================================
// Test: Quote
// ============================================================================

func TestQuote_Basic(t *testing.T) {
	// 100_000 cover at 250 bps for 73 days: 100_000 * 250 * 73 / (10_000 * 365) = 500
	if got := premium.Quote(100_000, 250, 73); got != 500 {
		t.Errorf("got %d, want 500", got)
	}

	// 73_000 at 250 bps for 28 days: 73_000 * 250 * 28 / 3_650_000 = 140
	if got := premium.Quote(73_000, 250, 28); got != 140 {
		t.Errorf("got %d, want 140", got)
	}
}

func TestQuote_TruncatesTowardZero(t *testing.T) {
	// 1000 at 100 bps for 1 day: 1000 * 100 / 3_650_000 = 0.027...
	if got := premium.Quote(1_000, 100, 1); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestQuote_NonPositiveInputs(t *testing.T) {
	if got := premium.Quote(0, 250, 73); got != 0 {
		t.Errorf("zero cover: got %d, want 0", got)
	}
	if got := premium.Quote(100_000, 0, 73); got != 0 {
		t.Errorf("zero rate: got %d, want 0", got)
	}
	if got := premium.Quote(100_000, 250, 0); got != 0 {
		t.Errorf("zero period: got %d, want 0", got)
	}
	if got := premium.Quote(-100_000, 250, 73); got != 0 {
		t.Errorf("negative cover: got %d, want 0", got)
	}
}

func TestQuote_LargeValuesNoOverflow(t *testing.T) {
	// coverValue * rateBps * periodDays would overflow int64 arithmetic done naively
	coverValue := int64(5_000_000_000_000)
	got := premium.Quote(coverValue, 9_999, 3_650)
	// 5e12 * 9999 * 3650 / 3_650_000 = 5e12 * 9999 / 1000
	want := coverValue / 1_000 * 9_999
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

// ============================================================================
// Test: ClampClaim
// ============================================================================

func TestClampClaim_MinOfThree(t *testing.T) {
	cases := []struct {
		name      string
		requested int64
		cover     int64
		tvl       int64
		want      int64
	}{
		{"requested smallest", 100, 500, 1_000, 100},
		{"cover smallest", 500, 100, 1_000, 100},
		{"tvl smallest", 500, 1_000, 100, 100},
		{"all equal", 250, 250, 250, 250},
	}

	for _, tc := range cases {
		if got := premium.ClampClaim(tc.requested, tc.cover, tc.tvl); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestClampClaim_FloorsAtZero(t *testing.T) {
	if got := premium.ClampClaim(-5, 100, 100); got != 0 {
		t.Errorf("negative request: got %d, want 0", got)
	}
	if got := premium.ClampClaim(100, 0, 100); got != 0 {
		t.Errorf("exhausted cover: got %d, want 0", got)
	}
	if got := premium.ClampClaim(100, 100, 0); got != 0 {
		t.Errorf("drained pool: got %d, want 0", got)
	}
}

// ============================================================================
// Test: WholeDays
// ============================================================================

func TestWholeDays_TruncatesPartialDays(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := premium.WholeDays(from, from.Add(3*24*time.Hour+7*time.Hour)); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if got := premium.WholeDays(from, from.Add(3*24*time.Hour)); got != 3 {
		t.Errorf("exact boundary: got %d, want 3", got)
	}
}

func TestWholeDays_NonPositiveSpan(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := premium.WholeDays(from, from); got != 0 {
		t.Errorf("same instant: got %d, want 0", got)
	}
	if got := premium.WholeDays(from, from.Add(-time.Second)); got != 0 {
		t.Errorf("reversed span: got %d, want 0", got)
	}
}
