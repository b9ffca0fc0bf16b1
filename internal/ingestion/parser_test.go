package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"depositor":    "0xalice",
		"pool_id":      uint64(3),
		"amount":       int64(7300),
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := evt.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", evt)
	}
	if dep.Depositor != "0xalice" {
		t.Errorf("depositor: got %s, want 0xalice", dep.Depositor)
	}
	if dep.Pool != 3 {
		t.Errorf("pool: got %d, want 3", dep.Pool)
	}
	if dep.Amount != 7300 {
		t.Errorf("amount: got %d, want 7300", dep.Amount)
	}
	if dep.SourceSequence() != 42 {
		t.Errorf("sequence: got %d, want 42", dep.SourceSequence())
	}
	if dep.EventType() != event.EventTypeDeposit {
		t.Errorf("event type: got %v, want Deposit", dep.EventType())
	}
	if !dep.OccurredAt().Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", dep.OccurredAt())
	}
}

func TestParseDeposit_RejectsNonPositiveAmount(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"depositor":    "0xalice",
		"pool_id":      uint64(1),
		"amount":       int64(0),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Deposit"); err == nil {
		t.Fatal("zero amount should fail to parse")
	}
}

func TestParseCoverPurchase(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "660e8400-e29b-41d4-a716-446655440001",
		"holder":       "0xbob",
		"cover_id":     uint64(7),
		"cover_value":  int64(100_000),
		"period_days":  int64(90),
		"premium_paid": int64(616),
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "CoverPurchase")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	p, ok := evt.(*event.CoverPurchase)
	if !ok {
		t.Fatalf("expected *event.CoverPurchase, got %T", evt)
	}
	if p.Cover != 7 || p.CoverValue != 100_000 || p.PeriodDays != 90 || p.PremiumPaid != 616 {
		t.Errorf("fields: %+v", p)
	}
}

func TestParseProposalCreate_ClaimantDefaultsToActor(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "770e8400-e29b-41d4-a716-446655440002",
		"actor":        "0xbob",
		"cover_id":     uint64(1),
		"evidence_ref": "ipfs://evidence",
		"description":  "oracle failure",
		"pool_id":      uint64(1),
		"claim_amount": int64(50_000),
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ProposalCreate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	pc := evt.(*event.ProposalCreate)
	if pc.Claimant != "0xbob" {
		t.Errorf("claimant: got %s, want actor fallback 0xbob", pc.Claimant)
	}
}

func TestParseVoteCast(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "880e8400-e29b-41d4-a716-446655440003",
		"voter":        "0xcarol",
		"proposal_id":  uint64(5),
		"support":      true,
		"sequence":     int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "VoteCast")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	v := evt.(*event.VoteCast)
	if v.Voter != "0xcarol" || v.Proposal != 5 || !v.Support {
		t.Errorf("fields: %+v", v)
	}
}

func TestParseRawEvent_UnknownType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "MarginCall"); err == nil {
		t.Fatal("unknown event type should fail")
	}
}

func TestParseRawEvent_BadCommandID(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "not-a-uuid",
		"depositor":    "0xalice",
		"pool_id":      uint64(1),
		"amount":       int64(100),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Deposit"); err == nil {
		t.Fatal("malformed command_id should fail")
	}
}
