package feed

import (
	"testing"
)

func TestParseTickerBatch(t *testing.T) {
	payload := []byte(`[
		{"s":"BTCUSDT","c":"65000.10","q":"123456.78"},
		{"s":"ETHUSDT","c":"3200.55","q":"98765.43"},
		{"s":"BROKEN","c":"not-a-number","q":"1"}
	]`)

	ticks, err := parseTickerBatch(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected 2 parseable ticks, got %d", len(ticks))
	}
	if ticks[0].Symbol != "BTCUSDT" || ticks[0].Price != 65000.10 || ticks[0].Volume != 123456.78 {
		t.Fatalf("unexpected first tick: %+v", ticks[0])
	}
}

func TestParseTickerBatchRejectsNonArray(t *testing.T) {
	if _, err := parseTickerBatch([]byte(`{"e":"ping"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}
