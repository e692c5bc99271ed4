package redis

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPriceKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got, want := priceKey("bitcoin", at), "price:bitcoin:1772366400"; got != want {
		t.Errorf("priceKey = %q, want %q", got, want)
	}
	// 同一时刻不同时区得到同一个 key
	local := at.In(time.FixedZone("UTC+8", 8*3600))
	if priceKey("bitcoin", local) != priceKey("bitcoin", at) {
		t.Error("key must not depend on time zone")
	}
}

func TestEncodeBadgeEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("UTC+8", 8*3600))
	payload, err := encodeBadgeEvent(42, "market_resolved", at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["userId"] != float64(42) || got["eventType"] != "market_resolved" {
		t.Errorf("payload = %s", payload)
	}
	if got["at"] != "2026-03-01T04:00:00Z" {
		t.Errorf("at = %v, want UTC timestamp", got["at"])
	}
}
