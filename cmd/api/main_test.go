package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockpledge/internal/model"
)

func sampleStats(computedAt time.Time) []model.SessionStats {
	return []model.SessionStats{
		{
			SessionID:        "sess-1",
			UniquePledgers:   3,
			TotalPledges:     5,
			TotalPledgeValue: decimal.RequireFromString("125000"),
			BuyCount:         4,
			SellCount:        1,
			FillPercentage:   decimal.RequireFromString("62.5"),
			ComputedAt:       computedAt,
		},
		{
			SessionID:      "sess-2",
			TotalPledges:   1,
			FillPercentage: decimal.RequireFromString("10"),
			ComputedAt:     computedAt,
		},
	}
}

func TestStatsSnapshotStableAcrossPolls(t *testing.T) {
	now := time.Now().UTC()
	first, err := encodeStatsSnapshot(sampleStats(now))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := encodeStatsSnapshot(sampleStats(now.Add(10 * time.Second)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("identical aggregates must encode identically:\n%s\n%s", first, second)
	}
}

func TestStatsSnapshotReflectsAggregateChange(t *testing.T) {
	now := time.Now().UTC()
	first, err := encodeStatsSnapshot(sampleStats(now))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	changed := sampleStats(now)
	changed[0].TotalPledges = 6
	second, err := encodeStatsSnapshot(changed)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("changed aggregates must produce a different snapshot")
	}
}
