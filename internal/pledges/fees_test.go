package pledges

import (
	"testing"

	"github.com/shopspring/decimal"

	"stockpledge/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeFeeFlat(t *testing.T) {
	fee := ComputeFee(types.FeeTypeFlat, dec("25"), dec("10"), dec("2500"))
	if fee.String() != "25" {
		t.Fatalf("expected flat fee 25, got %s", fee)
	}
}

func TestComputeFeePercentage(t *testing.T) {
	// 10 * 2500 * 1% = 250
	fee := ComputeFee(types.FeeTypePercentage, dec("1"), dec("10"), dec("2500"))
	if !fee.Equal(dec("250")) {
		t.Fatalf("expected percentage fee 250, got %s", fee)
	}
}

func TestComputeFeeFloorsAtZero(t *testing.T) {
	if fee := ComputeFee(types.FeeTypeFlat, dec("-5"), dec("10"), dec("2500")); !fee.IsZero() {
		t.Fatalf("expected negative flat fee floored at 0, got %s", fee)
	}
	if fee := ComputeFee(types.FeeTypePercentage, dec("-1"), dec("10"), dec("2500")); !fee.IsZero() {
		t.Fatalf("expected negative percentage fee floored at 0, got %s", fee)
	}
}

func TestComputeFeeZero(t *testing.T) {
	if fee := ComputeFee(types.FeeTypePercentage, decimal.Zero, dec("10"), dec("2500")); !fee.IsZero() {
		t.Fatalf("expected zero fee, got %s", fee)
	}
}

func TestConsentHashBindsTerms(t *testing.T) {
	base := ConsentHash("user-1", "sess-1", "RELIANCE", dec("10"), dec("2500"), dec("25"), "sig", 1700000000)
	if base == "" {
		t.Fatal("expected non-empty hash")
	}
	if again := ConsentHash("user-1", "sess-1", "RELIANCE", dec("10"), dec("2500"), dec("25"), "sig", 1700000000); again != base {
		t.Fatal("hash must be deterministic for identical terms")
	}
	variants := []string{
		ConsentHash("user-2", "sess-1", "RELIANCE", dec("10"), dec("2500"), dec("25"), "sig", 1700000000),
		ConsentHash("user-1", "sess-1", "RELIANCE", dec("11"), dec("2500"), dec("25"), "sig", 1700000000),
		ConsentHash("user-1", "sess-1", "RELIANCE", dec("10"), dec("2600"), dec("25"), "sig", 1700000000),
		ConsentHash("user-1", "sess-1", "RELIANCE", dec("10"), dec("2500"), dec("30"), "sig", 1700000000),
		ConsentHash("user-1", "sess-1", "RELIANCE", dec("10"), dec("2500"), dec("25"), "other", 1700000000),
		ConsentHash("user-1", "sess-1", "RELIANCE", dec("10"), dec("2500"), dec("25"), "sig", 1700000001),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d produced the same hash as the base terms", i)
		}
	}
}
