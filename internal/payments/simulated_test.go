package payments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSimulatedChargeSucceeds(t *testing.T) {
	p := NewSimulatedProvider()
	rcpt, err := p.Charge(context.Background(), ChargeRequest{
		UserID:   "user-1",
		PledgeID: "pledge-1",
		Amount:   decimal.NewFromInt(25),
		Currency: "INR",
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !strings.HasPrefix(rcpt.PaymentRef, "SIMPAY-") {
		t.Errorf("payment ref %q missing provider prefix", rcpt.PaymentRef)
	}
	if rcpt.Provider != "simulated" {
		t.Errorf("provider = %q, want simulated", rcpt.Provider)
	}
}

func TestSimulatedChargeDeclinesOverLimit(t *testing.T) {
	limit := decimal.NewFromInt(100)
	p := &SimulatedProvider{DeclineAbove: &limit}
	_, err := p.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(101)})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if _, err := p.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("charge at the limit should pass: %v", err)
	}
}

func TestSimulatedChargeHonorsCancelledContext(t *testing.T) {
	p := NewSimulatedProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Charge(ctx, ChargeRequest{Amount: decimal.NewFromInt(1)}); err == nil {
		t.Fatal("expected context error after cancellation")
	}
}
