package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const simulatedProviderName = "simulated"

// SimulatedProvider approves every well-formed charge and mints an opaque
// payment reference. DeclineAbove, when set, refuses charges over the limit
// so failure paths stay exercisable in development.
type SimulatedProvider struct {
	DeclineAbove *decimal.Decimal
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{}
}

func (p *SimulatedProvider) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if req.Amount.IsNegative() {
		return Receipt{}, ErrDeclined
	}
	if p.DeclineAbove != nil && req.Amount.GreaterThan(*p.DeclineAbove) {
		zap.L().Info("simulated payment declined over limit",
			zap.String("user_id", req.UserID),
			zap.String("pledge_id", req.PledgeID),
			zap.String("amount", req.Amount.String()))
		return Receipt{}, ErrDeclined
	}
	ref := "SIMPAY-" + uuid.NewString()
	zap.L().Info("simulated payment charged",
		zap.String("user_id", req.UserID),
		zap.String("payment_ref", ref),
		zap.String("amount", req.Amount.String()))
	return Receipt{PaymentRef: ref, Provider: simulatedProviderName}, nil
}
