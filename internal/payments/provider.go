package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDeclined is the expected provider failure: the charge was attempted and
// refused. Anything else returned by a provider is treated as infrastructure
// failure.
var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	UserID    string
	PledgeID  string
	Amount    decimal.Decimal
	Currency  string
	ClientRef string
}

type Receipt struct {
	PaymentRef string
	Provider   string
}

// Provider is the payment gateway abstraction. Real gateway integration is
// out of scope; the simulated provider stands in for it.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}
